// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/kindregistry"
)

type fakePlugin struct {
	name        string
	initErr     error
	initPanic   bool
	shutdownErr error
	health      Health

	initCalls     int
	handlerCalls  int
	shutdownCalls int
	shutdownLog   *[]string
}

func newFakePlugin(name string) *fakePlugin {
	return &fakePlugin{name: name, health: Health{Healthy: true}}
}

func (f *fakePlugin) Name() string                        { return f.name }
func (f *fakePlugin) Version() string                     { return "v1" }
func (f *fakePlugin) Description() string                 { return "fake plugin" }
func (f *fakePlugin) Kinds() []kindregistry.Descriptor    { return nil }
func (f *fakePlugin) RegisterHandlers(ctrl.Manager) error { f.handlerCalls++; return nil }
func (f *fakePlugin) Health() Health                      { return f.health }

func (f *fakePlugin) Initialize(context.Context) error {
	f.initCalls++
	if f.initPanic {
		panic("init exploded")
	}
	return f.initErr
}

func (f *fakePlugin) Shutdown(context.Context) error {
	f.shutdownCalls++
	if f.shutdownLog != nil {
		*f.shutdownLog = append(*f.shutdownLog, f.name)
	}
	return f.shutdownErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEmptyRegistry() *Registry {
	return NewRegistry(Deps{Logger: quietLogger()})
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := newEmptyRegistry()
	if err := r.Register(newFakePlugin("alpha")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(newFakePlugin("alpha")); err == nil {
		t.Error("Register() accepted a duplicate name")
	}
	if got := len(r.Plugins()); got != 1 {
		t.Errorf("registered plugins = %d, want 1", got)
	}
}

func TestInitializeAllIsolatesFailures(t *testing.T) {
	r := newEmptyRegistry()
	good := newFakePlugin("good")
	bad := newFakePlugin("bad")
	bad.initErr = errors.New("no connection")
	panicky := newFakePlugin("panicky")
	panicky.initPanic = true

	for _, p := range []*fakePlugin{good, bad, panicky} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p.name, err)
		}
	}

	results := r.InitializeAll(context.Background())
	want := map[string]bool{"good": true, "bad": false, "panicky": false}
	for name, ok := range want {
		if results[name] != ok {
			t.Errorf("results[%s] = %v, want %v", name, results[name], ok)
		}
	}
	if got := r.InitializedCount(); got != 1 {
		t.Errorf("InitializedCount() = %d, want 1", got)
	}
}

func TestInitializeAllRunsOnce(t *testing.T) {
	r := newEmptyRegistry()
	p := newFakePlugin("solo")
	if err := r.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	first := r.InitializeAll(context.Background())
	second := r.InitializeAll(context.Background())

	if p.initCalls != 1 {
		t.Errorf("Initialize called %d times, want 1", p.initCalls)
	}
	if !first["solo"] || !second["solo"] {
		t.Errorf("recorded results changed: first %v, second %v", first, second)
	}
}

func TestDisabledPluginIsSkippedNotFailed(t *testing.T) {
	r := newEmptyRegistry()
	disabled := newFakePlugin("disabled")
	disabled.initErr = ErrDisabled

	if err := r.Register(disabled); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	results := r.InitializeAll(context.Background())
	if results["disabled"] {
		t.Error("disabled plugin reported as initialized")
	}
	if err := r.Healthz(nil); err != nil {
		t.Errorf("Healthz() = %v, want nil for a disabled plugin", err)
	}
	if err := r.RegisterAllHandlers(nil); err != nil {
		t.Fatalf("RegisterAllHandlers() error = %v", err)
	}
	if disabled.handlerCalls != 0 {
		t.Errorf("handlers registered for a disabled plugin %d times", disabled.handlerCalls)
	}
}

func TestRegisterAllHandlersSkipsUninitialized(t *testing.T) {
	r := newEmptyRegistry()
	good := newFakePlugin("good")
	bad := newFakePlugin("bad")
	bad.initErr = errors.New("no connection")

	for _, p := range []*fakePlugin{good, bad} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p.name, err)
		}
	}
	r.InitializeAll(context.Background())

	if err := r.RegisterAllHandlers(nil); err != nil {
		t.Fatalf("RegisterAllHandlers() error = %v", err)
	}
	if good.handlerCalls != 1 {
		t.Errorf("good handlers registered %d times, want 1", good.handlerCalls)
	}
	if bad.handlerCalls != 0 {
		t.Errorf("bad handlers registered %d times, want 0", bad.handlerCalls)
	}
}

func TestShutdownAllBestEffortReverseOrder(t *testing.T) {
	r := newEmptyRegistry()
	var order []string
	first := newFakePlugin("first")
	first.shutdownLog = &order
	first.shutdownErr = errors.New("hang up")
	second := newFakePlugin("second")
	second.shutdownLog = &order

	for _, p := range []*fakePlugin{first, second} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p.name, err)
		}
	}
	r.InitializeAll(context.Background())
	r.ShutdownAll(context.Background())

	if first.shutdownCalls != 1 || second.shutdownCalls != 1 {
		t.Errorf("shutdown calls = %d/%d, want 1/1 despite the error", first.shutdownCalls, second.shutdownCalls)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("shutdown order = %v, want reverse wiring order", order)
	}
}

func TestHealthzReportsFailures(t *testing.T) {
	r := newEmptyRegistry()
	good := newFakePlugin("good")
	bad := newFakePlugin("bad")
	bad.initErr = errors.New("no connection")

	for _, p := range []*fakePlugin{good, bad} {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p.name, err)
		}
	}
	r.InitializeAll(context.Background())

	err := r.Healthz(nil)
	if err == nil {
		t.Fatal("Healthz() = nil, want failure for the broken plugin")
	}

	// A plugin that degrades after startup also fails the check.
	good.health = Health{Healthy: false, Message: "lost connection"}
	if err := r.Healthz(nil); err == nil {
		t.Error("Healthz() = nil, want failure for a degraded plugin")
	}
}

func TestDiscoverBuiltins(t *testing.T) {
	cfg := config.Default()
	kinds := kindregistry.NewRegistry(quietLogger())
	r := NewRegistry(Deps{Config: &cfg, Logger: quietLogger(), Kinds: kinds})

	if err := r.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	names := make(map[string]bool)
	for _, p := range r.Plugins() {
		names[p.Name()] = true
	}
	for _, want := range []string{"identity", "workspace", "provisioner"} {
		if !names[want] {
			t.Errorf("builtin plugin %q not discovered", want)
		}
	}

	if err := r.RegisterKinds(); err != nil {
		t.Fatalf("RegisterKinds() error = %v", err)
	}
	if got := kinds.Len(); got != 6 {
		t.Errorf("registered kinds = %d, want 6", got)
	}
}
