// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	ctrl "sigs.k8s.io/controller-runtime"
)

// Registry holds the discovered plugins and drives their lifecycle:
// Discover, RegisterKinds, InitializeAll, RegisterAllHandlers, ShutdownAll.
type Registry struct {
	deps   Deps
	logger *slog.Logger

	mu        sync.Mutex
	factories []Factory
	order     []string
	plugins   map[string]Plugin
	results   map[string]initResult
}

type initResult struct {
	ok       bool
	disabled bool
	err      error
}

// NewRegistry returns a registry that will discover the built-in plugins
// plus any factories added before Discover.
func NewRegistry(deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		deps:    deps,
		logger:  logger,
		plugins: make(map[string]Plugin),
		results: make(map[string]initResult),
	}
}

// AddFactory appends a plugin factory to the discovery table. Must be called
// before Discover.
func (r *Registry) AddFactory(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = append(r.factories, f)
}

// Register records a plugin. A duplicate name is rejected; the first
// registration wins.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(p)
}

func (r *Registry) register(p Plugin) error {
	name := p.Name()
	if name == "" {
		return errors.New("plugin has an empty name")
	}
	if _, ok := r.plugins[name]; ok {
		r.logger.Warn("Ignoring duplicate plugin registration", "plugin", name)
		return fmt.Errorf("plugin %q is already registered", name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	r.logger.Info("Registered plugin", "plugin", name, "version", p.Version())
	return nil
}

// Discover instantiates the built-in factory table plus any added factories
// and registers each plugin. Duplicate names are skipped with an error in
// the joined result; the rest of the batch still registers.
func (r *Registry) Discover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, factory := range Builtins {
		if err := r.register(factory(r.deps)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, factory := range r.factories {
		if err := r.register(factory(r.deps)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegisterKinds records every plugin's custom resource kinds in the shared
// kind registry.
func (r *Registry) RegisterKinds() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range r.order {
		for _, desc := range r.plugins[name].Kinds() {
			if err := r.deps.Kinds.Register(desc); err != nil {
				errs = append(errs, fmt.Errorf("plugin %q: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// InitializeAll initializes every plugin exactly once and reports which ones
// succeeded. A panic or error in one plugin is recorded and does not stop
// the batch; repeated calls return the recorded results.
func (r *Registry) InitializeAll(ctx context.Context) map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]bool, len(r.order))
	for _, name := range r.order {
		res, done := r.results[name]
		if !done {
			res = initializePlugin(ctx, r.plugins[name])
			r.results[name] = res

			switch {
			case res.disabled:
				r.logger.Info("Skipping disabled plugin", "plugin", name)
			case res.err != nil:
				r.logger.Error("Plugin initialization failed", "plugin", name, "error", res.err)
			default:
				r.logger.Info("Initialized plugin", "plugin", name)
			}
		}
		out[name] = res.ok
	}
	return out
}

func initializePlugin(ctx context.Context, p Plugin) (res initResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = initResult{err: fmt.Errorf("plugin panicked during initialization: %v", rec)}
		}
	}()

	if err := p.Initialize(ctx); err != nil {
		if errors.Is(err, ErrDisabled) {
			return initResult{disabled: true}
		}
		return initResult{err: err}
	}
	return initResult{ok: true}
}

// InitializedCount returns how many plugins initialized successfully.
func (r *Registry) InitializedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, res := range r.results {
		if res.ok {
			n++
		}
	}
	return n
}

// RegisterAllHandlers wires the reconcilers of every successfully
// initialized plugin into the manager.
func (r *Registry) RegisterAllHandlers(mgr ctrl.Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range r.order {
		if !r.results[name].ok {
			continue
		}
		if err := r.plugins[name].RegisterHandlers(mgr); err != nil {
			errs = append(errs, fmt.Errorf("plugin %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ShutdownAll shuts down the initialized plugins in reverse wiring order.
// Errors are logged and swallowed.
func (r *Registry) ShutdownAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if !r.results[name].ok {
			continue
		}
		if err := r.plugins[name].Shutdown(ctx); err != nil {
			r.logger.Error("Plugin shutdown failed", "plugin", name, "error", err)
		}
	}
}

// Plugins returns the registered plugins in wiring order.
func (r *Registry) Plugins() []Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.plugins[name])
	}
	return out
}

// Healthz reports the registry state as a manager health check. A plugin
// that failed to initialize or reports itself unhealthy fails the check, so
// a restart retries its initialization.
func (r *Registry) Healthz(*http.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var unhealthy []string
	for _, name := range r.order {
		res := r.results[name]
		if res.err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("%s: %v", name, res.err))
			continue
		}
		if !res.ok {
			continue
		}
		if h := r.plugins[name].Health(); !h.Healthy {
			unhealthy = append(unhealthy, fmt.Sprintf("%s: %s", name, h.Message))
		}
	}
	if len(unhealthy) > 0 {
		return errors.New("unhealthy plugins: " + strings.Join(unhealthy, "; "))
	}
	return nil
}
