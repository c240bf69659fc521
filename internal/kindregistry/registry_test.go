// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package kindregistry

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
)

type widgetSpec struct {
	Size     string `json:"size"`
	Replicas int32  `json:"replicas,omitempty"`
}

type widgetSpecV2 struct {
	Size  string `json:"size"`
	Color string `json:"color,omitempty"`
}

type gadgetSpec struct {
	Enabled bool `json:"enabled,omitempty"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func widgetDescriptor() Descriptor {
	return Descriptor{
		Group:    "things.crucible.dev",
		Version:  "v1alpha1",
		Kind:     "Widget",
		SpecType: reflect.TypeOf(widgetSpec{}),
	}
}

func TestRegistry_RegisterAppliesNamingDefaults(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(widgetDescriptor()); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	descs := r.Descriptors()
	if len(descs) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(descs))
	}
	d := descs[0]
	if d.Plural != "widgets" {
		t.Errorf("plural = %q, want widgets", d.Plural)
	}
	if d.Singular != "widget" {
		t.Errorf("singular = %q, want widget", d.Singular)
	}
	if len(d.ShortNames) != 1 || d.ShortNames[0] != "wid" {
		t.Errorf("shortNames = %v, want [wid]", d.ShortNames)
	}
	if d.CRDName() != "widgets.things.crucible.dev" {
		t.Errorf("CRD name = %q", d.CRDName())
	}
}

func TestRegistry_RegisterRejectsInvalidDescriptors(t *testing.T) {
	r := NewRegistry(testLogger())

	if err := r.Register(Descriptor{Version: "v1", Kind: "X", SpecType: reflect.TypeOf(widgetSpec{})}); err == nil {
		t.Error("expected error for missing group")
	}
	if err := r.Register(Descriptor{Group: "g", Version: "v1", Kind: "X"}); err == nil {
		t.Error("expected error for nil spec type")
	}
	if err := r.Register(Descriptor{Group: "g", Version: "v1", Kind: "X", SpecType: reflect.TypeOf("")}); err == nil {
		t.Error("expected error for non-struct spec type")
	}
}

func TestRegistry_ReRegistrationSameTypeIsNoOp(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(widgetDescriptor()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(widgetDescriptor()); err != nil {
		t.Fatalf("repeat Register must not fail: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 kind, got %d", r.Len())
	}
}

func TestRegistry_ReRegistrationDifferentTypeReplaces(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(widgetDescriptor()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	replaced := widgetDescriptor()
	replaced.SpecType = reflect.TypeOf(widgetSpecV2{})
	if err := r.Register(replaced); err != nil {
		t.Fatalf("replacement Register must not fail: %v", err)
	}

	descs := r.Descriptors()
	if len(descs) != 1 {
		t.Fatalf("expected 1 descriptor after replacement, got %d", len(descs))
	}
	if descs[0].SpecType != reflect.TypeOf(widgetSpecV2{}) {
		t.Errorf("spec type not replaced, got %s", descs[0].SpecType)
	}
}

func TestRegistry_DescriptorsSorted(t *testing.T) {
	r := NewRegistry(testLogger())
	kinds := []string{"Zeta", "Alpha", "Mid"}
	for _, k := range kinds {
		if err := r.Register(Descriptor{
			Group:    "things.crucible.dev",
			Version:  "v1alpha1",
			Kind:     k,
			SpecType: reflect.TypeOf(gadgetSpec{}),
		}); err != nil {
			t.Fatalf("Register %s: %v", k, err)
		}
	}

	descs := r.Descriptors()
	got := []string{descs[0].Kind, descs[1].Kind, descs[2].Kind}
	want := []string{"Alpha", "Mid", "Zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("descriptor order = %v, want %v", got, want)
	}
}
