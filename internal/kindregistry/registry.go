// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package kindregistry maintains the catalogue of custom resource kinds the
// operator serves and generates their CRD manifests from the Go spec types.
// The registry is a plain dependency constructed in main and handed to the
// plugins that contribute kinds.
package kindregistry

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
)

// Descriptor declares one custom resource kind. The identity key is
// (Group, Version, Kind); naming fields left empty are derived from Kind.
type Descriptor struct {
	Group   string
	Version string
	Kind    string

	// Plural resource name. Defaults to lowercase kind + "s".
	Plural string

	// Singular resource name. Defaults to lowercase kind.
	Singular string

	// ShortNames for kubectl. Defaults to the first three runes of the
	// singular name.
	ShortNames []string

	// Scope of the resource. Defaults to namespaced.
	Scope extv1.ResourceScope

	// SpecType is the Go struct the spec schema is generated from.
	SpecType reflect.Type
}

// withDefaults returns a copy with the derived naming fields filled in.
func (d Descriptor) withDefaults() Descriptor {
	if d.Plural == "" {
		d.Plural = strings.ToLower(d.Kind) + "s"
	}
	if d.Singular == "" {
		d.Singular = strings.ToLower(d.Kind)
	}
	if len(d.ShortNames) == 0 {
		runes := []rune(d.Singular)
		if len(runes) > 3 {
			runes = runes[:3]
		}
		d.ShortNames = []string{string(runes)}
	}
	if d.Scope == "" {
		d.Scope = extv1.NamespaceScoped
	}
	return d
}

func (d Descriptor) validate() error {
	if d.Group == "" || d.Version == "" || d.Kind == "" {
		return fmt.Errorf("descriptor requires group, version and kind, got %q/%q/%q", d.Group, d.Version, d.Kind)
	}
	if d.SpecType == nil {
		return fmt.Errorf("descriptor %s/%s %s has no spec type", d.Group, d.Version, d.Kind)
	}
	if d.SpecType.Kind() == reflect.Pointer {
		d.SpecType = d.SpecType.Elem()
	}
	if d.SpecType.Kind() != reflect.Struct {
		return fmt.Errorf("descriptor %s/%s %s spec type must be a struct, got %s", d.Group, d.Version, d.Kind, d.SpecType.Kind())
	}
	return nil
}

// CRDName is the metadata name of the generated CustomResourceDefinition.
func (d Descriptor) CRDName() string {
	return d.Plural + "." + d.Group
}

func (d Descriptor) key() string {
	return d.Group + "/" + d.Version + "/" + d.Kind
}

// Registry records the kinds contributed by the plugins. Registrations are
// keyed by (group, version, kind); re-registering a key with a different spec
// type replaces the entry and logs a warning so live-reload style repeated
// registration never fails.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	kinds    map[string]Descriptor
	lastHash string
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		kinds:  make(map[string]Descriptor),
	}
}

// Register records a kind. Registering the same key again with the same spec
// type is a no-op; a different spec type replaces the entry with a warning.
func (r *Registry) Register(desc Descriptor) error {
	if err := desc.validate(); err != nil {
		return err
	}
	desc = desc.withDefaults()
	if desc.SpecType.Kind() == reflect.Pointer {
		desc.SpecType = desc.SpecType.Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := desc.key()
	if existing, ok := r.kinds[key]; ok {
		if existing.SpecType == desc.SpecType {
			return nil
		}
		r.logger.Warn("replacing registered kind with a different spec type",
			"kind", key,
			"old", existing.SpecType.String(),
			"new", desc.SpecType.String())
	}
	r.kinds[key] = desc
	return nil
}

// Descriptors returns a snapshot of the registered kinds sorted by
// group/version/kind.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Descriptor, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.kinds[k])
	}
	return out
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}
