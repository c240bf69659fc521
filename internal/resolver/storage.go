// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolver implements layered configuration resolution for workspace
// storage and scheduling. Values resolve instance > project > operator
// default; the result is ephemeral and recomputed on every reconcile.
package resolver

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

// StorageDefaults carries the operator-level storage configuration.
type StorageDefaults struct {
	// Size is the default volume size used when neither instance nor
	// project supplies one. Empty means no default.
	Size string

	// MaxSize caps the resolved size regardless of which layer supplied
	// it. Empty means no ceiling.
	MaxSize string

	// Class is the default storage class.
	Class string
}

// Storage is the resolved storage request for one volume. The zero value
// means no layer supplied a size and callers must skip provisioning instead
// of creating a zero-size volume.
type Storage struct {
	Size  resource.Quantity
	Class string
}

// Empty reports whether no storage was resolved.
func (s Storage) Empty() bool {
	return s.Size.IsZero() && s.Class == ""
}

// ResolveStorage resolves the effective storage request from the instance
// override, the project override, and the operator defaults. Size and class
// resolve independently, each taking the first non-empty value in priority
// order. When no layer supplies a size the zero Storage is returned. When a
// ceiling is configured the resolved size is clamped to it; the comparison
// uses Kubernetes quantity semantics, so binary (Ki/Mi/Gi/Ti) and decimal
// (K/M/G/T) suffixes compare by byte value.
func ResolveStorage(instance, project *workspacev1alpha1.StorageSpec, def StorageDefaults) (Storage, error) {
	size := firstNonEmpty(storageSize(instance), storageSize(project), def.Size)
	if size == "" {
		return Storage{}, nil
	}

	qty, err := resource.ParseQuantity(size)
	if err != nil {
		return Storage{}, fmt.Errorf("invalid storage size %q: %w", size, err)
	}

	if def.MaxSize != "" {
		ceiling, err := resource.ParseQuantity(def.MaxSize)
		if err != nil {
			return Storage{}, fmt.Errorf("invalid storage ceiling %q: %w", def.MaxSize, err)
		}
		if qty.Cmp(ceiling) > 0 {
			qty = ceiling
		}
	}

	return Storage{
		Size:  qty,
		Class: firstNonEmpty(storageClass(instance), storageClass(project), def.Class),
	}, nil
}

func storageSize(s *workspacev1alpha1.StorageSpec) string {
	if s == nil {
		return ""
	}
	return s.Size
}

func storageClass(s *workspacev1alpha1.StorageSpec) string {
	if s == nil {
		return ""
	}
	return s.StorageClass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
