// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package cluster materializes the Kubernetes footprint of projects and
// workspaces: the project namespace with its quota, limit range, hub role
// binding and isolation policy, per-user home volumes, and the pod/service
// pair backing each virtual desktop. Every operation is an idempotent
// ensure; deletes treat absence as success.
package cluster

import (
	"context"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/labels"
)

// ResourceHandler defines the operations for managing one cluster resource
// derived from a custom resource.
type ResourceHandler[T any] interface {
	// Name returns the name of the resource handler.
	Name() string

	// GetCurrentState returns the current state of the resource, or nil
	// when the resource does not exist.
	GetCurrentState(ctx context.Context, resourceCtx *T) (any, error)

	// Create creates the resource.
	Create(ctx context.Context, resourceCtx *T) error

	// Update brings an existing resource to the desired state.
	Update(ctx context.Context, resourceCtx *T, currentState any) error

	// Delete removes the resource.
	Delete(ctx context.Context, resourceCtx *T) error
}

// ProjectContext holds the data the project resource handlers need to
// materialize one project's cluster footprint.
type ProjectContext struct {
	Project *workspacev1alpha1.Project
	Quota   QuotaDefaults
	Limits  LimitRangeDefaults
	Hub     HubAccess
	Network NetworkParams
}

// makeProjectResourceLabels returns the label set applied to every cluster
// resource managed for a project.
func makeProjectResourceLabels(project *workspacev1alpha1.Project, resourceType string) map[string]string {
	return map[string]string{
		labels.LabelKeyManagedBy:    labels.LabelValueManagedBy,
		labels.LabelKeyResourceType: resourceType,
		labels.LabelKeyProjectName:  project.Name,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
