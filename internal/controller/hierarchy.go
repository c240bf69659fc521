// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

// This file contains the helper functions to resolve referenced parent
// objects from the Kubernetes objects.

// HierarchyNotFoundError indicates that a referenced parent object does not
// exist. Reconcilers treat it as a configuration problem rather than a
// transient failure, so it does not trigger a retry.
type HierarchyNotFoundError struct {
	objInfo    string
	parentInfo string
}

func (e *HierarchyNotFoundError) Error() string {
	return fmt.Sprintf("%s refers to a non-existent %s", e.objInfo, e.parentInfo)
}

// NewHierarchyNotFoundError creates a new error with the given object and
// parent object details.
func NewHierarchyNotFoundError(obj client.Object, parentObj client.Object) error {
	getKindFn := func(obj client.Object) string {
		if !obj.GetObjectKind().GroupVersionKind().Empty() {
			return obj.GetObjectKind().GroupVersionKind().Kind
		}
		// If the object is initialized without setting the GVK, use the type name.
		return reflect.TypeOf(obj).Elem().Name()
	}

	genInfoFn := func(obj client.Object) string {
		return fmt.Sprintf("%s '%s'", strings.ToLower(getKindFn(obj)), obj.GetName())
	}

	return &HierarchyNotFoundError{
		objInfo:    genInfoFn(obj),
		parentInfo: genInfoFn(parentObj),
	}
}

// IgnoreHierarchyNotFoundError returns nil if the given error is a
// HierarchyNotFoundError. This is useful during the reconciliation process to
// avoid retrying when the parent object is not found.
func IgnoreHierarchyNotFoundError(err error) error {
	if err == nil {
		return nil
	}
	var notFoundErr *HierarchyNotFoundError
	if errors.As(err, &notFoundErr) {
		return nil
	}
	return err
}

// HierarchyFunc resolves the target object that should be reconciled when the
// given source object changes. Used with HierarchyWatchHandler.
type HierarchyFunc[T any] func(ctx context.Context, c client.Client, obj client.Object) (T, error)

func objWithName(obj client.Object, name string) client.Object {
	obj.SetName(name)
	return obj
}

// GetProjectByName resolves a Project by its object name. Projects live in
// the control namespaces while workspaces live in the materialized project
// namespaces, so the lookup spans all watched namespaces.
func GetProjectByName(ctx context.Context, c client.Client, obj client.Object, projectName string) (*workspacev1alpha1.Project, error) {
	projectList := &workspacev1alpha1.ProjectList{}
	if err := c.List(ctx, projectList); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	for i := range projectList.Items {
		if projectList.Items[i].Name == projectName {
			return &projectList.Items[i], nil
		}
	}

	return nil, NewHierarchyNotFoundError(obj, objWithName(&workspacev1alpha1.Project{}, projectName))
}

// GetGroup resolves a Group in the same namespace as the given object.
func GetGroup(ctx context.Context, c client.Client, obj client.Object, groupName string) (*identityv1alpha1.Group, error) {
	group := &identityv1alpha1.Group{}
	key := client.ObjectKey{Namespace: obj.GetNamespace(), Name: groupName}
	if err := c.Get(ctx, key, group); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, NewHierarchyNotFoundError(obj, objWithName(&identityv1alpha1.Group{}, groupName))
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}
