// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"fmt"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

// Shared field index keys for use across controllers.
// These constants ensure consistency when multiple controllers need to use the same field index.
const (
	// IndexKeyUserGroupName indexes User by each group name in spec.groups.
	IndexKeyUserGroupName = "user.spec.groups"

	// IndexKeyProjectTeamGroupName indexes Project by each group name
	// referenced from a git-host team.
	IndexKeyProjectTeamGroupName = "project.spec.gitHost.teams.groups"
)

// SetupSharedIndexes registers field indexes that are shared across multiple controllers.
// This must be called before any controllers are set up with the manager.
func SetupSharedIndexes(ctx context.Context, mgr ctrl.Manager) error {
	if err := mgr.GetFieldIndexer().IndexField(ctx, &identityv1alpha1.User{},
		IndexKeyUserGroupName, func(obj client.Object) []string {
			user := obj.(*identityv1alpha1.User)
			if len(user.Spec.Groups) == 0 {
				return nil
			}
			return user.Spec.Groups
		}); err != nil {
		return fmt.Errorf("failed to setup User group index: %w", err)
	}

	if err := mgr.GetFieldIndexer().IndexField(ctx, &workspacev1alpha1.Project{},
		IndexKeyProjectTeamGroupName, func(obj client.Object) []string {
			project := obj.(*workspacev1alpha1.Project)
			if project.Spec.GitHost == nil {
				return nil
			}
			var groups []string
			for _, team := range project.Spec.GitHost.Teams {
				groups = append(groups, team.Groups...)
			}
			return groups
		}); err != nil {
		return fmt.Errorf("failed to setup Project team group index: %w", err)
	}

	return nil
}

// HierarchyWatchHandler is a function that creates a watch handler for a specific hierarchy.
// It can be used to watch from parent object for child object updates.
// The hierarchyFunc should return the target object that is being watched given the source object.
func HierarchyWatchHandler[From client.Object, To client.Object](
	c client.Client,
	hierarchyFunc HierarchyFunc[To],
) func(ctx context.Context, obj client.Object) []reconcile.Request {
	return func(ctx context.Context, obj client.Object) []reconcile.Request {
		fromObj, ok := obj.(From)
		if !ok {
			return nil
		}

		toObj, err := hierarchyFunc(ctx, c, fromObj)
		if err != nil {
			return nil
		}

		return []reconcile.Request{{
			NamespacedName: client.ObjectKey{
				Namespace: toObj.GetNamespace(),
				Name:      toObj.GetName(),
			},
		}}
	}
}
