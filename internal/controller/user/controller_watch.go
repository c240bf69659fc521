// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package user

import (
	"context"
	"slices"

	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/controller"
)

// listUsersForGroup maps a Group event to the Users whose spec.groups
// reference it.
func (r *Reconciler) listUsersForGroup(ctx context.Context, obj client.Object) []ctrl.Request {
	group, ok := obj.(*identityv1alpha1.Group)
	if !ok {
		return nil
	}

	userList := &identityv1alpha1.UserList{}
	if err := r.List(ctx, userList,
		client.InNamespace(group.Namespace),
		client.MatchingFields{controller.IndexKeyUserGroupName: group.Name}); err != nil {
		return nil
	}

	requests := make([]ctrl.Request, 0, len(userList.Items))
	for _, user := range userList.Items {
		requests = append(requests, ctrl.Request{
			NamespacedName: types.NamespacedName{Namespace: user.Namespace, Name: user.Name},
		})
	}
	return requests
}

// listUsersForProject maps a Project event to the Users that can reach it,
// either through a Group declaring the project or through one of the
// project's git-host teams.
func (r *Reconciler) listUsersForProject(ctx context.Context, obj client.Object) []ctrl.Request {
	project, ok := obj.(*workspacev1alpha1.Project)
	if !ok {
		return nil
	}

	groupNames := make(map[string]bool)

	groupList := &identityv1alpha1.GroupList{}
	if err := r.List(ctx, groupList); err != nil {
		return nil
	}
	for _, group := range groupList.Items {
		if slices.Contains(group.Spec.Projects, project.Name) {
			groupNames[group.Name] = true
		}
	}

	if project.Spec.GitHost != nil {
		for _, team := range project.Spec.GitHost.Teams {
			for _, groupName := range team.Groups {
				groupNames[groupName] = true
			}
		}
	}

	seen := make(map[types.NamespacedName]bool)
	var requests []ctrl.Request
	for groupName := range groupNames {
		userList := &identityv1alpha1.UserList{}
		if err := r.List(ctx, userList,
			client.MatchingFields{controller.IndexKeyUserGroupName: groupName}); err != nil {
			continue
		}
		for _, user := range userList.Items {
			key := types.NamespacedName{Namespace: user.Namespace, Name: user.Name}
			if seen[key] {
				continue
			}
			seen[key] = true
			requests = append(requests, ctrl.Request{NamespacedName: key})
		}
	}
	return requests
}
