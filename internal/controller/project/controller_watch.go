// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/controller"
)

// listProjectsForUser maps a User to the Projects whose declared teams
// reference any of the user's groups, so membership changes re-run the team
// sync.
func (r *Reconciler) listProjectsForUser(ctx context.Context, obj client.Object) []ctrl.Request {
	user, ok := obj.(*identityv1alpha1.User)
	if !ok {
		return nil
	}
	return r.listProjectsForGroups(ctx, user.Namespace, user.Spec.Groups)
}

// listProjectsForGroup maps a Group to the Projects whose declared teams
// reference it.
func (r *Reconciler) listProjectsForGroup(ctx context.Context, obj client.Object) []ctrl.Request {
	group, ok := obj.(*identityv1alpha1.Group)
	if !ok {
		return nil
	}
	return r.listProjectsForGroups(ctx, group.Namespace, []string{group.Name})
}

func (r *Reconciler) listProjectsForGroups(ctx context.Context, namespace string, groups []string) []ctrl.Request {
	seen := make(map[string]bool)
	var requests []ctrl.Request
	for _, groupName := range groups {
		projectList := &workspacev1alpha1.ProjectList{}
		if err := r.List(ctx, projectList,
			client.InNamespace(namespace),
			client.MatchingFields{controller.IndexKeyProjectTeamGroupName: groupName}); err != nil {
			continue
		}
		for _, project := range projectList.Items {
			if seen[project.Name] {
				continue
			}
			seen[project.Name] = true
			requests = append(requests, ctrl.Request{
				NamespacedName: client.ObjectKey{Namespace: project.Namespace, Name: project.Name},
			})
		}
	}
	return requests
}
