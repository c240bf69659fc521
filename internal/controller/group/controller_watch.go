// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package group

import (
	"context"
	"slices"

	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

// listGroupsForUser maps a User event to the Groups its spec.groups name.
// The names become requests directly; groups that do not exist resolve to
// no-op reconciles.
func (r *Reconciler) listGroupsForUser(ctx context.Context, obj client.Object) []ctrl.Request {
	user, ok := obj.(*identityv1alpha1.User)
	if !ok {
		return nil
	}

	requests := make([]ctrl.Request, 0, len(user.Spec.Groups))
	for _, groupName := range user.Spec.Groups {
		requests = append(requests, ctrl.Request{
			NamespacedName: types.NamespacedName{Namespace: user.Namespace, Name: groupName},
		})
	}
	return requests
}

// listGroupsForProject maps a Project event to the Groups that declare it.
func (r *Reconciler) listGroupsForProject(ctx context.Context, obj client.Object) []ctrl.Request {
	project, ok := obj.(*workspacev1alpha1.Project)
	if !ok {
		return nil
	}

	groupList := &identityv1alpha1.GroupList{}
	if err := r.List(ctx, groupList); err != nil {
		return nil
	}

	var requests []ctrl.Request
	for _, group := range groupList.Items {
		if slices.Contains(group.Spec.Projects, project.Name) {
			requests = append(requests, ctrl.Request{
				NamespacedName: types.NamespacedName{Namespace: group.Namespace, Name: group.Name},
			})
		}
	}
	return requests
}
