// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package group

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	"github.com/crucible-dev/crucible/internal/controller"
	"github.com/crucible-dev/crucible/internal/metrics"
)

const (
	// GroupCleanupFinalizer is the finalizer that is used to remove the
	// identity-provider group before the Group object disappears.
	GroupCleanupFinalizer = "crucible.dev/group-cleanup"
)

// ensureFinalizer ensures that the finalizer is added to the group.
// The first return value indicates whether the finalizer was added by this call.
func (r *Reconciler) ensureFinalizer(ctx context.Context, group *identityv1alpha1.Group) (bool, error) {
	// If the group is being deleted, no need to add the finalizer
	if !group.DeletionTimestamp.IsZero() {
		return false, nil
	}

	if controllerutil.AddFinalizer(group, GroupCleanupFinalizer) {
		return true, r.Update(ctx, group)
	}

	return false, nil
}

// finalize removes the identity-provider group. Member volumes and git-host
// teams belong to their projects and are cleaned up with them.
func (r *Reconciler) finalize(ctx context.Context, old, group *identityv1alpha1.Group) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("group", group.Name)

	if !controllerutil.ContainsFinalizer(group, GroupCleanupFinalizer) {
		// Nothing to do if the finalizer is not present
		return ctrl.Result{}, nil
	}

	// Mark the condition as finalizing and return so that the group will
	// indicate it is being finalized. The actual deletion happens in the next
	// reconcile triggered by the status update.
	if meta.SetStatusCondition(&group.Status.Conditions, NewGroupFinalizingCondition(group.Generation)) {
		return controller.UpdateStatusConditionsAndReturn(ctx, r.Client, old, group)
	}

	if err := r.Identity.DeleteGroup(ctx, group.Name); err != nil {
		logger.Error(err, "Failed to delete identity-provider group")
		return ctrl.Result{}, err
	}
	metrics.IdentitySyncOperations.WithLabelValues("group", "delete").Inc()

	if controllerutil.RemoveFinalizer(group, GroupCleanupFinalizer) {
		if err := r.Update(ctx, group); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
		}
	}

	logger.Info("Successfully finalized group")
	return ctrl.Result{}, nil
}
