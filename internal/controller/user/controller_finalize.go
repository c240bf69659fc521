// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package user

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
	// UserCleanupFinalizer is the finalizer that is used to remove the
	// identity-provider account before the User object disappears.
	UserCleanupFinalizer = "crucible.dev/user-cleanup"
)

// ensureFinalizer ensures that the finalizer is added to the user.
// The first return value indicates whether the finalizer was added by this call.
func (r *Reconciler) ensureFinalizer(ctx context.Context, user *identityv1alpha1.User) (bool, error) {
	// If the user is being deleted, no need to add the finalizer
	if !user.DeletionTimestamp.IsZero() {
		return false, nil
	}

	if controllerutil.AddFinalizer(user, UserCleanupFinalizer) {
		return true, r.Update(ctx, user)
	}

	return false, nil
}

// finalize removes the identity-provider account. Per-project workspace
// volumes are intentionally retained: a re-added user finds them intact, and
// the owning Project deletes them together with its namespace.
func (r *Reconciler) finalize(ctx context.Context, old, user *identityv1alpha1.User) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("user", user.Name)

	if !controllerutil.ContainsFinalizer(user, UserCleanupFinalizer) {
		// Nothing to do if the finalizer is not present
		return ctrl.Result{}, nil
	}

	// Mark the condition as finalizing and return so that the user will
	// indicate it is being finalized. The actual deletion happens in the next
	// reconcile triggered by the status update.
	if meta.SetStatusCondition(&user.Status.Conditions, NewUserFinalizingCondition(user.Generation)) {
		return controller.UpdateStatusConditionsAndReturn(ctx, r.Client, old, user)
	}

	if err := r.Identity.DeleteUser(ctx, user.Name); err != nil {
		logger.Error(err, "Failed to delete identity-provider account")
		return ctrl.Result{}, err
	}
	metrics.IdentitySyncOperations.WithLabelValues("user", "delete").Inc()

	if controllerutil.RemoveFinalizer(user, UserCleanupFinalizer) {
		if err := r.Update(ctx, user); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
		}
	}

	logger.Info("Successfully finalized user")
	return ctrl.Result{}, nil
}
