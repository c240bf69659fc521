// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identityclient

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
	// ClientCleanupFinalizer is the finalizer that is used to remove the
	// provider OAuth client before the IdentityClient object disappears.
	ClientCleanupFinalizer = "crucible.dev/identityclient-cleanup"
)

// ensureFinalizer ensures that the finalizer is added to the client.
// The first return value indicates whether the finalizer was added by this call.
func (r *Reconciler) ensureFinalizer(ctx context.Context, ic *identityv1alpha1.IdentityClient) (bool, error) {
	// If the client is being deleted, no need to add the finalizer
	if !ic.DeletionTimestamp.IsZero() {
		return false, nil
	}

	if controllerutil.AddFinalizer(ic, ClientCleanupFinalizer) {
		return true, r.Update(ctx, ic)
	}

	return false, nil
}

// finalize removes the provider OAuth client. An already absent client is
// success.
func (r *Reconciler) finalize(ctx context.Context, old, ic *identityv1alpha1.IdentityClient) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("clientId", ic.Spec.ClientID)

	if !controllerutil.ContainsFinalizer(ic, ClientCleanupFinalizer) {
		// Nothing to do if the finalizer is not present
		return ctrl.Result{}, nil
	}

	// Mark the condition as finalizing and return so that the client will
	// indicate it is being finalized. The actual deletion happens in the next
	// reconcile triggered by the status update.
	if meta.SetStatusCondition(&ic.Status.Conditions, NewClientFinalizingCondition(ic.Generation)) {
		return controller.UpdateStatusConditionsAndReturn(ctx, r.Client, old, ic)
	}

	if err := r.Identity.DeleteClient(ctx, ic.Spec.ClientID); err != nil {
		logger.Error(err, "Failed to delete provider OAuth client")
		return ctrl.Result{}, err
	}
	metrics.IdentitySyncOperations.WithLabelValues("client", "delete").Inc()

	if controllerutil.RemoveFinalizer(ic, ClientCleanupFinalizer) {
		if err := r.Update(ctx, ic); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
		}
	}

	logger.Info("Successfully finalized identity client")
	return ctrl.Result{}, nil
}
