// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githostclient

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	"github.com/crucible-dev/crucible/internal/controller"
)

const (
	// SourceCleanupFinalizer is the finalizer that is used to remove the OAuth
	// source from the git host before the GitHostClient object disappears.
	SourceCleanupFinalizer = "crucible.dev/githostclient-cleanup"
)

// ensureFinalizer ensures that the finalizer is added to the client.
// The first return value indicates whether the finalizer was added by this call.
func (r *Reconciler) ensureFinalizer(ctx context.Context, ghc *identityv1alpha1.GitHostClient) (bool, error) {
	// If the client is being deleted, no need to add the finalizer
	if !ghc.DeletionTimestamp.IsZero() {
		return false, nil
	}

	if controllerutil.AddFinalizer(ghc, SourceCleanupFinalizer) {
		return true, r.Update(ctx, ghc)
	}

	return false, nil
}

// finalize removes the OAuth source from the git host. When the credentials
// are no longer resolvable the removal is skipped rather than blocking the
// deletion forever.
func (r *Reconciler) finalize(ctx context.Context, old, ghc *identityv1alpha1.GitHostClient) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("gitHostClient", ghc.Name)

	if !controllerutil.ContainsFinalizer(ghc, SourceCleanupFinalizer) {
		// Nothing to do if the finalizer is not present
		return ctrl.Result{}, nil
	}

	// Mark the condition as finalizing and return so that the client will
	// indicate it is being finalized. The actual deletion happens in the next
	// reconcile triggered by the status update.
	if meta.SetStatusCondition(&ghc.Status.Conditions, NewSourceFinalizingCondition(ghc.Generation)) {
		return controller.UpdateStatusConditionsAndReturn(ctx, r.Client, old, ghc)
	}

	if creds, err := r.resolveCredentials(ctx, ghc); err != nil {
		logger.Info("Skipping OAuth source removal, credentials not resolvable", "reason", err.Error())
	} else {
		svc, err := r.sourceClient(ghc, creds)
		if err != nil {
			logger.Error(err, "Failed to build git host client")
			return ctrl.Result{}, err
		}
		if err := svc.DeleteOAuthSource(ctx, ghc.OAuthSourceName()); err != nil {
			logger.Error(err, "Failed to delete OAuth source")
			return ctrl.Result{}, err
		}
	}

	if controllerutil.RemoveFinalizer(ghc, SourceCleanupFinalizer) {
		if err := r.Update(ctx, ghc); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
		}
	}

	logger.Info("Successfully finalized git host client")
	return ctrl.Result{}, nil
}
