// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package vdiinstance

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/cluster"
	"github.com/crucible-dev/crucible/internal/controller"
)

const (
	// WorkspaceCleanupFinalizer removes the workspace pod and service before
	// the VDIInstance is deleted. Owner references cover the crash window;
	// the finalizer makes the teardown explicit and observable.
	WorkspaceCleanupFinalizer = "crucible.dev/vdiinstance-cleanup"
)

// ensureFinalizer ensures the finalizer is added to the instance. Returns
// true if the finalizer was added in this call.
func (r *Reconciler) ensureFinalizer(ctx context.Context, vdi *workspacev1alpha1.VDIInstance) (bool, error) {
	if !vdi.DeletionTimestamp.IsZero() {
		return false, nil
	}

	if controllerutil.AddFinalizer(vdi, WorkspaceCleanupFinalizer) {
		return true, r.Update(ctx, vdi)
	}

	return false, nil
}

// finalize deletes the workspace pod and service. Both deletions treat an
// already absent object as success, so repeated finalize passes converge.
func (r *Reconciler) finalize(ctx context.Context, old, vdi *workspacev1alpha1.VDIInstance) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("vdiinstance", vdi.Name)

	if !controllerutil.ContainsFinalizer(vdi, WorkspaceCleanupFinalizer) {
		return ctrl.Result{}, nil
	}

	if meta.SetStatusCondition(&vdi.Status.Conditions, NewWorkspaceFinalizingCondition(vdi.Generation)) {
		return controller.UpdateStatusConditionsAndReturn(ctx, r.Client, old, vdi)
	}

	if err := cluster.DeleteWorkspacePod(ctx, r.Client, vdi.Namespace, vdi.PodName()); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to delete workspace pod: %w", err)
	}

	serviceName := cluster.WorkspaceServiceName(vdi.Spec.User, vdi.Spec.Project)
	if err := cluster.DeleteWorkspaceService(ctx, r.Client, vdi.Namespace, serviceName); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to delete workspace service: %w", err)
	}

	if controllerutil.RemoveFinalizer(vdi, WorkspaceCleanupFinalizer) {
		if err := r.Update(ctx, vdi); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
		}
	}

	logger.Info("Successfully finalized VDI instance")
	return ctrl.Result{}, nil
}
