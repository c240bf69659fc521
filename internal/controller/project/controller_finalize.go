// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/cluster"
	"github.com/crucible-dev/crucible/internal/controller"
)

const (
	// ProjectCleanupFinalizer is the finalizer that is used to clean up the
	// project namespace and git-host organization.
	ProjectCleanupFinalizer = "crucible.dev/project-cleanup"
)

// ensureFinalizer ensures that the finalizer is added to the project.
// The first return value indicates whether the finalizer was added by this call.
func (r *Reconciler) ensureFinalizer(ctx context.Context, project *workspacev1alpha1.Project) (bool, error) {
	// If the project is being deleted, no need to add the finalizer
	if !project.DeletionTimestamp.IsZero() {
		return false, nil
	}

	if controllerutil.AddFinalizer(project, ProjectCleanupFinalizer) {
		return true, r.Update(ctx, project)
	}

	return false, nil
}

// finalize removes the git-host organization and the project namespace. The
// namespace delete cascades to everything the project owns, so the finalizer
// is held until the namespace has actually disappeared.
func (r *Reconciler) finalize(ctx context.Context, old, project *workspacev1alpha1.Project) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("project", project.Name)

	if !controllerutil.ContainsFinalizer(project, ProjectCleanupFinalizer) {
		// Nothing to do if the finalizer is not present
		return ctrl.Result{}, nil
	}

	// Mark the condition as finalizing and return so that the project will
	// indicate it is being finalized. The actual deletion happens in the next
	// reconcile triggered by the status update.
	if meta.SetStatusCondition(&project.Status.Conditions, NewProjectFinalizingCondition(project.Generation)) {
		return controller.UpdateStatusConditionsAndReturn(ctx, r.Client, old, project)
	}

	// The organization is best-effort: a gone or unreachable git host must
	// not wedge the project deletion.
	if r.GitHost != nil && project.GitHostEnabled() {
		if err := r.GitHost.DeleteOrg(ctx, project.Name); err != nil {
			logger.Error(err, "Failed to delete git-host organization")
		}
	}

	deleted, err := r.deleteExternalResourcesAndWait(ctx, project)
	if err != nil {
		logger.Error(err, "Failed to delete external resources")
		return ctrl.Result{}, err
	}
	if !deleted {
		logger.Info("External resources are still being deleted")
		return ctrl.Result{RequeueAfter: 5 * time.Second}, nil
	}

	if controllerutil.RemoveFinalizer(project, ProjectCleanupFinalizer) {
		if err := r.Update(ctx, project); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
		}
	}

	logger.Info("Successfully finalized project")
	return ctrl.Result{}, nil
}

// deleteExternalResourcesAndWait triggers deletion of the namespace and
// reports whether it is gone. Called repeatedly until everything disappeared.
func (r *Reconciler) deleteExternalResourcesAndWait(ctx context.Context, project *workspacev1alpha1.Project) (bool, error) {
	pc := r.makeProjectContext(project)

	pendingDeletion := false
	for _, h := range []cluster.ResourceHandler[cluster.ProjectContext]{
		cluster.NewNamespaceHandler(r.Client),
	} {
		current, err := h.GetCurrentState(ctx, pc)
		if err != nil {
			return false, fmt.Errorf("failed to check %s state: %w", h.Name(), err)
		}
		if current == nil {
			continue
		}

		pendingDeletion = true
		if err := h.Delete(ctx, pc); err != nil {
			return false, fmt.Errorf("failed to delete %s: %w", h.Name(), err)
		}
	}

	return !pendingDeletion, nil
}
