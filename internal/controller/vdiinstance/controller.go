// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package vdiinstance reconciles VDIInstance resources into the pod and
// service backing one virtual desktop, with the session password and home
// volume wired in.
package vdiinstance

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	kerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/cluster"
	"github.com/crucible-dev/crucible/internal/controller"
	"github.com/crucible-dev/crucible/internal/metrics"
	"github.com/crucible-dev/crucible/internal/resolver"
)

// Reconciler reconciles a VDIInstance object.
type Reconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	// Storage carries the operator-level defaults applied when neither the
	// instance nor the project supplies a storage override.
	Storage resolver.StorageDefaults

	// OperatorNamespace is the namespace holding the bootstrap ConfigMap.
	OperatorNamespace string

	// BootstrapConfigMap names the ConfigMap copied into the project
	// namespace on first workspace creation. Empty disables the copy.
	BootstrapConfigMap string
}

// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=vdiinstances,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=vdiinstances/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=vdiinstances/finalizers,verbs=update
// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=projects,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=pods;services;configmaps;persistentvolumeclaims,verbs=get;list;watch;create;delete

// Reconcile materializes the pod and service backing one virtual desktop.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, rErr error) {
	logger := log.FromContext(ctx)

	vdi := &workspacev1alpha1.VDIInstance{}
	if err := r.Get(ctx, req.NamespacedName, vdi); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "Failed to get VDIInstance")
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil
	}

	// Keep a copy for comparison
	old := vdi.DeepCopy()

	if !vdi.DeletionTimestamp.IsZero() {
		logger.Info("Finalizing VDI instance", "name", vdi.Name)
		return r.finalize(ctx, old, vdi)
	}

	if finalizerAdded, err := r.ensureFinalizer(ctx, vdi); err != nil || finalizerAdded {
		return ctrl.Result{}, err
	}

	// Deferred status update
	defer func() {
		vdi.Status.ObservedGeneration = vdi.Generation

		// Skip update if nothing changed
		if apiequality.Semantic.DeepEqual(old.Status, vdi.Status) {
			return
		}

		if err := r.Status().Update(ctx, vdi); err != nil {
			logger.Error(err, "Failed to update VDIInstance status")
			rErr = kerrors.NewAggregate([]error{rErr, err})
		}
	}()

	if err := r.ensureBootstrapConfigMap(ctx, vdi); err != nil {
		logger.Error(err, "Failed to ensure bootstrap configmap")
		return ctrl.Result{}, err
	}

	if err := r.ensureSessionPassword(ctx, vdi); err != nil {
		logger.Error(err, "Failed to persist session password")
		return ctrl.Result{}, err
	}

	storage, scheduling, err := r.resolveWorkspaceConfig(ctx, vdi)
	if err != nil {
		controller.MarkFalseCondition(vdi, ConditionReady, ReasonInvalidConfiguration,
			fmt.Sprintf("Failed to resolve workspace configuration: %v", err))
		logger.Error(err, "Failed to resolve workspace configuration")
		return ctrl.Result{}, err
	}

	// A changed environment cannot be applied to a running pod; delete it and
	// let the next pass recreate it from the new spec.
	desiredEnv := instanceEnv(vdi)
	if vdi.Status.EnvVars != nil && !maps.Equal(vdi.Status.EnvVars, desiredEnv) {
		if err := cluster.DeleteWorkspacePod(ctx, r.Client, vdi.Namespace, vdi.PodName()); err != nil {
			logger.Error(err, "Failed to delete workspace pod for restart")
			return ctrl.Result{}, err
		}
		metrics.WorkspaceRestarts.Inc()
		vdi.Status.EnvVars = desiredEnv
		now := metav1.Now()
		vdi.Status.LastUpdated = &now
		r.Recorder.Event(vdi, corev1.EventTypeNormal, "WorkspaceRestarted",
			"Workspace pod deleted to apply environment changes")
		logger.Info("Restarting workspace to apply environment changes", "pod", vdi.PodName())
		return ctrl.Result{Requeue: true}, nil
	}

	if err := r.ensureHomeVolume(ctx, vdi, storage); err != nil {
		logger.Error(err, "Failed to ensure workspace volume")
		return ctrl.Result{}, err
	}

	created, err := r.ensureWorkspace(ctx, vdi, cluster.WorkspaceParams{
		Instance:        vdi,
		Scheduling:      scheduling,
		Storage:         storage,
		SessionPassword: vdi.Status.SessionPassword,
	})
	if err != nil {
		vdi.Status.Phase = workspacev1alpha1.VDIPhaseFailed
		controller.MarkFalseCondition(vdi, ConditionReady, ReasonWorkspaceFailed,
			fmt.Sprintf("Failed to create workspace: %v", err))
		logger.Error(err, "Failed to create workspace")
		return ctrl.Result{}, err
	}

	vdi.Status.Phase = workspacev1alpha1.VDIPhaseRunning
	vdi.Status.PodName = vdi.PodName()
	vdi.Status.ServiceName = cluster.WorkspaceServiceName(vdi.Spec.User, vdi.Spec.Project)
	vdi.Status.EnvVars = desiredEnv

	controller.MarkTrueCondition(vdi, ConditionReady, ReasonWorkspaceReady,
		fmt.Sprintf("Workspace for %q is running in %q", vdi.Spec.User, vdi.Namespace))
	if created {
		r.Recorder.Event(vdi, corev1.EventTypeNormal, "WorkspaceCreated",
			fmt.Sprintf("Workspace pod %s created", vdi.PodName()))
	}

	return ctrl.Result{}, nil
}

// ensureBootstrapConfigMap copies the workspace bootstrap ConfigMap from the
// operator namespace into the project namespace on first use.
func (r *Reconciler) ensureBootstrapConfigMap(ctx context.Context, vdi *workspacev1alpha1.VDIInstance) error {
	logger := log.FromContext(ctx)

	copied, err := cluster.CopyBootstrapConfigMap(ctx, r.Client, cluster.BootstrapConfigMapParams{
		Name:            r.BootstrapConfigMap,
		SourceNamespace: r.OperatorNamespace,
		TargetNamespace: vdi.Namespace,
	})
	if err != nil {
		return err
	}
	if copied {
		logger.Info("Copied bootstrap configmap", "configmap", r.BootstrapConfigMap, "namespace", vdi.Namespace)
	}
	return nil
}

// ensureSessionPassword generates the connection password once and persists
// it before the pod exists, so a crash between password generation and pod
// creation cannot produce a pod with a password that was never recorded.
func (r *Reconciler) ensureSessionPassword(ctx context.Context, vdi *workspacev1alpha1.VDIInstance) error {
	if vdi.Status.SessionPassword != "" {
		return nil
	}

	vdi.Status.SessionPassword = uuid.NewString()
	if err := r.Status().Update(ctx, vdi); err != nil {
		return fmt.Errorf("failed to persist session password: %w", err)
	}
	return nil
}

// resolveWorkspaceConfig merges the instance overrides with the project and
// operator defaults. A missing Project resource falls back to operator
// defaults instead of blocking the workspace.
func (r *Reconciler) resolveWorkspaceConfig(ctx context.Context, vdi *workspacev1alpha1.VDIInstance) (resolver.Storage, resolver.Scheduling, error) {
	logger := log.FromContext(ctx)

	var projectStorage *workspacev1alpha1.StorageSpec
	var projectScheduling *workspacev1alpha1.SchedulingSpec

	project, err := controller.GetProjectByName(ctx, r.Client, vdi, vdi.Spec.Project)
	if err != nil {
		if controller.IgnoreHierarchyNotFoundError(err) != nil {
			return resolver.Storage{}, resolver.Scheduling{}, err
		}
		logger.Info("No Project resource found, using operator defaults", "project", vdi.Spec.Project)
	} else {
		projectStorage = project.Spec.Storage
		projectScheduling = project.Spec.Scheduling
	}

	storage, err := resolver.ResolveStorage(vdi.Spec.Storage, projectStorage, r.Storage)
	if err != nil {
		return resolver.Storage{}, resolver.Scheduling{}, err
	}
	return storage, resolver.ResolveScheduling(vdi.Spec.Scheduling, projectScheduling), nil
}

// ensureHomeVolume ensures the user's project volume exists before the pod
// mounts it. Non-persistent workspaces and unresolved sizes skip the claim.
func (r *Reconciler) ensureHomeVolume(ctx context.Context, vdi *workspacev1alpha1.VDIInstance, storage resolver.Storage) error {
	if !vdi.IsPersistent() || storage.Empty() {
		return nil
	}

	_, _, err := cluster.EnsureWorkspacePVC(ctx, r.Client, cluster.StorageParams{
		Namespace: vdi.Namespace,
		User:      vdi.Spec.User,
		Project:   vdi.Spec.Project,
		Size:      storage.Size,
		Class:     storage.Class,
	})
	return err
}

// ensureWorkspace creates the pod and service with owner references so a
// deleted VDIInstance cannot leak either. Returns whether the pod was
// created by this call.
func (r *Reconciler) ensureWorkspace(ctx context.Context, vdi *workspacev1alpha1.VDIInstance, params cluster.WorkspaceParams) (bool, error) {
	pod := cluster.MakeWorkspacePod(params)
	if err := controllerutil.SetControllerReference(vdi, pod, r.Scheme); err != nil {
		return false, fmt.Errorf("failed to set pod owner reference: %w", err)
	}
	created, err := cluster.EnsureWorkspacePod(ctx, r.Client, pod)
	if err != nil {
		return false, err
	}

	svc := cluster.MakeWorkspaceService(params)
	if err := controllerutil.SetControllerReference(vdi, svc, r.Scheme); err != nil {
		return false, fmt.Errorf("failed to set service owner reference: %w", err)
	}
	if _, err := cluster.EnsureWorkspaceService(ctx, r.Client, svc); err != nil {
		return false, err
	}
	return created, nil
}

// instanceEnv returns the instance-level environment as a map, used to detect
// spec changes that require a pod restart. Map form makes the comparison
// independent of declaration order.
func instanceEnv(vdi *workspacev1alpha1.VDIInstance) map[string]string {
	env := make(map[string]string, len(vdi.Spec.Env))
	for _, e := range vdi.Spec.Env {
		env[e.Name] = e.Value
	}
	return env
}

// SetupWithManager sets up the controller with the Manager. Owned pods and
// services re-trigger reconciliation, so an externally deleted pod is
// recreated without a periodic resync.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		r.Recorder = mgr.GetEventRecorderFor("vdiinstance-controller")
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&workspacev1alpha1.VDIInstance{}).
		Owns(&corev1.Pod{}).
		Owns(&corev1.Service{}).
		Named("vdiinstance").
		Complete(r)
}
