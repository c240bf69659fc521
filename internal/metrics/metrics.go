// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes operator counters on the controller-runtime
// metrics registry, so they are served from the same endpoint as the
// built-in controller metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// IdentitySyncOperations counts writes against the identity provider,
	// partitioned by resource (realm, user, group, client) and operation
	// (create, update, delete).
	IdentitySyncOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crucible_identity_sync_operations_total",
		Help: "Total number of identity provider write operations",
	}, []string{"resource", "operation"})

	// GitHostMembershipChanges counts team membership changes applied to the
	// git host, partitioned by action (add, remove).
	GitHostMembershipChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crucible_githost_membership_changes_total",
		Help: "Total number of git host team membership changes",
	}, []string{"action"})

	// ReconcileSkips counts reconciles that ended without applying changes,
	// partitioned by controller and the reason nothing was done.
	ReconcileSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crucible_reconcile_skips_total",
		Help: "Total number of reconciles that made no changes",
	}, []string{"controller", "reason"})

	// WorkspaceRestarts counts workspace pods deleted so a changed spec can
	// be applied on recreation.
	WorkspaceRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crucible_workspace_restarts_total",
		Help: "Total number of workspace pods restarted to apply changes",
	})

	// ProvisionedObjects counts custom resources created or updated by the
	// manifest-driven provisioner, partitioned by kind.
	ProvisionedObjects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crucible_provisioned_objects_total",
		Help: "Total number of custom resources written by the provisioner",
	}, []string{"kind"})
)

func init() {
	metrics.Registry.MustRegister(
		IdentitySyncOperations,
		GitHostMembershipChanges,
		ReconcileSkips,
		WorkspaceRestarts,
		ProvisionedObjects,
	)
}
