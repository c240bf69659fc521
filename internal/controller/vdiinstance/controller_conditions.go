// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package vdiinstance

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/crucible-dev/crucible/internal/controller"
)

// Condition types for the VDIInstance resource.
const (
	// ConditionReady indicates the workspace pod and service exist.
	ConditionReady controller.ConditionType = "Ready"

	// ConditionFinalizing indicates the workspace is being torn down.
	ConditionFinalizing controller.ConditionType = "Finalizing"
)

// Condition reasons for the VDIInstance resource.
const (
	ReasonWorkspaceReady       controller.ConditionReason = "WorkspaceReady"
	ReasonInvalidConfiguration controller.ConditionReason = "InvalidConfiguration"
	ReasonWorkspaceFailed      controller.ConditionReason = "WorkspaceFailed"
	ReasonWorkspaceFinalizing  controller.ConditionReason = "WorkspaceFinalizing"
)

// NewWorkspaceFinalizingCondition creates a condition that indicates the
// workspace resources are being deleted.
func NewWorkspaceFinalizingCondition(generation int64) metav1.Condition {
	return controller.NewCondition(
		ConditionFinalizing,
		metav1.ConditionTrue,
		ReasonWorkspaceFinalizing,
		"VDI instance is being finalized",
		generation,
	)
}
