// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/crucible-dev/crucible/internal/controller"
)

const (
	// ConditionReady represents whether the project footprint is provisioned
	ConditionReady controller.ConditionType = "Ready"

	// ConditionFinalizing represents whether the project is being finalized
	ConditionFinalizing controller.ConditionType = "Finalizing"
)

const (
	// ReasonProvisioned is the reason used when the project footprint is in place
	ReasonProvisioned controller.ConditionReason = "Provisioned"

	// ReasonNamespaceFailed is the reason used when the project namespace
	// could not be ensured
	ReasonNamespaceFailed controller.ConditionReason = "NamespaceFailed"

	// ReasonGitHostSyncFailed is the reason used when the git-host
	// organization could not be synchronized
	ReasonGitHostSyncFailed controller.ConditionReason = "GitHostSyncFailed"

	// ReasonProjectFinalizing is the reason used when the project resources
	// are being removed
	ReasonProjectFinalizing controller.ConditionReason = "ProjectFinalizing"
)

// NewProjectFinalizingCondition creates a condition to indicate the project is
// being finalized
func NewProjectFinalizingCondition(generation int64) metav1.Condition {
	return controller.NewCondition(
		ConditionFinalizing,
		metav1.ConditionTrue,
		ReasonProjectFinalizing,
		"Project is being finalized",
		generation,
	)
}
