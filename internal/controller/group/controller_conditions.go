// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package group

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/crucible-dev/crucible/internal/controller"
)

const (
	// ConditionReady represents whether the group and its memberships are
	// synchronized
	ConditionReady controller.ConditionType = "Ready"

	// ConditionFinalizing represents whether the group is being finalized
	ConditionFinalizing controller.ConditionType = "Finalizing"
)

const (
	// ReasonSynchronized is the reason used when the group was fully synchronized
	ReasonSynchronized controller.ConditionReason = "Synchronized"

	// ReasonGroupSyncFailed is the reason used when the identity-provider
	// upsert failed
	ReasonGroupSyncFailed controller.ConditionReason = "GroupSyncFailed"

	// ReasonGroupFinalizing is the reason used when the provider group is
	// being removed
	ReasonGroupFinalizing controller.ConditionReason = "GroupFinalizing"
)

// NewGroupFinalizingCondition creates a condition to indicate the group is
// being finalized
func NewGroupFinalizingCondition(generation int64) metav1.Condition {
	return controller.NewCondition(
		ConditionFinalizing,
		metav1.ConditionTrue,
		ReasonGroupFinalizing,
		"Group is being finalized",
		generation,
	)
}
