// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package user

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/crucible-dev/crucible/internal/controller"
)

const (
	// ConditionReady represents whether the user account and its derived
	// resources are synchronized
	ConditionReady controller.ConditionType = "Ready"

	// ConditionFinalizing represents whether the user is being finalized
	ConditionFinalizing controller.ConditionType = "Finalizing"
)

const (
	// ReasonSynchronized is the reason used when the user was fully synchronized
	ReasonSynchronized controller.ConditionReason = "Synchronized"

	// ReasonIdentitySyncFailed is the reason used when the identity-provider
	// upsert failed
	ReasonIdentitySyncFailed controller.ConditionReason = "IdentitySyncFailed"

	// ReasonUserFinalizing is the reason used when the provider account is
	// being removed
	ReasonUserFinalizing controller.ConditionReason = "UserFinalizing"
)

// NewUserFinalizingCondition creates a condition to indicate the user is being
// finalized
func NewUserFinalizingCondition(generation int64) metav1.Condition {
	return controller.NewCondition(
		ConditionFinalizing,
		metav1.ConditionTrue,
		ReasonUserFinalizing,
		"User is being finalized",
		generation,
	)
}
