// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identityclient

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/crucible-dev/crucible/internal/controller"
)

const (
	// ConditionReady represents whether the OAuth client is synchronized
	ConditionReady controller.ConditionType = "Ready"

	// ConditionFinalizing represents whether the client is being finalized
	ConditionFinalizing controller.ConditionType = "Finalizing"
)

const (
	// ReasonSynchronized is the reason used when the client was fully synchronized
	ReasonSynchronized controller.ConditionReason = "Synchronized"

	// ReasonClientSyncFailed is the reason used when the identity-provider
	// upsert failed
	ReasonClientSyncFailed controller.ConditionReason = "ClientSyncFailed"

	// ReasonSecretUnresolved is the reason used when no client secret could
	// be resolved
	ReasonSecretUnresolved controller.ConditionReason = "SecretUnresolved"

	// ReasonClientFinalizing is the reason used when the provider client is
	// being removed
	ReasonClientFinalizing controller.ConditionReason = "ClientFinalizing"
)

// NewClientFinalizingCondition creates a condition to indicate the client is
// being finalized
func NewClientFinalizingCondition(generation int64) metav1.Condition {
	return controller.NewCondition(
		ConditionFinalizing,
		metav1.ConditionTrue,
		ReasonClientFinalizing,
		"IdentityClient is being finalized",
		generation,
	)
}
