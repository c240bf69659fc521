// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githostclient

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/crucible-dev/crucible/internal/controller"
)

const (
	// ConditionReady represents whether the OAuth source is synchronized
	ConditionReady controller.ConditionType = "Ready"

	// ConditionFinalizing represents whether the client is being finalized
	ConditionFinalizing controller.ConditionType = "Finalizing"
)

const (
	// ReasonSynchronized is the reason used when the OAuth source was synchronized
	ReasonSynchronized controller.ConditionReason = "Synchronized"

	// ReasonCredentialsUnresolved is the reason used when a referenced Secret
	// is missing or incomplete
	ReasonCredentialsUnresolved controller.ConditionReason = "CredentialsUnresolved"

	// ReasonGitHostUnavailable is the reason used when the git host did not
	// answer the availability probe
	ReasonGitHostUnavailable controller.ConditionReason = "GitHostUnavailable"

	// ReasonSourceSyncFailed is the reason used when the OAuth source upsert failed
	ReasonSourceSyncFailed controller.ConditionReason = "SourceSyncFailed"

	// ReasonSourceFinalizing is the reason used when the OAuth source is being
	// removed
	ReasonSourceFinalizing controller.ConditionReason = "SourceFinalizing"
)

// NewSourceFinalizingCondition creates a condition to indicate the client is
// being finalized
func NewSourceFinalizingCondition(generation int64) metav1.Condition {
	return controller.NewCondition(
		ConditionFinalizing,
		metav1.ConditionTrue,
		ReasonSourceFinalizing,
		"GitHostClient is being finalized",
		generation,
	)
}
