// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"fmt"
	"time"

	apiequality "k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ConditionType is a valid value for a condition type.
type ConditionType string

// ConditionReason is a valid value for a condition reason.
type ConditionReason string

// Condition types shared across controllers. Controllers define their own
// kind-specific types and reasons next to their reconcilers.
const (
	// TypeCreated indicates the backing resources for the object exist.
	TypeCreated ConditionType = "Created"

	// TypeReady indicates the object is fully synchronized.
	TypeReady ConditionType = "Ready"

	// TypeFinalizing indicates the object's dependents are being deleted.
	TypeFinalizing ConditionType = "Finalizing"
)

// StatusUpdateInterval is the requeue interval for resources that mirror
// state held in external systems. The periodic reconcile re-verifies the
// external state even when nothing changed on the cluster side.
const StatusUpdateInterval = 5 * time.Minute

// ConditionedObject is implemented by API types that expose their status
// conditions for the shared helpers below.
type ConditionedObject interface {
	client.Object
	GetConditions() []metav1.Condition
	SetConditions(conditions []metav1.Condition)
}

// NewCondition creates a new condition with the given values.
func NewCondition(conditionType ConditionType, status metav1.ConditionStatus,
	reason ConditionReason, message string, generation int64) metav1.Condition {
	return metav1.Condition{
		Type:               string(conditionType),
		Status:             status,
		Reason:             string(reason),
		Message:            message,
		ObservedGeneration: generation,
	}
}

// MarkTrueCondition sets the given condition to true on the object.
func MarkTrueCondition(obj ConditionedObject, conditionType ConditionType,
	reason ConditionReason, message string) {
	setCondition(obj, conditionType, metav1.ConditionTrue, reason, message)
}

// MarkFalseCondition sets the given condition to false on the object.
func MarkFalseCondition(obj ConditionedObject, conditionType ConditionType,
	reason ConditionReason, message string) {
	setCondition(obj, conditionType, metav1.ConditionFalse, reason, message)
}

// MarkUnknownCondition sets the given condition to unknown on the object.
func MarkUnknownCondition(obj ConditionedObject, conditionType ConditionType,
	reason ConditionReason, message string) {
	setCondition(obj, conditionType, metav1.ConditionUnknown, reason, message)
}

func setCondition(obj ConditionedObject, conditionType ConditionType,
	status metav1.ConditionStatus, reason ConditionReason, message string) {
	conditions := obj.GetConditions()
	meta.SetStatusCondition(&conditions, NewCondition(conditionType, status, reason, message, obj.GetGeneration()))
	obj.SetConditions(conditions)
}

// UpdateStatusConditions updates the status of the object if the conditions
// have changed since the old copy was taken.
func UpdateStatusConditions(ctx context.Context, c client.Client, old, current ConditionedObject) error {
	if apiequality.Semantic.DeepEqual(old.GetConditions(), current.GetConditions()) {
		return nil
	}
	if err := c.Status().Update(ctx, current); err != nil {
		return fmt.Errorf("failed to update status conditions: %w", err)
	}
	return nil
}

// UpdateStatusConditionsAndReturn updates the status conditions and returns
// an empty result, for use as the tail call of a reconcile step.
func UpdateStatusConditionsAndReturn(ctx context.Context, c client.Client,
	old, current ConditionedObject) (ctrl.Result, error) {
	if err := UpdateStatusConditions(ctx, c, old, current); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

// UpdateStatusConditionsAndRequeue updates the status conditions and requests
// an immediate requeue.
func UpdateStatusConditionsAndRequeue(ctx context.Context, c client.Client,
	old, current ConditionedObject) (ctrl.Result, error) {
	if err := UpdateStatusConditions(ctx, c, old, current); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{Requeue: true}, nil
}

// UpdateStatusConditionsAndRequeueAfter updates the status conditions and
// requests a requeue after the given duration.
func UpdateStatusConditionsAndRequeueAfter(ctx context.Context, c client.Client,
	old, current ConditionedObject, duration time.Duration) (ctrl.Result, error) {
	if err := UpdateStatusConditions(ctx, c, old, current); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{RequeueAfter: duration}, nil
}
