// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
)

func newConditionTestUser(generation int64) *identityv1alpha1.User {
	return &identityv1alpha1.User{
		ObjectMeta: metav1.ObjectMeta{
			Name:       "alice",
			Namespace:  "crucible-system",
			Generation: generation,
		},
	}
}

func TestMarkTrueCondition_SetsObservedGeneration(t *testing.T) {
	user := newConditionTestUser(7)

	MarkTrueCondition(user, TypeReady, "Synced", "user is synchronized")

	conditions := user.GetConditions()
	if len(conditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(conditions))
	}
	cond := conditions[0]
	if cond.Type != string(TypeReady) {
		t.Errorf("Type = %q, want %q", cond.Type, TypeReady)
	}
	if cond.Status != metav1.ConditionTrue {
		t.Errorf("Status = %q, want True", cond.Status)
	}
	if cond.Reason != "Synced" {
		t.Errorf("Reason = %q, want Synced", cond.Reason)
	}
	if cond.ObservedGeneration != 7 {
		t.Errorf("ObservedGeneration = %d, want 7", cond.ObservedGeneration)
	}
}

func TestMarkFalseCondition_ReplacesExistingType(t *testing.T) {
	user := newConditionTestUser(1)

	MarkTrueCondition(user, TypeReady, "Synced", "user is synchronized")
	MarkFalseCondition(user, TypeReady, "ProviderUnavailable", "identity provider unreachable")

	conditions := user.GetConditions()
	if len(conditions) != 1 {
		t.Fatalf("expected condition to be replaced in place, got %d conditions", len(conditions))
	}
	if conditions[0].Status != metav1.ConditionFalse {
		t.Errorf("Status = %q, want False", conditions[0].Status)
	}
	if conditions[0].Reason != "ProviderUnavailable" {
		t.Errorf("Reason = %q, want ProviderUnavailable", conditions[0].Reason)
	}
}

func TestUpdateStatusConditions_SkipsWhenUnchanged(t *testing.T) {
	scheme := runtime.NewScheme()
	if err := identityv1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add scheme: %v", err)
	}

	user := newConditionTestUser(1)
	MarkTrueCondition(user, TypeReady, "Synced", "user is synchronized")

	// The client tracks no objects, so any Status().Update would fail. An
	// unchanged condition set must short-circuit before reaching the API.
	c := fake.NewClientBuilder().WithScheme(scheme).Build()

	old := user.DeepCopy()
	if err := UpdateStatusConditions(context.Background(), c, old, user); err != nil {
		t.Errorf("UpdateStatusConditions() with unchanged conditions: %v", err)
	}
}

func TestUpdateStatusConditions_WritesChangedConditions(t *testing.T) {
	scheme := runtime.NewScheme()
	if err := identityv1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add scheme: %v", err)
	}

	user := newConditionTestUser(1)
	c := fake.NewClientBuilder().WithScheme(scheme).
		WithStatusSubresource(user).WithObjects(user).Build()

	old := user.DeepCopy()
	MarkTrueCondition(user, TypeReady, "Synced", "user is synchronized")

	if err := UpdateStatusConditions(context.Background(), c, old, user); err != nil {
		t.Fatalf("UpdateStatusConditions() unexpected error: %v", err)
	}

	stored := &identityv1alpha1.User{}
	if err := c.Get(context.Background(), client.ObjectKeyFromObject(user), stored); err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if len(stored.Status.Conditions) != 1 {
		t.Errorf("expected persisted condition, got %v", stored.Status.Conditions)
	}
}

func TestUpdateStatusConditionsAndRequeueAfter_CarriesDuration(t *testing.T) {
	scheme := runtime.NewScheme()
	if err := identityv1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add scheme: %v", err)
	}

	user := newConditionTestUser(1)
	c := fake.NewClientBuilder().WithScheme(scheme).
		WithStatusSubresource(user).WithObjects(user).Build()

	old := user.DeepCopy()
	MarkFalseCondition(user, TypeReady, "ProviderUnavailable", "identity provider unreachable")

	result, err := UpdateStatusConditionsAndRequeueAfter(context.Background(), c, old, user, StatusUpdateInterval)
	if err != nil {
		t.Fatalf("UpdateStatusConditionsAndRequeueAfter() unexpected error: %v", err)
	}
	if result.RequeueAfter != StatusUpdateInterval {
		t.Errorf("RequeueAfter = %v, want %v", result.RequeueAfter, StatusUpdateInterval)
	}
}
