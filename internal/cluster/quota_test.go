// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

func assertQuantity(t *testing.T, list corev1.ResourceList, name corev1.ResourceName, want string) {
	t.Helper()
	qty, ok := list[name]
	if !ok {
		t.Fatalf("resource %s missing from list", name)
	}
	if got := qty.String(); got != want {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func TestMakeResourceQuota_BuiltInDefaults(t *testing.T) {
	quota, err := makeResourceQuota(newProjectContext("proj-x"))
	if err != nil {
		t.Fatalf("makeResourceQuota() unexpected error: %v", err)
	}

	if quota.Name != "proj-x-quota" {
		t.Errorf("name = %q, want %q", quota.Name, "proj-x-quota")
	}
	if quota.Namespace != "project-proj-x" {
		t.Errorf("namespace = %q, want %q", quota.Namespace, "project-proj-x")
	}
	assertQuantity(t, quota.Spec.Hard, corev1.ResourceRequestsCPU, "4")
	assertQuantity(t, quota.Spec.Hard, corev1.ResourceRequestsMemory, "8Gi")
	assertQuantity(t, quota.Spec.Hard, corev1.ResourceLimitsCPU, "8")
	assertQuantity(t, quota.Spec.Hard, corev1.ResourceLimitsMemory, "16Gi")
	assertQuantity(t, quota.Spec.Hard, corev1.ResourcePods, "20")
	assertQuantity(t, quota.Spec.Hard, corev1.ResourceServices, "10")
	assertQuantity(t, quota.Spec.Hard, corev1.ResourcePersistentVolumeClaims, "10")
}

func TestMakeResourceQuota_SpecOverridesOperatorDefaults(t *testing.T) {
	pc := newProjectContext("proj-x")
	pc.Quota = QuotaDefaults{RequestsCPU: "6", Pods: "30"}
	pc.Project.Spec.Quota = &workspacev1alpha1.QuotaSpec{RequestsCPU: "2"}

	quota, err := makeResourceQuota(pc)
	if err != nil {
		t.Fatalf("makeResourceQuota() unexpected error: %v", err)
	}

	// Spec beats operator config, operator config beats built-in.
	assertQuantity(t, quota.Spec.Hard, corev1.ResourceRequestsCPU, "2")
	assertQuantity(t, quota.Spec.Hard, corev1.ResourcePods, "30")
	assertQuantity(t, quota.Spec.Hard, corev1.ResourceLimitsMemory, "16Gi")
}

func TestMakeResourceQuota_InvalidValueIsRejected(t *testing.T) {
	pc := newProjectContext("proj-x")
	pc.Project.Spec.Quota = &workspacev1alpha1.QuotaSpec{RequestsCPU: "banana"}

	if _, err := makeResourceQuota(pc); err == nil {
		t.Fatal("expected error for unparseable quota value")
	}
}

func TestResourceQuotaHandler_CreateThenUpdate(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()
	h := NewResourceQuotaHandler(c)
	pc := newProjectContext("proj-x")

	if err := h.Create(context.Background(), pc); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	pc.Project.Spec.Quota = &workspacev1alpha1.QuotaSpec{Pods: "5"}
	state, err := h.GetCurrentState(context.Background(), pc)
	if err != nil {
		t.Fatalf("GetCurrentState() unexpected error: %v", err)
	}
	if state == nil {
		t.Fatal("expected quota to exist after Create")
	}
	if err := h.Update(context.Background(), pc, state); err != nil {
		t.Fatalf("Update() unexpected error: %v", err)
	}

	quota := &corev1.ResourceQuota{}
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: "project-proj-x", Name: "proj-x-quota"}, quota); err != nil {
		t.Fatalf("expected quota to exist: %v", err)
	}
	assertQuantity(t, quota.Spec.Hard, corev1.ResourcePods, "5")
}
