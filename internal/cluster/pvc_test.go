// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/crucible-dev/crucible/internal/labels"
)

func TestEnsureWorkspacePVC_CreatesClaim(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()

	name, created, err := EnsureWorkspacePVC(context.Background(), c, StorageParams{
		Namespace: "project-genomics",
		User:      "alice",
		Project:   "genomics",
		Size:      resource.MustParse("10Gi"),
		Class:     "fast-ssd",
	})
	if err != nil {
		t.Fatalf("EnsureWorkspacePVC() unexpected error: %v", err)
	}
	if !created {
		t.Error("expected claim to be reported as created")
	}
	if name != "vdi-alice-genomics" {
		t.Errorf("expected claim name vdi-alice-genomics, got %q", name)
	}

	claim := &corev1.PersistentVolumeClaim{}
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: "project-genomics", Name: name}, claim); err != nil {
		t.Fatalf("expected claim to exist: %v", err)
	}
	if claim.Labels[labels.LabelKeyManagedBy] != labels.LabelValueManagedBy {
		t.Errorf("expected managed-by label, got %v", claim.Labels)
	}
	if claim.Labels[labels.LabelKeyResourceType] != labels.LabelValueResourceTypeWorkspaceStorage {
		t.Errorf("expected workspace-storage resource type, got %v", claim.Labels)
	}
	if claim.Labels[labels.LabelKeyUserName] != "alice" || claim.Labels[labels.LabelKeyProjectName] != "genomics" {
		t.Errorf("expected user and project labels, got %v", claim.Labels)
	}
	if len(claim.Spec.AccessModes) != 1 || claim.Spec.AccessModes[0] != corev1.ReadWriteOnce {
		t.Errorf("expected ReadWriteOnce access mode, got %v", claim.Spec.AccessModes)
	}
	if got := claim.Spec.Resources.Requests[corev1.ResourceStorage]; got.String() != "10Gi" {
		t.Errorf("expected 10Gi storage request, got %s", got.String())
	}
	if claim.Spec.StorageClassName == nil || *claim.Spec.StorageClassName != "fast-ssd" {
		t.Errorf("expected storage class fast-ssd, got %v", claim.Spec.StorageClassName)
	}
}

func TestEnsureWorkspacePVC_ExistingClaimLeftUntouched(t *testing.T) {
	existing := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "vdi-alice-genomics",
			Namespace: "project-genomics",
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("10Gi")},
			},
		},
	}
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).WithObjects(existing).Build()

	name, created, err := EnsureWorkspacePVC(context.Background(), c, StorageParams{
		Namespace: "project-genomics",
		User:      "alice",
		Project:   "genomics",
		Size:      resource.MustParse("20Gi"),
	})
	if err != nil {
		t.Fatalf("EnsureWorkspacePVC() unexpected error: %v", err)
	}
	if created {
		t.Error("expected existing claim to be reused, not created")
	}
	if name != "vdi-alice-genomics" {
		t.Errorf("expected claim name vdi-alice-genomics, got %q", name)
	}

	claim := &corev1.PersistentVolumeClaim{}
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: "project-genomics", Name: name}, claim); err != nil {
		t.Fatalf("expected claim to exist: %v", err)
	}
	if got := claim.Spec.Resources.Requests[corev1.ResourceStorage]; got.String() != "10Gi" {
		t.Errorf("expected existing 10Gi request to be preserved, got %s", got.String())
	}
}

func TestEnsureWorkspacePVC_DefaultStorageClass(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()

	name, _, err := EnsureWorkspacePVC(context.Background(), c, StorageParams{
		Namespace: "project-genomics",
		User:      "bob",
		Project:   "genomics",
		Size:      resource.MustParse("5Gi"),
	})
	if err != nil {
		t.Fatalf("EnsureWorkspacePVC() unexpected error: %v", err)
	}

	claim := &corev1.PersistentVolumeClaim{}
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: "project-genomics", Name: name}, claim); err != nil {
		t.Fatalf("expected claim to exist: %v", err)
	}
	if claim.Spec.StorageClassName != nil {
		t.Errorf("expected cluster default storage class (nil), got %q", *claim.Spec.StorageClassName)
	}
}

func TestDeleteWorkspacePVC_AbsentIsSuccess(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()

	if err := DeleteWorkspacePVC(context.Background(), c, "project-genomics", "vdi-gone-genomics"); err != nil {
		t.Errorf("DeleteWorkspacePVC() on absent claim: %v", err)
	}
}

func TestListWorkspacePVCs_ReturnsManagedClaimsSorted(t *testing.T) {
	managed := func(name string) *corev1.PersistentVolumeClaim {
		return &corev1.PersistentVolumeClaim{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: "project-genomics",
				Labels:    map[string]string{labels.LabelKeyManagedBy: labels.LabelValueManagedBy},
			},
		}
	}
	unmanaged := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "scratch-data", Namespace: "project-genomics"},
	}
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).
		WithObjects(managed("vdi-carol-genomics"), managed("vdi-alice-genomics"), unmanaged).
		Build()

	names, err := ListWorkspacePVCs(context.Background(), c, "project-genomics")
	if err != nil {
		t.Fatalf("ListWorkspacePVCs() unexpected error: %v", err)
	}
	want := []string{"vdi-alice-genomics", "vdi-carol-genomics"}
	if len(names) != len(want) {
		t.Fatalf("expected %d claims, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("claim %d: expected %q, got %q", i, want[i], names[i])
		}
	}
}
