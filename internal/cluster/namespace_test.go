// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/labels"
)

func newTestScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := corev1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add corev1 to scheme: %v", err)
	}
	if err := rbacv1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add rbacv1 to scheme: %v", err)
	}
	if err := networkingv1.AddToScheme(scheme); err != nil {
		t.Fatalf("failed to add networkingv1 to scheme: %v", err)
	}
	return scheme
}

func newProjectContext(name string) *ProjectContext {
	return &ProjectContext{
		Project: &workspacev1alpha1.Project{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: "crucible-system",
			},
		},
	}
}

func TestNamespaceHandler_CreatesWhenAbsent(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()
	h := NewNamespaceHandler(c)
	pc := newProjectContext("proj-x")
	pc.Project.Spec.Description = "genomics study"

	state, err := h.GetCurrentState(context.Background(), pc)
	if err != nil {
		t.Fatalf("GetCurrentState() unexpected error: %v", err)
	}
	if state != nil {
		t.Fatal("expected no namespace before Create")
	}

	if err := h.Create(context.Background(), pc); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	ns := &corev1.Namespace{}
	if err := c.Get(context.Background(), client.ObjectKey{Name: "project-proj-x"}, ns); err != nil {
		t.Fatalf("expected namespace to exist: %v", err)
	}
	if got := ns.Labels[labels.LabelKeyProjectName]; got != "proj-x" {
		t.Errorf("project label = %q, want %q", got, "proj-x")
	}
	if got := ns.Labels[labels.LabelKeyManagedBy]; got != labels.LabelValueManagedBy {
		t.Errorf("managed-by label = %q, want %q", got, labels.LabelValueManagedBy)
	}
	if got := ns.Labels[labels.LabelKeyResourceType]; got != labels.LabelValueResourceTypeProjectNamespace {
		t.Errorf("resource-type label = %q, want %q", got, labels.LabelValueResourceTypeProjectNamespace)
	}
	if got := ns.Annotations[labels.AnnotationKeyDescription]; got != "genomics study" {
		t.Errorf("description annotation = %q, want %q", got, "genomics study")
	}
}

func TestNamespaceHandler_UpdateRefreshesLabelsAndMergesAnnotations(t *testing.T) {
	existing := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: "project-proj-x",
			Labels: map[string]string{
				"stale-label": "true",
			},
			Annotations: map[string]string{
				"third-party/keep":              "yes",
				labels.AnnotationKeyDescription: "old description",
			},
		},
	}
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).WithObjects(existing).Build()
	h := NewNamespaceHandler(c)
	pc := newProjectContext("proj-x")
	pc.Project.Spec.Description = "new description"

	state, err := h.GetCurrentState(context.Background(), pc)
	if err != nil {
		t.Fatalf("GetCurrentState() unexpected error: %v", err)
	}
	if state == nil {
		t.Fatal("expected existing namespace")
	}
	if err := h.Update(context.Background(), pc, state); err != nil {
		t.Fatalf("Update() unexpected error: %v", err)
	}

	ns := &corev1.Namespace{}
	if err := c.Get(context.Background(), client.ObjectKey{Name: "project-proj-x"}, ns); err != nil {
		t.Fatalf("expected namespace to exist: %v", err)
	}
	if _, ok := ns.Labels["stale-label"]; ok {
		t.Error("expected stale label to be removed on update")
	}
	if got := ns.Labels[labels.LabelKeyProjectName]; got != "proj-x" {
		t.Errorf("project label = %q, want %q", got, "proj-x")
	}
	if got := ns.Annotations["third-party/keep"]; got != "yes" {
		t.Error("expected unmanaged annotation to survive update")
	}
	if got := ns.Annotations[labels.AnnotationKeyDescription]; got != "new description" {
		t.Errorf("description annotation = %q, want %q", got, "new description")
	}
}

func TestNamespaceHandler_DeleteAbsentIsSuccess(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()
	h := NewNamespaceHandler(c)

	if err := h.Delete(context.Background(), newProjectContext("proj-x")); err != nil {
		t.Fatalf("Delete() on absent namespace: %v", err)
	}
}
