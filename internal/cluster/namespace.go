// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/labels"
)

type namespaceHandler struct {
	client client.Client
}

var _ ResourceHandler[ProjectContext] = (*namespaceHandler)(nil)

// NewNamespaceHandler creates a handler for the project namespace. Deleting
// the namespace cascades to every namespaced resource the project owns.
func NewNamespaceHandler(c client.Client) ResourceHandler[ProjectContext] {
	return &namespaceHandler{client: c}
}

func (h *namespaceHandler) Name() string {
	return "Namespace"
}

func (h *namespaceHandler) GetCurrentState(ctx context.Context, pc *ProjectContext) (any, error) {
	name := pc.Project.NamespaceName()
	ns := &corev1.Namespace{}
	err := h.client.Get(ctx, client.ObjectKey{Name: name}, ns)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get namespace %q: %w", name, err)
	}
	return ns, nil
}

func (h *namespaceHandler) Create(ctx context.Context, pc *ProjectContext) error {
	ns := makeNamespace(pc.Project)
	if err := h.client.Create(ctx, ns); err != nil {
		return fmt.Errorf("failed to create namespace %q: %w", ns.Name, err)
	}
	return nil
}

func (h *namespaceHandler) Update(ctx context.Context, pc *ProjectContext, currentState any) error {
	current, ok := currentState.(*corev1.Namespace)
	if !ok {
		return errors.New("current state is not a Namespace")
	}
	desired := makeNamespace(pc.Project)

	updated := current.DeepCopy()
	// Managed labels replace the live set; annotations merge so annotations
	// added by other controllers survive.
	updated.Labels = desired.Labels
	if updated.Annotations == nil {
		updated.Annotations = make(map[string]string, len(desired.Annotations))
	}
	for k, v := range desired.Annotations {
		updated.Annotations[k] = v
	}

	if err := h.client.Update(ctx, updated); err != nil {
		return fmt.Errorf("failed to update namespace %q: %w", updated.Name, err)
	}
	return nil
}

func (h *namespaceHandler) Delete(ctx context.Context, pc *ProjectContext) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: pc.Project.NamespaceName()},
	}
	if err := client.IgnoreNotFound(h.client.Delete(ctx, ns)); err != nil {
		return fmt.Errorf("failed to delete namespace %q: %w", ns.Name, err)
	}
	return nil
}

func makeNamespace(project *workspacev1alpha1.Project) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   project.NamespaceName(),
			Labels: makeProjectResourceLabels(project, labels.LabelValueResourceTypeProjectNamespace),
			Annotations: map[string]string{
				labels.AnnotationKeyDescription: project.Spec.Description,
			},
		},
	}
}
