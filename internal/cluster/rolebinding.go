// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"fmt"

	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/crucible-dev/crucible/internal/labels"
)

// HubRoleBindingName is the RoleBinding created in every project namespace
// so the workspace hub can spawn pods there.
const HubRoleBindingName = "workspace-hub-spawner"

// HubAccess identifies the workspace hub service account and the ClusterRole
// it is granted inside each project namespace.
type HubAccess struct {
	ServiceAccountNamespace string
	ServiceAccountName      string
	ClusterRole             string
}

type hubRoleBindingHandler struct {
	client client.Client
}

var _ ResourceHandler[ProjectContext] = (*hubRoleBindingHandler)(nil)

// NewHubRoleBindingHandler creates a handler for the hub role binding in the
// project namespace.
func NewHubRoleBindingHandler(c client.Client) ResourceHandler[ProjectContext] {
	return &hubRoleBindingHandler{client: c}
}

func (h *hubRoleBindingHandler) Name() string {
	return "HubRoleBinding"
}

func (h *hubRoleBindingHandler) GetCurrentState(ctx context.Context, pc *ProjectContext) (any, error) {
	binding := &rbacv1.RoleBinding{}
	err := h.client.Get(ctx, client.ObjectKey{Namespace: pc.Project.NamespaceName(), Name: HubRoleBindingName}, binding)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role binding %q: %w", HubRoleBindingName, err)
	}
	return binding, nil
}

func (h *hubRoleBindingHandler) Create(ctx context.Context, pc *ProjectContext) error {
	binding := makeHubRoleBinding(pc)
	if err := h.client.Create(ctx, binding); err != nil {
		return fmt.Errorf("failed to create role binding %q: %w", binding.Name, err)
	}
	return nil
}

func (h *hubRoleBindingHandler) Update(ctx context.Context, pc *ProjectContext, currentState any) error {
	current, ok := currentState.(*rbacv1.RoleBinding)
	if !ok {
		return errors.New("current state is not a RoleBinding")
	}
	desired := makeHubRoleBinding(pc)

	// RoleRef is immutable, so a changed role means replacing the binding.
	if current.RoleRef != desired.RoleRef {
		if err := client.IgnoreNotFound(h.client.Delete(ctx, current)); err != nil {
			return fmt.Errorf("failed to replace role binding %q: %w", current.Name, err)
		}
		return h.Create(ctx, pc)
	}

	updated := current.DeepCopy()
	updated.Labels = desired.Labels
	updated.Subjects = desired.Subjects

	if err := h.client.Update(ctx, updated); err != nil {
		return fmt.Errorf("failed to update role binding %q: %w", updated.Name, err)
	}
	return nil
}

func (h *hubRoleBindingHandler) Delete(ctx context.Context, pc *ProjectContext) error {
	binding := &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      HubRoleBindingName,
			Namespace: pc.Project.NamespaceName(),
		},
	}
	if err := client.IgnoreNotFound(h.client.Delete(ctx, binding)); err != nil {
		return fmt.Errorf("failed to delete role binding %q: %w", binding.Name, err)
	}
	return nil
}

func makeHubRoleBinding(pc *ProjectContext) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      HubRoleBindingName,
			Namespace: pc.Project.NamespaceName(),
			Labels:    makeProjectResourceLabels(pc.Project, labels.LabelValueResourceTypeProjectNamespace),
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "ClusterRole",
			Name:     pc.Hub.ClusterRole,
		},
		Subjects: []rbacv1.Subject{
			{
				Kind:      rbacv1.ServiceAccountKind,
				Name:      pc.Hub.ServiceAccountName,
				Namespace: pc.Hub.ServiceAccountNamespace,
			},
		},
	}
}
