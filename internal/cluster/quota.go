// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/labels"
)

// Built-in quota fallbacks applied when neither the project spec nor the
// operator configuration supplies a value.
const (
	defaultQuotaRequestsCPU    = "4"
	defaultQuotaRequestsMemory = "8Gi"
	defaultQuotaLimitsCPU      = "8"
	defaultQuotaLimitsMemory   = "16Gi"
	defaultQuotaPods           = "20"
	defaultQuotaServices       = "10"
	defaultQuotaClaims         = "10"
)

// QuotaDefaults carries the operator-level quota configuration. Empty fields
// fall back to built-in values.
type QuotaDefaults struct {
	RequestsCPU            string
	RequestsMemory         string
	LimitsCPU              string
	LimitsMemory           string
	Pods                   string
	Services               string
	PersistentVolumeClaims string
}

// QuotaName returns the name of the project resource quota.
func QuotaName(project string) string {
	return project + "-quota"
}

type resourceQuotaHandler struct {
	client client.Client
}

var _ ResourceHandler[ProjectContext] = (*resourceQuotaHandler)(nil)

// NewResourceQuotaHandler creates a handler for the project resource quota.
func NewResourceQuotaHandler(c client.Client) ResourceHandler[ProjectContext] {
	return &resourceQuotaHandler{client: c}
}

func (h *resourceQuotaHandler) Name() string {
	return "ResourceQuota"
}

func (h *resourceQuotaHandler) GetCurrentState(ctx context.Context, pc *ProjectContext) (any, error) {
	name := QuotaName(pc.Project.Name)
	quota := &corev1.ResourceQuota{}
	err := h.client.Get(ctx, client.ObjectKey{Namespace: pc.Project.NamespaceName(), Name: name}, quota)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource quota %q: %w", name, err)
	}
	return quota, nil
}

func (h *resourceQuotaHandler) Create(ctx context.Context, pc *ProjectContext) error {
	quota, err := makeResourceQuota(pc)
	if err != nil {
		return err
	}
	if err := h.client.Create(ctx, quota); err != nil {
		return fmt.Errorf("failed to create resource quota %q: %w", quota.Name, err)
	}
	return nil
}

func (h *resourceQuotaHandler) Update(ctx context.Context, pc *ProjectContext, currentState any) error {
	current, ok := currentState.(*corev1.ResourceQuota)
	if !ok {
		return errors.New("current state is not a ResourceQuota")
	}
	desired, err := makeResourceQuota(pc)
	if err != nil {
		return err
	}

	updated := current.DeepCopy()
	updated.Labels = desired.Labels
	updated.Spec = desired.Spec

	if err := h.client.Update(ctx, updated); err != nil {
		return fmt.Errorf("failed to update resource quota %q: %w", updated.Name, err)
	}
	return nil
}

func (h *resourceQuotaHandler) Delete(ctx context.Context, pc *ProjectContext) error {
	quota := &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:      QuotaName(pc.Project.Name),
			Namespace: pc.Project.NamespaceName(),
		},
	}
	if err := client.IgnoreNotFound(h.client.Delete(ctx, quota)); err != nil {
		return fmt.Errorf("failed to delete resource quota %q: %w", quota.Name, err)
	}
	return nil
}

func makeResourceQuota(pc *ProjectContext) (*corev1.ResourceQuota, error) {
	override := pc.Project.Spec.Quota
	if override == nil {
		override = &workspacev1alpha1.QuotaSpec{}
	}

	entries := []struct {
		name  corev1.ResourceName
		value string
	}{
		{corev1.ResourceRequestsCPU, firstNonEmpty(override.RequestsCPU, pc.Quota.RequestsCPU, defaultQuotaRequestsCPU)},
		{corev1.ResourceRequestsMemory, firstNonEmpty(override.RequestsMemory, pc.Quota.RequestsMemory, defaultQuotaRequestsMemory)},
		{corev1.ResourceLimitsCPU, firstNonEmpty(override.LimitsCPU, pc.Quota.LimitsCPU, defaultQuotaLimitsCPU)},
		{corev1.ResourceLimitsMemory, firstNonEmpty(override.LimitsMemory, pc.Quota.LimitsMemory, defaultQuotaLimitsMemory)},
		{corev1.ResourcePods, firstNonEmpty(override.Pods, pc.Quota.Pods, defaultQuotaPods)},
		{corev1.ResourceServices, firstNonEmpty(override.Services, pc.Quota.Services, defaultQuotaServices)},
		{corev1.ResourcePersistentVolumeClaims, firstNonEmpty(override.PersistentVolumeClaims, pc.Quota.PersistentVolumeClaims, defaultQuotaClaims)},
	}

	hard := make(corev1.ResourceList, len(entries))
	for _, e := range entries {
		qty, err := resource.ParseQuantity(e.value)
		if err != nil {
			return nil, fmt.Errorf("invalid quota value %q for %s: %w", e.value, e.name, err)
		}
		hard[e.name] = qty
	}

	return &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:      QuotaName(pc.Project.Name),
			Namespace: pc.Project.NamespaceName(),
			Labels:    makeProjectResourceLabels(pc.Project, labels.LabelValueResourceTypeProjectNamespace),
		},
		Spec: corev1.ResourceQuotaSpec{Hard: hard},
	}, nil
}
