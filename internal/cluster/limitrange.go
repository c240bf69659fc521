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

// Built-in container limit fallbacks applied when neither the project spec
// nor the operator configuration supplies a value.
const (
	defaultLimitCPU           = "500m"
	defaultLimitMemory        = "1Gi"
	defaultLimitRequestCPU    = "100m"
	defaultLimitRequestMemory = "256Mi"
)

// LimitRangeDefaults carries the operator-level container limit
// configuration. Empty fields fall back to built-in values.
type LimitRangeDefaults struct {
	DefaultCPU           string
	DefaultMemory        string
	DefaultRequestCPU    string
	DefaultRequestMemory string
}

// LimitRangeName returns the name of the project limit range.
func LimitRangeName(project string) string {
	return project + "-limits"
}

type limitRangeHandler struct {
	client client.Client
}

var _ ResourceHandler[ProjectContext] = (*limitRangeHandler)(nil)

// NewLimitRangeHandler creates a handler for the project limit range.
func NewLimitRangeHandler(c client.Client) ResourceHandler[ProjectContext] {
	return &limitRangeHandler{client: c}
}

func (h *limitRangeHandler) Name() string {
	return "LimitRange"
}

func (h *limitRangeHandler) GetCurrentState(ctx context.Context, pc *ProjectContext) (any, error) {
	name := LimitRangeName(pc.Project.Name)
	lr := &corev1.LimitRange{}
	err := h.client.Get(ctx, client.ObjectKey{Namespace: pc.Project.NamespaceName(), Name: name}, lr)
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get limit range %q: %w", name, err)
	}
	return lr, nil
}

func (h *limitRangeHandler) Create(ctx context.Context, pc *ProjectContext) error {
	lr, err := makeLimitRange(pc)
	if err != nil {
		return err
	}
	if err := h.client.Create(ctx, lr); err != nil {
		return fmt.Errorf("failed to create limit range %q: %w", lr.Name, err)
	}
	return nil
}

func (h *limitRangeHandler) Update(ctx context.Context, pc *ProjectContext, currentState any) error {
	current, ok := currentState.(*corev1.LimitRange)
	if !ok {
		return errors.New("current state is not a LimitRange")
	}
	desired, err := makeLimitRange(pc)
	if err != nil {
		return err
	}

	updated := current.DeepCopy()
	updated.Labels = desired.Labels
	updated.Spec = desired.Spec

	if err := h.client.Update(ctx, updated); err != nil {
		return fmt.Errorf("failed to update limit range %q: %w", updated.Name, err)
	}
	return nil
}

func (h *limitRangeHandler) Delete(ctx context.Context, pc *ProjectContext) error {
	lr := &corev1.LimitRange{
		ObjectMeta: metav1.ObjectMeta{
			Name:      LimitRangeName(pc.Project.Name),
			Namespace: pc.Project.NamespaceName(),
		},
	}
	if err := client.IgnoreNotFound(h.client.Delete(ctx, lr)); err != nil {
		return fmt.Errorf("failed to delete limit range %q: %w", lr.Name, err)
	}
	return nil
}

func makeLimitRange(pc *ProjectContext) (*corev1.LimitRange, error) {
	override := pc.Project.Spec.LimitRange
	if override == nil {
		override = &workspacev1alpha1.LimitRangeSpec{}
	}

	defaults, err := makeResourceList(map[corev1.ResourceName]string{
		corev1.ResourceCPU:    firstNonEmpty(override.DefaultCPU, pc.Limits.DefaultCPU, defaultLimitCPU),
		corev1.ResourceMemory: firstNonEmpty(override.DefaultMemory, pc.Limits.DefaultMemory, defaultLimitMemory),
	})
	if err != nil {
		return nil, err
	}
	defaultRequests, err := makeResourceList(map[corev1.ResourceName]string{
		corev1.ResourceCPU:    firstNonEmpty(override.DefaultRequestCPU, pc.Limits.DefaultRequestCPU, defaultLimitRequestCPU),
		corev1.ResourceMemory: firstNonEmpty(override.DefaultRequestMemory, pc.Limits.DefaultRequestMemory, defaultLimitRequestMemory),
	})
	if err != nil {
		return nil, err
	}

	return &corev1.LimitRange{
		ObjectMeta: metav1.ObjectMeta{
			Name:      LimitRangeName(pc.Project.Name),
			Namespace: pc.Project.NamespaceName(),
			Labels:    makeProjectResourceLabels(pc.Project, labels.LabelValueResourceTypeProjectNamespace),
		},
		Spec: corev1.LimitRangeSpec{
			Limits: []corev1.LimitRangeItem{
				{
					Type:           corev1.LimitTypeContainer,
					Default:        defaults,
					DefaultRequest: defaultRequests,
				},
			},
		},
	}, nil
}

func makeResourceList(values map[corev1.ResourceName]string) (corev1.ResourceList, error) {
	list := make(corev1.ResourceList, len(values))
	for name, value := range values {
		qty, err := resource.ParseQuantity(value)
		if err != nil {
			return nil, fmt.Errorf("invalid limit value %q for %s: %w", value, name, err)
		}
		list[name] = qty
	}
	return list, nil
}
