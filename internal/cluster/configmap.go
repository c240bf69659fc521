// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/crucible-dev/crucible/internal/labels"
)

// BootstrapConfigMapParams identifies the workspace bootstrap ConfigMap to
// copy from the operator namespace into a project namespace.
type BootstrapConfigMapParams struct {
	Name            string
	SourceNamespace string
	TargetNamespace string
}

// CopyBootstrapConfigMap copies the bootstrap ConfigMap into the project
// namespace on first use. An existing copy is left untouched so projects can
// customize it. A missing source is not an error; there is simply nothing to
// copy. Returns whether a copy was created.
func CopyBootstrapConfigMap(ctx context.Context, c client.Client, params BootstrapConfigMapParams) (bool, error) {
	if params.Name == "" {
		return false, nil
	}

	existing := &corev1.ConfigMap{}
	err := c.Get(ctx, client.ObjectKey{Namespace: params.TargetNamespace, Name: params.Name}, existing)
	if err == nil {
		return false, nil
	}
	if !apierrors.IsNotFound(err) {
		return false, fmt.Errorf("failed to get configmap %q: %w", params.Name, err)
	}

	source := &corev1.ConfigMap{}
	err = c.Get(ctx, client.ObjectKey{Namespace: params.SourceNamespace, Name: params.Name}, source)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get source configmap %q: %w", params.Name, err)
	}

	copied := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      params.Name,
			Namespace: params.TargetNamespace,
			Labels: map[string]string{
				labels.LabelKeyManagedBy: labels.LabelValueManagedBy,
			},
		},
		Data:       source.Data,
		BinaryData: source.BinaryData,
	}
	if err := c.Create(ctx, copied); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create configmap %q: %w", params.Name, err)
	}
	return true, nil
}
