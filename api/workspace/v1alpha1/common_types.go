// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
)

// StorageSpec describes a persistent storage request. Fields left empty fall
// back to the next layer in the resolution chain (instance, project, operator
// defaults), with the operator-configured ceiling applied last.
type StorageSpec struct {
	// Size is the requested capacity, for example "10Gi".
	// +optional
	Size string `json:"size,omitempty"`

	// StorageClass names the Kubernetes storage class backing the claim.
	// +optional
	StorageClass string `json:"storageClass,omitempty"`
}

// SchedulingSpec carries placement and resource preferences applied to
// workspace pods. Instance-level values win field by field over project-level
// values; maps are merged with instance keys taking precedence.
type SchedulingSpec struct {
	// NodeSelector constrains pods to nodes matching all listed labels.
	// +optional
	NodeSelector map[string]string `json:"nodeSelector,omitempty"`

	// Tolerations allow pods onto nodes with matching taints.
	// +optional
	Tolerations []corev1.Toleration `json:"tolerations,omitempty"`

	// Resources sets compute requests and limits for the workspace container.
	// +optional
	Resources *corev1.ResourceRequirements `json:"resources,omitempty"`

	// Labels are added to workspace pods.
	// +optional
	Labels map[string]string `json:"labels,omitempty"`

	// Annotations are added to workspace pods.
	// +optional
	Annotations map[string]string `json:"annotations,omitempty"`
}

// ManagedResourceStatus records one cluster resource owned by a project.
type ManagedResourceStatus struct {
	// Kind is the Kubernetes kind of the managed resource.
	Kind string `json:"kind"`

	// Name is the resource name within the project namespace, or the
	// namespace name itself for Kind=Namespace.
	Name string `json:"name"`

	// Ready reports whether the resource was last observed in the desired state.
	Ready bool `json:"ready"`

	// Message holds detail for resources that are not ready.
	// +optional
	Message string `json:"message,omitempty"`
}
