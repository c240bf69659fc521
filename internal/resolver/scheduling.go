// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	corev1 "k8s.io/api/core/v1"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

// Scheduling is the resolved pod placement configuration for one workspace.
type Scheduling struct {
	NodeSelector map[string]string
	Tolerations  []corev1.Toleration
	Resources    *corev1.ResourceRequirements
	Labels       map[string]string
	Annotations  map[string]string
}

// ResolveScheduling merges the instance and project scheduling overrides.
// Maps merge key by key with instance values winning; tolerations concatenate
// project first then instance, so both apply; resource requirements take the
// first non-nil value, instance over project. The result is deterministic and
// safe to recompute on every reconcile.
func ResolveScheduling(instance, project *workspacev1alpha1.SchedulingSpec) Scheduling {
	if instance == nil {
		instance = &workspacev1alpha1.SchedulingSpec{}
	}
	if project == nil {
		project = &workspacev1alpha1.SchedulingSpec{}
	}

	out := Scheduling{
		NodeSelector: mergeMaps(project.NodeSelector, instance.NodeSelector),
		Labels:       mergeMaps(project.Labels, instance.Labels),
		Annotations:  mergeMaps(project.Annotations, instance.Annotations),
	}

	if len(project.Tolerations) > 0 || len(instance.Tolerations) > 0 {
		out.Tolerations = make([]corev1.Toleration, 0, len(project.Tolerations)+len(instance.Tolerations))
		out.Tolerations = append(out.Tolerations, project.Tolerations...)
		out.Tolerations = append(out.Tolerations, instance.Tolerations...)
	}

	switch {
	case instance.Resources != nil:
		out.Resources = instance.Resources.DeepCopy()
	case project.Resources != nil:
		out.Resources = project.Resources.DeepCopy()
	}

	return out
}

// mergeMaps overlays later maps onto earlier ones. A nil result is returned
// when every input is empty so callers can distinguish "nothing configured".
func mergeMaps(maps ...map[string]string) map[string]string {
	var out map[string]string
	for _, m := range maps {
		for k, v := range m {
			if out == nil {
				out = make(map[string]string)
			}
			out[k] = v
		}
	}
	return out
}
