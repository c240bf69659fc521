// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

func TestResolveScheduling_MapsMergeInstanceWins(t *testing.T) {
	instance := &workspacev1alpha1.SchedulingSpec{
		NodeSelector: map[string]string{"gpu": "true", "zone": "a"},
		Labels:       map[string]string{"team": "research"},
	}
	project := &workspacev1alpha1.SchedulingSpec{
		NodeSelector: map[string]string{"zone": "b", "pool": "workspaces"},
		Labels:       map[string]string{"team": "default", "cost": "shared"},
		Annotations:  map[string]string{"note": "project"},
	}

	got := ResolveScheduling(instance, project)

	wantSelector := map[string]string{"gpu": "true", "zone": "a", "pool": "workspaces"}
	if diff := cmp.Diff(wantSelector, got.NodeSelector); diff != "" {
		t.Errorf("nodeSelector mismatch (-want +got):\n%s", diff)
	}
	wantLabels := map[string]string{"team": "research", "cost": "shared"}
	if diff := cmp.Diff(wantLabels, got.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"note": "project"}, got.Annotations); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveScheduling_TolerationsConcatenate(t *testing.T) {
	projectTol := corev1.Toleration{Key: "pool", Operator: corev1.TolerationOpEqual, Value: "workspaces"}
	instanceTol := corev1.Toleration{Key: "gpu", Operator: corev1.TolerationOpExists}

	got := ResolveScheduling(
		&workspacev1alpha1.SchedulingSpec{Tolerations: []corev1.Toleration{instanceTol}},
		&workspacev1alpha1.SchedulingSpec{Tolerations: []corev1.Toleration{projectTol}},
	)

	want := []corev1.Toleration{projectTol, instanceTol}
	if diff := cmp.Diff(want, got.Tolerations); diff != "" {
		t.Errorf("tolerations mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveScheduling_ResourcesFirstNonNil(t *testing.T) {
	instanceRes := &corev1.ResourceRequirements{
		Limits: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("4")},
	}
	projectRes := &corev1.ResourceRequirements{
		Limits: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("2")},
	}

	got := ResolveScheduling(
		&workspacev1alpha1.SchedulingSpec{Resources: instanceRes},
		&workspacev1alpha1.SchedulingSpec{Resources: projectRes},
	)
	if got.Resources.Limits.Cpu().String() != "4" {
		t.Errorf("instance resources should win, got cpu=%s", got.Resources.Limits.Cpu().String())
	}

	got = ResolveScheduling(nil, &workspacev1alpha1.SchedulingSpec{Resources: projectRes})
	if got.Resources.Limits.Cpu().String() != "2" {
		t.Errorf("project resources should apply, got cpu=%s", got.Resources.Limits.Cpu().String())
	}
}

func TestResolveScheduling_NilInputs(t *testing.T) {
	got := ResolveScheduling(nil, nil)
	if got.NodeSelector != nil || got.Tolerations != nil || got.Resources != nil || got.Labels != nil || got.Annotations != nil {
		t.Fatalf("expected zero scheduling for nil inputs, got %+v", got)
	}
}

func TestResolveScheduling_DoesNotMutateInputs(t *testing.T) {
	instance := &workspacev1alpha1.SchedulingSpec{NodeSelector: map[string]string{"zone": "a"}}
	project := &workspacev1alpha1.SchedulingSpec{NodeSelector: map[string]string{"zone": "b", "pool": "x"}}

	got := ResolveScheduling(instance, project)
	got.NodeSelector["extra"] = "mutated"

	if _, ok := instance.NodeSelector["extra"]; ok {
		t.Error("instance selector mutated")
	}
	if _, ok := project.NodeSelector["extra"]; ok {
		t.Error("project selector mutated")
	}
	if project.NodeSelector["zone"] != "b" {
		t.Error("project selector value changed")
	}
}
