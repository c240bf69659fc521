// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/labels"
	"github.com/crucible-dev/crucible/internal/resolver"
)

func newVDIInstance() *workspacev1alpha1.VDIInstance {
	return &workspacev1alpha1.VDIInstance{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "alice-desktop",
			Namespace: "project-proj-x",
		},
		Spec: workspacev1alpha1.VDIInstanceSpec{
			User:    "alice",
			Project: "proj-x",
			Image:   "ghcr.io/crucible-dev/workspace-xfce:1.4",
		},
	}
}

func TestMakeWorkspacePod_SessionEnvironment(t *testing.T) {
	inst := newVDIInstance()
	inst.Spec.Env = []corev1.EnvVar{{Name: "EXTRA", Value: "1"}}

	pod := MakeWorkspacePod(WorkspaceParams{
		Instance:        inst,
		SessionPassword: "s3cret",
	})

	if pod.Name != "vdi-alice-desktop" {
		t.Errorf("expected pod name vdi-alice-desktop, got %q", pod.Name)
	}
	if pod.Namespace != "project-proj-x" {
		t.Errorf("expected pod in project namespace, got %q", pod.Namespace)
	}
	if pod.Labels[labels.LabelKeyComponent] != labels.LabelValueComponentVDI {
		t.Errorf("expected vdi component label, got %v", pod.Labels)
	}
	if pod.Labels[labels.LabelKeyName] != "alice-desktop" {
		t.Errorf("expected instance name label, got %v", pod.Labels)
	}

	env := pod.Spec.Containers[0].Env
	want := []corev1.EnvVar{
		{Name: "VDI_USER", Value: "alice"},
		{Name: "VDI_PROJECT", Value: "proj-x"},
		{Name: "VDI_CONNECTION_TYPE", Value: "rdp"},
		{Name: "VDI_PASSWORD", Value: "s3cret"},
		{Name: "EXTRA", Value: "1"},
	}
	if len(env) != len(want) {
		t.Fatalf("expected %d env vars, got %v", len(want), env)
	}
	for i := range want {
		if env[i] != want[i] {
			t.Errorf("env[%d]: expected %v, got %v", i, want[i], env[i])
		}
	}
}

func TestMakeWorkspacePod_MountsHomeVolumeWhenPersistent(t *testing.T) {
	pod := MakeWorkspacePod(WorkspaceParams{
		Instance: newVDIInstance(),
		Storage:  resolver.Storage{Size: resource.MustParse("10Gi")},
	})

	if len(pod.Spec.Volumes) != 1 {
		t.Fatalf("expected 1 volume, got %v", pod.Spec.Volumes)
	}
	claim := pod.Spec.Volumes[0].PersistentVolumeClaim
	if claim == nil || claim.ClaimName != "vdi-alice-proj-x" {
		t.Errorf("expected claim vdi-alice-proj-x, got %v", pod.Spec.Volumes[0])
	}
	mounts := pod.Spec.Containers[0].VolumeMounts
	if len(mounts) != 1 || mounts[0].MountPath != "/home/workspace" {
		t.Errorf("expected home mount at /home/workspace, got %v", mounts)
	}
}

func TestMakeWorkspacePod_EphemeralSkipsVolume(t *testing.T) {
	inst := newVDIInstance()
	inst.Spec.Persistent = ptr.To(false)

	pod := MakeWorkspacePod(WorkspaceParams{
		Instance: inst,
		Storage:  resolver.Storage{Size: resource.MustParse("10Gi")},
	})

	if len(pod.Spec.Volumes) != 0 {
		t.Errorf("expected no volumes for ephemeral workspace, got %v", pod.Spec.Volumes)
	}
	if len(pod.Spec.Containers[0].VolumeMounts) != 0 {
		t.Errorf("expected no mounts for ephemeral workspace, got %v", pod.Spec.Containers[0].VolumeMounts)
	}
}

func TestMakeWorkspacePod_AppliesScheduling(t *testing.T) {
	pod := MakeWorkspacePod(WorkspaceParams{
		Instance: newVDIInstance(),
		Scheduling: resolver.Scheduling{
			NodeSelector: map[string]string{"gpu": "true"},
			Tolerations: []corev1.Toleration{
				{Key: "gpu", Operator: corev1.TolerationOpExists},
			},
			Resources: &corev1.ResourceRequirements{
				Limits: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("2")},
			},
			Labels:      map[string]string{"team": "research"},
			Annotations: map[string]string{"scheduler.crucible.dev/pool": "gpu"},
		},
	})

	if pod.Spec.NodeSelector["gpu"] != "true" {
		t.Errorf("expected gpu node selector, got %v", pod.Spec.NodeSelector)
	}
	if len(pod.Spec.Tolerations) != 1 || pod.Spec.Tolerations[0].Key != "gpu" {
		t.Errorf("expected gpu toleration, got %v", pod.Spec.Tolerations)
	}
	if got := pod.Spec.Containers[0].Resources.Limits[corev1.ResourceCPU]; got.String() != "2" {
		t.Errorf("expected 2 cpu limit, got %s", got.String())
	}
	if pod.Labels["team"] != "research" {
		t.Errorf("expected scheduling labels merged into pod labels, got %v", pod.Labels)
	}
	if pod.Annotations["scheduler.crucible.dev/pool"] != "gpu" {
		t.Errorf("expected scheduling annotations on pod, got %v", pod.Annotations)
	}
	// Managed labels always win over scheduling labels.
	if pod.Labels[labels.LabelKeyManagedBy] != labels.LabelValueManagedBy {
		t.Errorf("expected managed-by label, got %v", pod.Labels)
	}
}

func TestMakeWorkspaceService_PortsFollowConnectionType(t *testing.T) {
	tests := []struct {
		connectionType string
		wantPort       int32
		wantName       string
	}{
		{connectionType: "rdp", wantPort: 3389, wantName: "rdp"},
		{connectionType: "vnc", wantPort: 5901, wantName: "vnc"},
		{connectionType: "ssh", wantPort: 22, wantName: "ssh"},
		{connectionType: "", wantPort: 3389, wantName: "rdp"},
	}

	for _, tt := range tests {
		t.Run("type_"+tt.wantName, func(t *testing.T) {
			inst := newVDIInstance()
			inst.Spec.ConnectionType = tt.connectionType

			svc := MakeWorkspaceService(WorkspaceParams{Instance: inst})

			if svc.Name != "vdi-alice-proj-x" {
				t.Errorf("expected service name vdi-alice-proj-x, got %q", svc.Name)
			}
			if len(svc.Spec.Ports) != 1 {
				t.Fatalf("expected 1 port, got %v", svc.Spec.Ports)
			}
			port := svc.Spec.Ports[0]
			if port.Port != tt.wantPort || port.Name != tt.wantName {
				t.Errorf("expected port %d named %q, got %d named %q", tt.wantPort, tt.wantName, port.Port, port.Name)
			}
			if port.TargetPort.IntValue() != int(tt.wantPort) {
				t.Errorf("expected target port %d, got %v", tt.wantPort, port.TargetPort)
			}
			if svc.Spec.Selector[labels.LabelKeyName] != "alice-desktop" {
				t.Errorf("expected selector on instance name, got %v", svc.Spec.Selector)
			}
		})
	}
}

func TestEnsureWorkspacePod_SecondEnsureIsNoOp(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()
	pod := MakeWorkspacePod(WorkspaceParams{Instance: newVDIInstance()})

	created, err := EnsureWorkspacePod(context.Background(), c, pod)
	if err != nil {
		t.Fatalf("EnsureWorkspacePod() unexpected error: %v", err)
	}
	if !created {
		t.Error("expected first ensure to create the pod")
	}

	created, err = EnsureWorkspacePod(context.Background(), c, MakeWorkspacePod(WorkspaceParams{Instance: newVDIInstance()}))
	if err != nil {
		t.Fatalf("EnsureWorkspacePod() unexpected error on second ensure: %v", err)
	}
	if created {
		t.Error("expected second ensure to leave the existing pod alone")
	}
}

func TestDeleteWorkspacePod_AbsentIsSuccess(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newTestScheme(t)).Build()

	if err := DeleteWorkspacePod(context.Background(), c, "project-proj-x", "vdi-gone"); err != nil {
		t.Errorf("DeleteWorkspacePod() on absent pod: %v", err)
	}
	if err := DeleteWorkspaceService(context.Background(), c, "project-proj-x", "vdi-gone"); err != nil {
		t.Errorf("DeleteWorkspaceService() on absent service: %v", err)
	}
}
