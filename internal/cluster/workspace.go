// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/labels"
	"github.com/crucible-dev/crucible/internal/resolver"
)

const (
	workspaceContainerName  = "workspace"
	workspaceHomeVolumeName = "home"
	workspaceHomeMountPath  = "/home/workspace"
	workspacePortRDP        = 3389
	workspacePortVNC        = 5901
	workspacePortSSH        = 22
)

// Environment variables the workspace image reads to configure the session.
const (
	envWorkspaceUser           = "VDI_USER"
	envWorkspaceProject        = "VDI_PROJECT"
	envWorkspaceConnectionType = "VDI_CONNECTION_TYPE"
	envWorkspacePassword       = "VDI_PASSWORD"
)

// WorkspaceParams carries the resolved inputs for building the pod and
// service backing one virtual desktop.
type WorkspaceParams struct {
	Instance        *workspacev1alpha1.VDIInstance
	Scheduling      resolver.Scheduling
	Storage         resolver.Storage
	SessionPassword string
}

// ConnectionPort returns the port the workspace container exposes for the
// given connection type.
func ConnectionPort(connectionType string) int32 {
	switch connectionType {
	case workspacev1alpha1.ConnectionTypeVNC:
		return workspacePortVNC
	case workspacev1alpha1.ConnectionTypeSSH:
		return workspacePortSSH
	default:
		return workspacePortRDP
	}
}

// MakeWorkspacePod returns the pod backing a virtual desktop.
func MakeWorkspacePod(params WorkspaceParams) *corev1.Pod {
	inst := params.Instance

	podLabels := make(map[string]string, len(params.Scheduling.Labels)+5)
	for k, v := range params.Scheduling.Labels {
		podLabels[k] = v
	}
	podLabels[labels.LabelKeyManagedBy] = labels.LabelValueManagedBy
	podLabels[labels.LabelKeyComponent] = labels.LabelValueComponentVDI
	podLabels[labels.LabelKeyName] = inst.Name
	podLabels[labels.LabelKeyUserName] = inst.Spec.User
	podLabels[labels.LabelKeyProjectName] = inst.Spec.Project

	env := []corev1.EnvVar{
		{Name: envWorkspaceUser, Value: inst.Spec.User},
		{Name: envWorkspaceProject, Value: inst.Spec.Project},
		{Name: envWorkspaceConnectionType, Value: inst.ConnectionType()},
	}
	if params.SessionPassword != "" {
		env = append(env, corev1.EnvVar{Name: envWorkspacePassword, Value: params.SessionPassword})
	}
	env = append(env, inst.Spec.Env...)

	container := corev1.Container{
		Name:  workspaceContainerName,
		Image: inst.Spec.Image,
		Env:   env,
		Ports: []corev1.ContainerPort{
			{
				Name:          inst.ConnectionType(),
				ContainerPort: ConnectionPort(inst.ConnectionType()),
				Protocol:      corev1.ProtocolTCP,
			},
		},
	}
	if params.Scheduling.Resources != nil {
		container.Resources = *params.Scheduling.Resources
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        inst.PodName(),
			Namespace:   inst.Namespace,
			Labels:      podLabels,
			Annotations: copyMap(params.Scheduling.Annotations),
		},
		Spec: corev1.PodSpec{
			Containers:   []corev1.Container{container},
			NodeSelector: params.Scheduling.NodeSelector,
			Tolerations:  params.Scheduling.Tolerations,
		},
	}

	if inst.IsPersistent() && !params.Storage.Empty() {
		pod.Spec.Volumes = []corev1.Volume{
			{
				Name: workspaceHomeVolumeName,
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
						ClaimName: VolumeClaimName(inst.Spec.User, inst.Spec.Project),
					},
				},
			},
		}
		pod.Spec.Containers[0].VolumeMounts = []corev1.VolumeMount{
			{Name: workspaceHomeVolumeName, MountPath: workspaceHomeMountPath},
		}
	}

	return pod
}

// MakeWorkspaceService returns the service fronting a virtual desktop pod.
func MakeWorkspaceService(params WorkspaceParams) *corev1.Service {
	inst := params.Instance
	port := ConnectionPort(inst.ConnectionType())

	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      WorkspaceServiceName(inst.Spec.User, inst.Spec.Project),
			Namespace: inst.Namespace,
			Labels: map[string]string{
				labels.LabelKeyManagedBy:   labels.LabelValueManagedBy,
				labels.LabelKeyComponent:   labels.LabelValueComponentVDI,
				labels.LabelKeyUserName:    inst.Spec.User,
				labels.LabelKeyProjectName: inst.Spec.Project,
			},
		},
		Spec: corev1.ServiceSpec{
			Type: corev1.ServiceTypeClusterIP,
			Selector: map[string]string{
				labels.LabelKeyComponent: labels.LabelValueComponentVDI,
				labels.LabelKeyName:      inst.Name,
			},
			Ports: []corev1.ServicePort{
				{
					Name:       inst.ConnectionType(),
					Port:       port,
					TargetPort: intstr.FromInt32(port),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
}

// EnsureWorkspacePod creates the workspace pod. An existing pod is left as
// is; spec changes are applied by deleting the pod so the next reconcile
// recreates it. Returns whether the pod was created.
func EnsureWorkspacePod(ctx context.Context, c client.Client, pod *corev1.Pod) (bool, error) {
	if err := c.Create(ctx, pod); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create pod %q: %w", pod.Name, err)
	}
	return true, nil
}

// EnsureWorkspaceService creates the workspace service, tolerating an
// existing one. Returns whether the service was created.
func EnsureWorkspaceService(ctx context.Context, c client.Client, svc *corev1.Service) (bool, error) {
	if err := c.Create(ctx, svc); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create service %q: %w", svc.Name, err)
	}
	return true, nil
}

// DeleteWorkspacePod removes a workspace pod. Absence is not an error.
func DeleteWorkspacePod(ctx context.Context, c client.Client, namespace, name string) error {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	if err := client.IgnoreNotFound(c.Delete(ctx, pod)); err != nil {
		return fmt.Errorf("failed to delete pod %q: %w", name, err)
	}
	return nil
}

// DeleteWorkspaceService removes a workspace service. Absence is not an
// error.
func DeleteWorkspaceService(ctx context.Context, c client.Client, namespace, name string) error {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	if err := client.IgnoreNotFound(c.Delete(ctx, svc)); err != nil {
		return fmt.Errorf("failed to delete service %q: %w", name, err)
	}
	return nil
}

func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
