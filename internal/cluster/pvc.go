// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/crucible-dev/crucible/internal/labels"
)

// StorageParams describes one workspace home volume.
type StorageParams struct {
	Namespace string
	User      string
	Project   string
	Size      resource.Quantity
	Class     string
}

// EnsureWorkspacePVC creates the per-user per-project home volume if it does
// not exist. Existing claims are left untouched, whatever their size, since
// a bound claim's request cannot shrink. Returns the claim name and whether
// it was created.
func EnsureWorkspacePVC(ctx context.Context, c client.Client, params StorageParams) (string, bool, error) {
	name := VolumeClaimName(params.User, params.Project)

	existing := &corev1.PersistentVolumeClaim{}
	err := c.Get(ctx, client.ObjectKey{Namespace: params.Namespace, Name: name}, existing)
	if err == nil {
		return name, false, nil
	}
	if !apierrors.IsNotFound(err) {
		return name, false, fmt.Errorf("failed to get pvc %q: %w", name, err)
	}

	claim := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: params.Namespace,
			Labels: map[string]string{
				labels.LabelKeyManagedBy:    labels.LabelValueManagedBy,
				labels.LabelKeyResourceType: labels.LabelValueResourceTypeWorkspaceStorage,
				labels.LabelKeyUserName:     params.User,
				labels.LabelKeyProjectName:  params.Project,
			},
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: params.Size},
			},
		},
	}
	if params.Class != "" {
		claim.Spec.StorageClassName = &params.Class
	}

	if err := c.Create(ctx, claim); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return name, false, nil
		}
		return name, false, fmt.Errorf("failed to create pvc %q: %w", name, err)
	}
	return name, true, nil
}

// DeleteWorkspacePVC removes a workspace home volume. Absence is not an
// error.
func DeleteWorkspacePVC(ctx context.Context, c client.Client, namespace, name string) error {
	claim := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	if err := client.IgnoreNotFound(c.Delete(ctx, claim)); err != nil {
		return fmt.Errorf("failed to delete pvc %q: %w", name, err)
	}
	return nil
}

// ListWorkspacePVCs returns the names of all managed workspace volumes in a
// project namespace, sorted.
func ListWorkspacePVCs(ctx context.Context, c client.Client, namespace string) ([]string, error) {
	list := &corev1.PersistentVolumeClaimList{}
	err := c.List(ctx, list,
		client.InNamespace(namespace),
		client.MatchingLabels{labels.LabelKeyManagedBy: labels.LabelValueManagedBy})
	if err != nil {
		return nil, fmt.Errorf("failed to list pvcs in %q: %w", namespace, err)
	}

	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		names = append(names, list.Items[i].Name)
	}
	sort.Strings(names)
	return names, nil
}
