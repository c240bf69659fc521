// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/crucible-dev/crucible/internal/labels"
)

// This file contains the helper functions to read Crucible specific metadata
// from materialized Kubernetes objects.

// GetProjectName returns the project name the object belongs to.
func GetProjectName(obj client.Object) string {
	return getLabelValueOrEmpty(obj, labels.LabelKeyProjectName)
}

// GetUserName returns the username the object belongs to.
func GetUserName(obj client.Object) string {
	return getLabelValueOrEmpty(obj, labels.LabelKeyUserName)
}

// GetGroupName returns the group name the object belongs to.
func GetGroupName(obj client.Object) string {
	return getLabelValueOrEmpty(obj, labels.LabelKeyGroupName)
}

// GetName returns the Crucible resource name recorded on the object. This is
// the owning custom resource's name, not the Kubernetes object name.
func GetName(obj client.Object) string {
	return getLabelValueOrEmpty(obj, labels.LabelKeyName)
}

// GetDescription returns the description recorded on the object.
func GetDescription(obj client.Object) string {
	return getAnnotationValueOrEmpty(obj, labels.AnnotationKeyDescription)
}

func getLabelValueOrEmpty(obj client.Object, labelKey string) string {
	if obj.GetLabels() == nil {
		return ""
	}
	return obj.GetLabels()[labelKey]
}

func getAnnotationValueOrEmpty(obj client.Object, annotationKey string) string {
	if obj.GetAnnotations() == nil {
		return ""
	}
	return obj.GetAnnotations()[annotationKey]
}
