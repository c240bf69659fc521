// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package labels

// This file contains all the labels used to store Crucible specific metadata on Kubernetes objects.

const (
	LabelKeyProjectName = "crucible.dev/project"
	LabelKeyUserName    = "crucible.dev/user"
	LabelKeyGroupName   = "crucible.dev/group"
	LabelKeyName        = "crucible.dev/name"

	// LabelKeyComponent identifies which workspace component a Pod or Service
	// belongs to, e.g. component=vdi.
	LabelKeyComponent = "crucible.dev/component"

	// LabelKeyManagedBy identifies which controller manages the lifecycle of a resource.
	// All namespaces, quotas, policies and volumes created by the operator carry it.
	LabelKeyManagedBy = "crucible.dev/managed-by"

	// LabelKeyResourceType distinguishes the role a managed resource plays,
	// e.g. project-namespace or workspace-storage.
	LabelKeyResourceType = "crucible.dev/resource-type"

	// AnnotationKeySchemaHash records the content hash of the generated schema
	// set on applied CustomResourceDefinitions so regeneration can be skipped
	// when nothing changed.
	AnnotationKeySchemaHash = "crucible.dev/schema-hash"

	// AnnotationKeyDescription carries the free-form project description on
	// the project namespace.
	AnnotationKeyDescription = "crucible.dev/description"

	LabelValueManagedBy = "crucible-operator"

	LabelValueComponentVDI = "vdi"

	LabelValueResourceTypeProjectNamespace = "project-namespace"
	LabelValueResourceTypeWorkspaceStorage = "workspace-storage"
)
