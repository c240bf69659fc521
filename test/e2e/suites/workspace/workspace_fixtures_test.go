// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"fmt"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

const (
	operatorNamespace   = "crucible-system"
	workspaceAPIVersion = "workspace.crucible.dev/v1alpha1"
	testUser            = "alice"
)

// Unique per run so repeated suite invocations never collide on cluster-wide
// names like the project namespace.
var runID = fmt.Sprintf("%d", time.Now().Unix())

var (
	projectName      = "e2e-ws-" + runID
	projectNamespace = "project-" + projectName
	instanceName     = testUser + "-desktop"
)

func mustYAMLDocs(objects ...any) string {
	docs := make([]string, 0, len(objects))
	for _, obj := range objects {
		data, err := yaml.Marshal(obj)
		if err != nil {
			panic(fmt.Sprintf("failed to marshal yaml document: %v", err))
		}
		docs = append(docs, strings.TrimSpace(string(data)))
	}
	return strings.Join(docs, "\n---\n")
}

// projectYAML declares the project under test with a fixed quota so the
// materialized ResourceQuota is deterministic regardless of operator config.
func projectYAML() string {
	project := &workspacev1alpha1.Project{
		TypeMeta: metav1.TypeMeta{APIVersion: workspaceAPIVersion, Kind: "Project"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      projectName,
			Namespace: operatorNamespace,
		},
		Spec: workspacev1alpha1.ProjectSpec{
			Description: "workspace e2e project",
			Quota: &workspacev1alpha1.QuotaSpec{
				RequestsCPU:    "2",
				RequestsMemory: "4Gi",
				LimitsCPU:      "4",
				LimitsMemory:   "8Gi",
			},
		},
	}
	return mustYAMLDocs(project)
}

// vdiInstanceYAML declares a workspace with an explicit storage size so the
// home volume claim is created even when the operator has no storage default.
func vdiInstanceYAML() string {
	instance := &workspacev1alpha1.VDIInstance{
		TypeMeta: metav1.TypeMeta{APIVersion: workspaceAPIVersion, Kind: "VDIInstance"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      instanceName,
			Namespace: projectNamespace,
		},
		Spec: workspacev1alpha1.VDIInstanceSpec{
			User:    testUser,
			Project: projectName,
			Image:   "ghcr.io/crucible-dev/workspace-xfce:latest",
			Storage: &workspacev1alpha1.StorageSpec{Size: "1Gi"},
		},
	}
	return mustYAMLDocs(instance)
}
