// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// GroupSpec defines the desired state of Group.
type GroupSpec struct {
	// Description of the group, mirrored into the identity-provider group
	// attributes.
	// +optional
	Description string `json:"description,omitempty"`

	// Members is the authoritative list of usernames when set. When nil,
	// membership is derived by scanning Users whose spec.groups reference
	// this group.
	// +optional
	Members []string `json:"members,omitempty"`

	// Projects lists the projects this group grants access to. Member
	// storage and git-host teams are provisioned per project.
	// +optional
	Projects []string `json:"projects,omitempty"`

	// SubGroups lists contained group names.
	// +optional
	SubGroups []string `json:"subGroups,omitempty"`

	// Attributes are provider-specific group attributes.
	// +optional
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// GroupStatus defines the observed state of Group.
type GroupStatus struct {
	// ObservedGeneration reflects the generation of the most recently observed Group.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Conditions represent the current state of the Group resource.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// MemberCount is the number of resolved members at the last sync.
	// +optional
	MemberCount int `json:"memberCount,omitempty"`

	// SyncedMembers counts members successfully added to the provider group.
	// +optional
	SyncedMembers int `json:"syncedMembers,omitempty"`

	// FailedMembers counts members that could not be added. Failures are
	// retried on the next resync rather than raised.
	// +optional
	FailedMembers int `json:"failedMembers,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=grp
// +kubebuilder:printcolumn:name="Members",type=integer,JSONPath=`.status.memberCount`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// Group is the Schema for the groups API.
type Group struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   GroupSpec   `json:"spec,omitempty"`
	Status GroupStatus `json:"status,omitempty"`
}

func (g *Group) GetConditions() []metav1.Condition {
	return g.Status.Conditions
}

func (g *Group) SetConditions(conditions []metav1.Condition) {
	g.Status.Conditions = conditions
}

// +kubebuilder:object:root=true

// GroupList contains a list of Group.
type GroupList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Group `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Group{}, &GroupList{})
}
