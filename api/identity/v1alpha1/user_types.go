// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// UserSpec defines the desired state of User. The object name is the canonical
// username and must resolve to exactly one identity-provider account.
type UserSpec struct {
	// Email address of the user.
	// +optional
	Email string `json:"email,omitempty"`

	// FirstName of the user.
	// +optional
	FirstName string `json:"firstName,omitempty"`

	// LastName of the user.
	// +optional
	LastName string `json:"lastName,omitempty"`

	// Enabled controls whether the identity-provider account accepts logins.
	// Defaults to true.
	// +optional
	Enabled *bool `json:"enabled,omitempty"`

	// Password is set permanently on the identity-provider account when
	// present. When absent, a temporary password is generated on first
	// creation only and surfaced once through status.
	// +optional
	Password string `json:"password,omitempty"`

	// Groups lists the names of Groups this user belongs to. Membership on
	// the identity provider is replaced to match this list exactly.
	// +optional
	Groups []string `json:"groups,omitempty"`

	// Attributes are provider-specific user attributes.
	// +optional
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// StorageProvisionStatus records the outcome of provisioning one per-project
// workspace volume for this user.
type StorageProvisionStatus struct {
	// Project is the project the volume belongs to.
	Project string `json:"project"`

	// ClaimName is the name of the PersistentVolumeClaim.
	// +optional
	ClaimName string `json:"claimName,omitempty"`

	// Size is the resolved volume size.
	// +optional
	Size string `json:"size,omitempty"`

	// State is Provisioned, Skipped or Errored.
	State SyncState `json:"state"`

	// Message carries detail for skipped or errored steps.
	// +optional
	Message string `json:"message,omitempty"`
}

// TeamMembershipStatus records the outcome of one git-host team membership add.
type TeamMembershipStatus struct {
	// Organization is the git-host organization.
	Organization string `json:"organization"`

	// Team within the organization.
	Team string `json:"team"`

	// State is Provisioned, Skipped or Errored.
	State SyncState `json:"state"`

	// +optional
	Message string `json:"message,omitempty"`
}

// UserStatus defines the observed state of User.
type UserStatus struct {
	// ObservedGeneration reflects the generation of the most recently observed User.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Conditions represent the current state of the User resource.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// InitialPassword is the temporary password generated at first creation
	// when the spec carries none. It is written exactly once and never
	// regenerated on later reconciles.
	// +optional
	InitialPassword string `json:"initialPassword,omitempty"`

	// Storage lists the per-project volume provisioning outcomes.
	// +optional
	Storage []StorageProvisionStatus `json:"storage,omitempty"`

	// GitHost lists the per-team membership outcomes.
	// +optional
	GitHost []TeamMembershipStatus `json:"gitHost,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=usr
// +kubebuilder:printcolumn:name="Email",type=string,JSONPath=`.spec.email`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// User is the Schema for the users API.
type User struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   UserSpec   `json:"spec,omitempty"`
	Status UserStatus `json:"status,omitempty"`
}

func (u *User) GetConditions() []metav1.Condition {
	return u.Status.Conditions
}

func (u *User) SetConditions(conditions []metav1.Condition) {
	u.Status.Conditions = conditions
}

// IsEnabled returns the effective enabled flag, defaulting to true.
func (u *User) IsEnabled() bool {
	return u.Spec.Enabled == nil || *u.Spec.Enabled
}

// +kubebuilder:object:root=true

// UserList contains a list of User.
type UserList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []User `json:"items"`
}

func init() {
	SchemeBuilder.Register(&User{}, &UserList{})
}
