// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// OIDCSecretRef points at a Secret holding an OAuth client id/secret pair.
type OIDCSecretRef struct {
	// Name of the Secret.
	Name string `json:"name"`

	// Namespace of the Secret. Defaults to the namespace of the referencing
	// resource.
	// +optional
	Namespace string `json:"namespace,omitempty"`

	// ClientIDKey is the data key holding the OAuth client id.
	// +kubebuilder:default=clientId
	// +optional
	ClientIDKey string `json:"clientIdKey,omitempty"`

	// ClientSecretKey is the data key holding the OAuth client secret.
	// +kubebuilder:default=clientSecret
	// +optional
	ClientSecretKey string `json:"clientSecretKey,omitempty"`
}

// GitHostClientSpec defines the desired state of GitHostClient. Each resource
// drives a single idempotent upsert of one OAuth authentication source on the
// git host, wiring its logins to the identity provider.
type GitHostClientSpec struct {
	// SourceName is the OAuth source name on the git host. Defaults to the
	// object name.
	// +optional
	SourceName string `json:"sourceName,omitempty"`

	// HostURL is the base URL of the git host.
	HostURL string `json:"hostURL"`

	// IdentityURL is the base URL of the identity provider.
	IdentityURL string `json:"identityURL"`

	// Realm on the identity provider used for discovery.
	Realm string `json:"realm"`

	// AdminSecretRef holds the git host admin credentials.
	AdminSecretRef BasicAuthSecretRef `json:"adminSecretRef"`

	// OIDCSecretRef holds the OAuth client credentials registered on the
	// identity provider for the git host.
	OIDCSecretRef OIDCSecretRef `json:"oidcSecretRef"`

	// Scopes requested during login.
	// +optional
	Scopes []string `json:"scopes,omitempty"`

	// GroupClaim is the token claim carrying group memberships.
	// +kubebuilder:default=groups
	// +optional
	GroupClaim string `json:"groupClaim,omitempty"`

	// AutoDiscover derives the provider endpoints from the realm's
	// well-known discovery document. Defaults to true.
	// +optional
	AutoDiscover *bool `json:"autoDiscover,omitempty"`

	// InsecureSkipVerify disables TLS certificate verification towards the
	// git host. Development only.
	// +optional
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty"`
}

// GitHostClientStatus defines the observed state of GitHostClient.
type GitHostClientStatus struct {
	// ObservedGeneration reflects the generation of the most recently observed GitHostClient.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Conditions represent the current state of the GitHostClient resource.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// SourceID is the git-host internal id of the OAuth source.
	// +optional
	SourceID int64 `json:"sourceID,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=ghc
// +kubebuilder:printcolumn:name="Host",type=string,JSONPath=`.spec.hostURL`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// GitHostClient is the Schema for the githostclients API.
type GitHostClient struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   GitHostClientSpec   `json:"spec,omitempty"`
	Status GitHostClientStatus `json:"status,omitempty"`
}

func (c *GitHostClient) GetConditions() []metav1.Condition {
	return c.Status.Conditions
}

func (c *GitHostClient) SetConditions(conditions []metav1.Condition) {
	c.Status.Conditions = conditions
}

// OAuthSourceName returns the effective OAuth source name.
func (c *GitHostClient) OAuthSourceName() string {
	if c.Spec.SourceName != "" {
		return c.Spec.SourceName
	}
	return c.Name
}

// GroupClaimName returns the effective group claim name.
func (c *GitHostClient) GroupClaimName() string {
	if c.Spec.GroupClaim != "" {
		return c.Spec.GroupClaim
	}
	return "groups"
}

// AutoDiscoverEnabled reports whether provider endpoints are derived from the
// realm discovery document. Defaults to true.
func (c *GitHostClient) AutoDiscoverEnabled() bool {
	return c.Spec.AutoDiscover == nil || *c.Spec.AutoDiscover
}

// +kubebuilder:object:root=true

// GitHostClientList contains a list of GitHostClient.
type GitHostClientList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []GitHostClient `json:"items"`
}

func init() {
	SchemeBuilder.Register(&GitHostClient{}, &GitHostClientList{})
}
