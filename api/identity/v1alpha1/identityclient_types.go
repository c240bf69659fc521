// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ProtocolMapper configures one claim mapper on an OAuth/OIDC client.
// An existing mapper with the same name is replaced, not merged.
type ProtocolMapper struct {
	// Name of the mapper, unique within the client.
	Name string `json:"name"`

	// Protocol the mapper applies to.
	// +kubebuilder:default=openid-connect
	// +optional
	Protocol string `json:"protocol,omitempty"`

	// Type is the provider mapper type identifier, for example
	// oidc-group-membership-mapper.
	Type string `json:"type"`

	// Config holds the mapper configuration verbatim.
	// +optional
	Config map[string]string `json:"config,omitempty"`
}

// IdentityClientSpec defines the desired state of IdentityClient.
// Exactly one of Secret or SecretRef must resolve to a value; a client with
// no resolvable secret is skipped and reported as incomplete.
type IdentityClientSpec struct {
	// ClientID is the unique OAuth client identifier.
	ClientID string `json:"clientId"`

	// Secret is the inline client secret. Used as a fallback when SecretRef
	// cannot be read.
	// +optional
	Secret string `json:"secret,omitempty"`

	// SecretRef reads the client secret from a cluster Secret.
	// +optional
	SecretRef *SecretKeyRef `json:"secretRef,omitempty"`

	// RedirectURIs allowed for this client.
	// +optional
	RedirectURIs []string `json:"redirectURIs,omitempty"`

	// WebOrigins allowed for this client.
	// +optional
	WebOrigins []string `json:"webOrigins,omitempty"`

	// DefaultScopes are assigned as default client scopes. Each assignment is
	// independent; a missing scope name is skipped.
	// +optional
	DefaultScopes []string `json:"defaultScopes,omitempty"`

	// OptionalScopes are assigned as optional client scopes.
	// +optional
	OptionalScopes []string `json:"optionalScopes,omitempty"`

	// ProtocolMappers to create or replace by name.
	// +optional
	ProtocolMappers []ProtocolMapper `json:"protocolMappers,omitempty"`

	// Enabled controls whether the client accepts logins. Defaults to true.
	// +optional
	Enabled *bool `json:"enabled,omitempty"`

	// PublicClient marks the client as public (no secret required at the
	// provider).
	// +optional
	PublicClient bool `json:"publicClient,omitempty"`

	// StandardFlow enables the authorization code flow. Defaults to true.
	// +optional
	StandardFlow *bool `json:"standardFlow,omitempty"`

	// DirectAccessGrants enables the resource owner password flow. Defaults
	// to true.
	// +optional
	DirectAccessGrants *bool `json:"directAccessGrants,omitempty"`
}

// IdentityClientStatus defines the observed state of IdentityClient.
type IdentityClientStatus struct {
	// ObservedGeneration reflects the generation of the most recently observed IdentityClient.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Conditions represent the current state of the IdentityClient resource.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// ClientUID is the provider-internal id of the synchronized client.
	// +optional
	ClientUID string `json:"clientUID,omitempty"`

	// SecretResolved reports whether a usable secret was found at the last
	// reconcile.
	// +optional
	SecretResolved bool `json:"secretResolved,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=idc
// +kubebuilder:printcolumn:name="ClientID",type=string,JSONPath=`.spec.clientId`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// IdentityClient is the Schema for the identityclients API.
type IdentityClient struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   IdentityClientSpec   `json:"spec,omitempty"`
	Status IdentityClientStatus `json:"status,omitempty"`
}

func (c *IdentityClient) GetConditions() []metav1.Condition {
	return c.Status.Conditions
}

func (c *IdentityClient) SetConditions(conditions []metav1.Condition) {
	c.Status.Conditions = conditions
}

// IsEnabled returns the effective enabled flag, defaulting to true.
func (c *IdentityClient) IsEnabled() bool {
	return c.Spec.Enabled == nil || *c.Spec.Enabled
}

// StandardFlowEnabled returns the effective authorization code flow flag,
// defaulting to true.
func (c *IdentityClient) StandardFlowEnabled() bool {
	return c.Spec.StandardFlow == nil || *c.Spec.StandardFlow
}

// DirectAccessGrantsEnabled returns the effective password flow flag,
// defaulting to true.
func (c *IdentityClient) DirectAccessGrantsEnabled() bool {
	return c.Spec.DirectAccessGrants == nil || *c.Spec.DirectAccessGrants
}

// +kubebuilder:object:root=true

// IdentityClientList contains a list of IdentityClient.
type IdentityClientList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []IdentityClient `json:"items"`
}

func init() {
	SchemeBuilder.Register(&IdentityClient{}, &IdentityClientList{})
}
