// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

// This file contains common types shared across the identity CRDs.

// SecretKeyRef points at a single key of a Kubernetes Secret.
type SecretKeyRef struct {
	// Name of the Secret.
	Name string `json:"name"`

	// Key within the Secret data.
	Key string `json:"key"`

	// Namespace of the Secret. Defaults to the namespace of the referencing
	// resource.
	// +optional
	Namespace string `json:"namespace,omitempty"`
}

// BasicAuthSecretRef points at a Secret holding a username/password pair.
type BasicAuthSecretRef struct {
	// Name of the Secret.
	Name string `json:"name"`

	// Namespace of the Secret. Defaults to the namespace of the referencing
	// resource.
	// +optional
	Namespace string `json:"namespace,omitempty"`

	// UsernameKey is the data key holding the username.
	// +kubebuilder:default=username
	// +optional
	UsernameKey string `json:"usernameKey,omitempty"`

	// PasswordKey is the data key holding the password.
	// +kubebuilder:default=password
	// +optional
	PasswordKey string `json:"passwordKey,omitempty"`
}

// SyncState describes the outcome of one best-effort synchronization step.
type SyncState string

const (
	// SyncStateProvisioned means the step completed and the backend object exists.
	SyncStateProvisioned SyncState = "Provisioned"
	// SyncStateSkipped means the step was not attempted because its
	// configuration is incomplete (for example no storage size resolved).
	SyncStateSkipped SyncState = "Skipped"
	// SyncStateErrored means the step failed; the error is recorded in Message.
	SyncStateErrored SyncState = "Errored"
)
