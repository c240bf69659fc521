// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// VDIPhase is the lifecycle phase of a VDI instance.
type VDIPhase string

const (
	// VDIPhasePending means the workspace pod has not been created yet.
	VDIPhasePending VDIPhase = "Pending"

	// VDIPhaseRunning means the workspace pod and service exist.
	VDIPhaseRunning VDIPhase = "Running"

	// VDIPhaseFailed means the workspace pod could not be created.
	VDIPhaseFailed VDIPhase = "Failed"
)

// Supported remote-access protocols.
const (
	ConnectionTypeRDP = "rdp"
	ConnectionTypeVNC = "vnc"
	ConnectionTypeSSH = "ssh"
)

// VDIInstanceSpec defines the desired state of a virtual desktop workspace.
type VDIInstanceSpec struct {
	// User is the name of the User the workspace belongs to.
	User string `json:"user"`

	// Project is the name of the Project the workspace runs in.
	Project string `json:"project"`

	// Image is the workspace container image.
	Image string `json:"image"`

	// ConnectionType selects the remote-access protocol.
	// +kubebuilder:validation:Enum=rdp;vnc;ssh
	// +kubebuilder:default=rdp
	// +optional
	ConnectionType string `json:"connectionType,omitempty"`

	// Env sets additional environment variables in the workspace
	// container. Changing a value restarts the workspace pod.
	// +optional
	Env []corev1.EnvVar `json:"env,omitempty"`

	// Storage overrides project and operator storage defaults for the
	// workspace home volume.
	// +optional
	Storage *StorageSpec `json:"storage,omitempty"`

	// Scheduling overrides project scheduling defaults for the workspace
	// pod.
	// +optional
	Scheduling *SchedulingSpec `json:"scheduling,omitempty"`

	// Persistent attaches the user's project volume to the workspace.
	// Defaults to true.
	// +optional
	Persistent *bool `json:"persistent,omitempty"`
}

// VDIInstanceStatus defines the observed state of a virtual desktop
// workspace.
type VDIInstanceStatus struct {
	// ObservedGeneration is the generation last processed by the
	// controller.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Conditions represent the latest available observations of the
	// workspace's state.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// Phase is the coarse lifecycle phase of the workspace.
	// +optional
	Phase VDIPhase `json:"phase,omitempty"`

	// SessionPassword is the generated connection password. It is
	// generated once and kept stable across pod restarts.
	// +optional
	SessionPassword string `json:"sessionPassword,omitempty"`

	// EnvVars records the environment last applied to the workspace pod,
	// used to detect spec changes that require a restart.
	// +optional
	EnvVars map[string]string `json:"envVars,omitempty"`

	// PodName is the name of the workspace pod.
	// +optional
	PodName string `json:"podName,omitempty"`

	// ServiceName is the name of the workspace service.
	// +optional
	ServiceName string `json:"serviceName,omitempty"`

	// LastUpdated is the time of the last applied workspace change.
	// +optional
	LastUpdated *metav1.Time `json:"lastUpdated,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=vdi
// +kubebuilder:printcolumn:name="User",type="string",JSONPath=".spec.user"
// +kubebuilder:printcolumn:name="Project",type="string",JSONPath=".spec.project"
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// VDIInstance is the Schema for the vdiinstances API.
type VDIInstance struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   VDIInstanceSpec   `json:"spec,omitempty"`
	Status VDIInstanceStatus `json:"status,omitempty"`
}

// GetConditions returns the conditions of the VDI instance.
func (v *VDIInstance) GetConditions() []metav1.Condition {
	return v.Status.Conditions
}

// SetConditions sets the conditions of the VDI instance.
func (v *VDIInstance) SetConditions(conditions []metav1.Condition) {
	v.Status.Conditions = conditions
}

// IsPersistent reports whether the workspace mounts the user's project
// volume. Unset means persistent.
func (v *VDIInstance) IsPersistent() bool {
	return v.Spec.Persistent == nil || *v.Spec.Persistent
}

// PodName returns the name of the pod backing the workspace.
func (v *VDIInstance) PodName() string {
	return "vdi-" + v.Name
}

// ConnectionType returns the remote-access protocol, defaulting to rdp.
func (v *VDIInstance) ConnectionType() string {
	if v.Spec.ConnectionType == "" {
		return ConnectionTypeRDP
	}
	return v.Spec.ConnectionType
}

// +kubebuilder:object:root=true

// VDIInstanceList contains a list of VDIInstance.
type VDIInstanceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []VDIInstance `json:"items"`
}

func init() {
	SchemeBuilder.Register(&VDIInstance{}, &VDIInstanceList{})
}
