// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"slices"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// AppTemplate names an application made available inside a project.
type AppTemplate struct {
	// Name identifies the application within the project.
	Name string `json:"name"`

	// Image is the container image serving the application.
	// +optional
	Image string `json:"image,omitempty"`

	// Port is the port the application listens on.
	// +optional
	Port int32 `json:"port,omitempty"`
}

// WorkspaceProfile describes a selectable workspace preset offered to
// project members.
type WorkspaceProfile struct {
	// DisplayName is the human-readable profile name.
	DisplayName string `json:"displayName"`

	// Slug is the URL-safe profile identifier.
	Slug string `json:"slug"`

	// Description explains what the profile provides.
	// +optional
	Description string `json:"description,omitempty"`

	// Image overrides the workspace container image for this profile.
	// +optional
	Image string `json:"image,omitempty"`

	// Env sets additional environment variables for workspaces spawned
	// from this profile.
	// +optional
	Env map[string]string `json:"env,omitempty"`
}

// QuotaSpec overrides the operator default resource quota for the project
// namespace. All values are Kubernetes quantity strings; empty fields keep
// the operator default.
type QuotaSpec struct {
	// +optional
	RequestsCPU string `json:"requestsCpu,omitempty"`

	// +optional
	RequestsMemory string `json:"requestsMemory,omitempty"`

	// +optional
	LimitsCPU string `json:"limitsCpu,omitempty"`

	// +optional
	LimitsMemory string `json:"limitsMemory,omitempty"`

	// +optional
	Pods string `json:"pods,omitempty"`

	// +optional
	Services string `json:"services,omitempty"`

	// +optional
	PersistentVolumeClaims string `json:"persistentVolumeClaims,omitempty"`
}

// LimitRangeSpec overrides the operator default container limits for the
// project namespace.
type LimitRangeSpec struct {
	// +optional
	DefaultCPU string `json:"defaultCpu,omitempty"`

	// +optional
	DefaultMemory string `json:"defaultMemory,omitempty"`

	// +optional
	DefaultRequestCPU string `json:"defaultRequestCpu,omitempty"`

	// +optional
	DefaultRequestMemory string `json:"defaultRequestMemory,omitempty"`
}

// TeamSpec declares one git-host team inside the project organization.
// Membership is derived from users whose groups intersect Groups.
type TeamSpec struct {
	// Name is the team name within the organization.
	Name string `json:"name"`

	// Permission is the access level granted to team members.
	// +kubebuilder:validation:Enum=read;write;admin
	// +kubebuilder:default=read
	// +optional
	Permission string `json:"permission,omitempty"`

	// Groups lists the identity groups whose members belong to this team.
	// +optional
	Groups []string `json:"groups,omitempty"`
}

// RepositorySpec declares one repository inside the project organization.
type RepositorySpec struct {
	// Name is the repository name within the organization.
	Name string `json:"name"`

	// Description is shown on the repository page.
	// +optional
	Description string `json:"description,omitempty"`

	// Private hides the repository from users outside the organization.
	// +optional
	Private bool `json:"private,omitempty"`

	// AutoInit creates an initial commit with a README when the
	// repository is created.
	// +optional
	AutoInit bool `json:"autoInit,omitempty"`

	// TemplateURL, when set, names a git repository whose contents are
	// pushed into the new repository as seed content.
	// +optional
	TemplateURL string `json:"templateUrl,omitempty"`
}

// ProjectGitHost configures the git-host organization derived from the
// project.
type ProjectGitHost struct {
	// Enabled turns git-host provisioning on for this project.
	// +optional
	Enabled bool `json:"enabled,omitempty"`

	// Visibility is the organization visibility.
	// +kubebuilder:validation:Enum=public;limited;private
	// +kubebuilder:default=private
	// +optional
	Visibility string `json:"visibility,omitempty"`

	// Teams declares the teams to maintain in the organization.
	// +optional
	Teams []TeamSpec `json:"teams,omitempty"`

	// Repositories declares the repositories to maintain in the
	// organization.
	// +optional
	Repositories []RepositorySpec `json:"repositories,omitempty"`
}

// ProjectSpec defines the desired state of a research project.
type ProjectSpec struct {
	// Description is a human-readable summary of the project.
	// +optional
	Description string `json:"description,omitempty"`

	// Apps lists the applications available in this project.
	// +optional
	Apps []AppTemplate `json:"apps,omitempty"`

	// Profiles lists the workspace profiles offered to members.
	// +optional
	Profiles []WorkspaceProfile `json:"profiles,omitempty"`

	// Quota overrides the default resource quota for the project
	// namespace.
	// +optional
	Quota *QuotaSpec `json:"quota,omitempty"`

	// LimitRange overrides the default container limits for the project
	// namespace.
	// +optional
	LimitRange *LimitRangeSpec `json:"limitRange,omitempty"`

	// Storage sets project-level storage defaults for member workspaces.
	// +optional
	Storage *StorageSpec `json:"storage,omitempty"`

	// Scheduling sets project-level scheduling defaults for member
	// workspaces.
	// +optional
	Scheduling *SchedulingSpec `json:"scheduling,omitempty"`

	// GitHost configures the git-host organization for this project.
	// +optional
	GitHost *ProjectGitHost `json:"gitHost,omitempty"`
}

// ProjectStatus defines the observed state of a project.
type ProjectStatus struct {
	// ObservedGeneration is the generation last processed by the
	// controller.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Conditions represent the latest available observations of the
	// project's state.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// Namespace is the Kubernetes namespace derived from this project.
	// +optional
	Namespace string `json:"namespace,omitempty"`

	// GitHostOrg is the git-host organization derived from this project,
	// when git-host provisioning is enabled.
	// +optional
	GitHostOrg string `json:"gitHostOrg,omitempty"`

	// Resources records the cluster resources managed for this project.
	// +optional
	Resources []ManagedResourceStatus `json:"resources,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=proj
// +kubebuilder:printcolumn:name="Namespace",type="string",JSONPath=".status.namespace"
// +kubebuilder:printcolumn:name="GitOrg",type="string",JSONPath=".status.gitHostOrg"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// Project is the Schema for the projects API.
type Project struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ProjectSpec   `json:"spec,omitempty"`
	Status ProjectStatus `json:"status,omitempty"`
}

// GetConditions returns the conditions of the project.
func (p *Project) GetConditions() []metav1.Condition {
	return p.Status.Conditions
}

// SetConditions sets the conditions of the project.
func (p *Project) SetConditions(conditions []metav1.Condition) {
	p.Status.Conditions = conditions
}

// NamespaceName returns the Kubernetes namespace derived from the project.
func (p *Project) NamespaceName() string {
	return "project-" + p.Name
}

// GitHostEnabled reports whether git-host provisioning is on for the
// project.
func (p *Project) GitHostEnabled() bool {
	return p.Spec.GitHost != nil && p.Spec.GitHost.Enabled
}

// TeamForGroup returns the name and permission of the git-host team covering
// the group in this project's organization. A declared team listing the
// group wins; otherwise the team is named after the group with read access.
func (p *Project) TeamForGroup(group string) (string, string) {
	if p.Spec.GitHost != nil {
		for _, team := range p.Spec.GitHost.Teams {
			if slices.Contains(team.Groups, group) {
				if team.Permission != "" {
					return team.Name, team.Permission
				}
				return team.Name, "read"
			}
		}
	}
	return group, "read"
}

// +kubebuilder:object:root=true

// ProjectList contains a list of Project.
type ProjectList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Project `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Project{}, &ProjectList{})
}
