// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package projectsync materializes Project, Group, and User resources from a
// YAML manifest held in a ConfigMap, so a platform team can declare its
// project roster in one place instead of hand-writing custom resources.
package projectsync

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
)

// Tier names accepted in the manifest. A tier selects a quota and limit
// preset for the project namespace.
const (
	TierSmall  = "small"
	TierMedium = "medium"
	TierLarge  = "large"
)

// Manifest is the document stored under the manifest key of the
// provisioning ConfigMap.
type Manifest struct {
	Projects []ProjectEntry `yaml:"projects" validate:"dive"`
}

// ProjectEntry declares one project together with its initial people.
type ProjectEntry struct {
	// Name becomes the Project resource name and the namespace suffix.
	Name string `yaml:"name" validate:"required,hostname_rfc1123,max=40"`

	Description string `yaml:"description"`

	// Tier selects the quota preset. Empty means medium.
	Tier string `yaml:"tier" validate:"omitempty,oneof=small medium large"`

	// Admins and Members are usernames placed into the generated
	// <project>-admin and <project>-member groups.
	Admins  []string `yaml:"admins" validate:"dive,required"`
	Members []string `yaml:"members" validate:"dive,required"`

	GitHost *GitHostEntry `yaml:"gitHost"`
}

// GitHostEntry mirrors the Project git-host settings in manifest form.
type GitHostEntry struct {
	Enabled    bool   `yaml:"enabled"`
	Visibility string `yaml:"visibility" validate:"omitempty,oneof=public limited private"`

	// Teams overrides the default admin/member teams when set.
	Teams []TeamEntry `yaml:"teams" validate:"dive"`

	Repositories []RepositoryEntry `yaml:"repositories" validate:"dive"`
}

// TeamEntry declares one git-host team.
type TeamEntry struct {
	Name       string   `yaml:"name" validate:"required"`
	Permission string   `yaml:"permission" validate:"omitempty,oneof=read write admin"`
	Groups     []string `yaml:"groups"`
}

// RepositoryEntry declares one git-host repository.
type RepositoryEntry struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Private     bool   `yaml:"private"`
	AutoInit    bool   `yaml:"autoInit"`
	TemplateURL string `yaml:"templateUrl" validate:"omitempty,url"`
}

var manifestValidator = validator.New(validator.WithRequiredStructEnabled())

// ParseManifest parses and validates a provisioning manifest. Unknown fields
// are rejected so a typo in a key surfaces as a parse error instead of a
// silently ignored setting.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	manifest := &Manifest{}
	if err := dec.Decode(manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return &Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := manifestValidator.Struct(manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return manifest, nil
}

// TierQuota returns the namespace quota preset for a tier. The medium preset
// is the default for an empty tier.
func TierQuota(tier string) *workspacev1alpha1.QuotaSpec {
	switch tier {
	case TierSmall:
		return &workspacev1alpha1.QuotaSpec{
			RequestsCPU:    "4",
			RequestsMemory: "8Gi",
			LimitsCPU:      "8",
			LimitsMemory:   "16Gi",
			Pods:           "10",
		}
	case TierLarge:
		return &workspacev1alpha1.QuotaSpec{
			RequestsCPU:    "16",
			RequestsMemory: "64Gi",
			LimitsCPU:      "32",
			LimitsMemory:   "128Gi",
			Pods:           "50",
		}
	default:
		return &workspacev1alpha1.QuotaSpec{
			RequestsCPU:    "8",
			RequestsMemory: "16Gi",
			LimitsCPU:      "16",
			LimitsMemory:   "32Gi",
			Pods:           "25",
		}
	}
}

// TierLimitRange returns the per-container limit preset for a tier.
func TierLimitRange(tier string) *workspacev1alpha1.LimitRangeSpec {
	switch tier {
	case TierSmall:
		return &workspacev1alpha1.LimitRangeSpec{
			DefaultCPU:           "1",
			DefaultMemory:        "2Gi",
			DefaultRequestCPU:    "250m",
			DefaultRequestMemory: "512Mi",
		}
	case TierLarge:
		return &workspacev1alpha1.LimitRangeSpec{
			DefaultCPU:           "4",
			DefaultMemory:        "8Gi",
			DefaultRequestCPU:    "1",
			DefaultRequestMemory: "2Gi",
		}
	default:
		return &workspacev1alpha1.LimitRangeSpec{
			DefaultCPU:           "2",
			DefaultMemory:        "4Gi",
			DefaultRequestCPU:    "500m",
			DefaultRequestMemory: "1Gi",
		}
	}
}
