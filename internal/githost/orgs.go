// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type orgRepresentation struct {
	Username                  string `json:"username"`
	FullName                  string `json:"full_name,omitempty"`
	Description               string `json:"description,omitempty"`
	Visibility                string `json:"visibility,omitempty"`
	RepoAdminChangeTeamAccess bool   `json:"repo_admin_change_team_access"`
}

// EnsureOrg creates the organization if it does not exist yet. It returns
// true when the organization was created by this call.
func (c *Client) EnsureOrg(ctx context.Context, name, description, visibility string) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/api/v1/orgs/"+url.PathEscape(name), nil, nil)
	if err == nil {
		return false, nil
	}
	if !IsNotFound(err) {
		return false, fmt.Errorf("failed to check organization %q: %w", name, err)
	}

	if visibility == "" {
		visibility = "private"
	}
	org := orgRepresentation{
		Username:    name,
		Description: description,
		Visibility:  visibility,
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/orgs", org, nil); err != nil {
		if IsAlreadyExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create organization %q: %w", name, err)
	}

	c.logger.Info("created git host organization", "org", name, "visibility", visibility)
	return true, nil
}

// DeleteOrg removes the organization. An organization that is already absent
// is success.
func (c *Client) DeleteOrg(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/api/v1/orgs/"+url.PathEscape(name), nil, nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete organization %q: %w", name, err)
	}
	return nil
}
