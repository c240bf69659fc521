// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Repository is the desired state of one organization repository.
type Repository struct {
	Name        string
	Description string
	Private     bool
	AutoInit    bool
}

type repoRepresentation struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Private       bool   `json:"private"`
	AutoInit      bool   `json:"auto_init"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// EnsureRepository creates the repository in the organization if it does not
// exist yet. It returns true when the repository was created by this call.
func (c *Client) EnsureRepository(ctx context.Context, org string, repo Repository) (bool, error) {
	path := "/api/v1/repos/" + url.PathEscape(org) + "/" + url.PathEscape(repo.Name)
	err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err == nil {
		return false, nil
	}
	if !IsNotFound(err) {
		return false, fmt.Errorf("failed to check repository %s/%s: %w", org, repo.Name, err)
	}

	rep := repoRepresentation{
		Name:          repo.Name,
		Description:   repo.Description,
		Private:       repo.Private,
		AutoInit:      repo.AutoInit,
		DefaultBranch: "main",
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/orgs/"+url.PathEscape(org)+"/repos", rep, nil); err != nil {
		if IsAlreadyExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create repository %s/%s: %w", org, repo.Name, err)
	}

	c.logger.Info("created git host repository", "org", org, "repo", repo.Name)
	return true, nil
}

// DeleteRepository removes the repository. Absence is success.
func (c *Client) DeleteRepository(ctx context.Context, org, name string) error {
	path := "/api/v1/repos/" + url.PathEscape(org) + "/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete repository %s/%s: %w", org, name, err)
	}
	return nil
}
