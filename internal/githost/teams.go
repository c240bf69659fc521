// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

type teamRepresentation struct {
	ID                    int64  `json:"id,omitempty"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	Permission            string `json:"permission"`
	CanCreateOrgRepo      bool   `json:"can_create_org_repo"`
	IncludesAllRepository bool   `json:"includes_all_repositories"`
}

type userSummary struct {
	Username string `json:"username"`
}

// EnsureTeam creates the team in the organization if it does not exist and
// returns the team id. Team membership grants access to all repositories of
// the organization.
func (c *Client) EnsureTeam(ctx context.Context, org, name, permission string) (int64, error) {
	if permission == "" {
		permission = "read"
	}

	id, found, err := c.lookupTeam(ctx, org, name)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}

	team := teamRepresentation{
		Name:                  name,
		Permission:            permission,
		CanCreateOrgRepo:      permission == "admin",
		IncludesAllRepository: true,
	}
	var created teamRepresentation
	err = c.do(ctx, http.MethodPost, "/api/v1/orgs/"+url.PathEscape(org)+"/teams", team, &created)
	if err == nil {
		c.logger.Info("created git host team", "org", org, "team", name, "permission", permission)
		return created.ID, nil
	}
	if !IsAlreadyExists(err) {
		return 0, fmt.Errorf("failed to create team %q in organization %q: %w", name, org, err)
	}

	// Lost a create race, resolve the winner's id.
	id, found, err = c.lookupTeam(ctx, org, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("team %q not found in organization %q after creation", name, org)
	}
	return id, nil
}

func (c *Client) lookupTeam(ctx context.Context, org, name string) (int64, bool, error) {
	var teams []teamRepresentation
	err := c.do(ctx, http.MethodGet, "/api/v1/orgs/"+url.PathEscape(org)+"/teams", nil, &teams)
	if err != nil {
		if IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to list teams in organization %q: %w", org, err)
	}
	for _, t := range teams {
		if t.Name == name {
			return t.ID, true, nil
		}
	}
	return 0, false, nil
}

// TeamMembers returns the usernames currently in the team.
func (c *Client) TeamMembers(ctx context.Context, teamID int64) ([]string, error) {
	var members []userSummary
	path := "/api/v1/teams/" + strconv.FormatInt(teamID, 10) + "/members"
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, fmt.Errorf("failed to list members of team %d: %w", teamID, err)
	}
	usernames := make([]string, 0, len(members))
	for _, m := range members {
		usernames = append(usernames, m.Username)
	}
	return usernames, nil
}

// AddTeamMember adds one user to the team. A user unknown to the git host is
// skipped with a warning, not an error: accounts appear on first OAuth login
// and the next resync picks them up.
func (c *Client) AddTeamMember(ctx context.Context, teamID int64, username string) (bool, error) {
	path := "/api/v1/teams/" + strconv.FormatInt(teamID, 10) + "/members/" + url.PathEscape(username)
	err := c.do(ctx, http.MethodPut, path, nil, nil)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		c.logger.Warn("user not known to git host, skipping team add", "team", teamID, "user", username)
		return false, nil
	}
	if IsAlreadyExists(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to add user %q to team %d: %w", username, teamID, err)
}

// RemoveTeamMember removes one user from the team. Absence is success.
func (c *Client) RemoveTeamMember(ctx context.Context, teamID int64, username string) error {
	path := "/api/v1/teams/" + strconv.FormatInt(teamID, 10) + "/members/" + url.PathEscape(username)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to remove user %q from team %d: %w", username, teamID, err)
	}
	return nil
}

// SyncTeamMembers reconciles the team membership to exactly the desired
// usernames. Only the set difference is touched, so a repeated call with an
// unchanged desired set issues zero operations. Returns the number of add
// and remove operations issued.
func (c *Client) SyncTeamMembers(ctx context.Context, teamID int64, desired []string) (int, int, error) {
	current, err := c.TeamMembers(ctx, teamID)
	if err != nil {
		return 0, 0, err
	}

	currentSet := make(map[string]bool, len(current))
	for _, u := range current {
		currentSet[u] = true
	}
	desiredSet := make(map[string]bool, len(desired))
	for _, u := range desired {
		desiredSet[u] = true
	}

	var toAdd, toRemove []string
	for u := range desiredSet {
		if !currentSet[u] {
			toAdd = append(toAdd, u)
		}
	}
	for u := range currentSet {
		if !desiredSet[u] {
			toRemove = append(toRemove, u)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)

	added := 0
	for _, u := range toAdd {
		ok, err := c.AddTeamMember(ctx, teamID, u)
		if err != nil {
			return added, 0, err
		}
		if ok {
			added++
		}
	}

	removed := 0
	for _, u := range toRemove {
		if err := c.RemoveTeamMember(ctx, teamID, u); err != nil {
			return added, removed, err
		}
		removed++
	}
	return added, removed, nil
}
