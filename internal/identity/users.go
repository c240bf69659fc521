// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// User is the desired state of a provider user account.
type User struct {
	Username   string
	Email      string
	FirstName  string
	LastName   string
	Enabled    bool
	Attributes map[string][]string
}

type userRepresentation struct {
	ID         string              `json:"id,omitempty"`
	Username   string              `json:"username"`
	Email      string              `json:"email,omitempty"`
	FirstName  string              `json:"firstName,omitempty"`
	LastName   string              `json:"lastName,omitempty"`
	Enabled    bool                `json:"enabled"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// LookupUser resolves a username to the provider's internal user ID. The
// second return value reports whether the user exists.
func (c *Client) LookupUser(ctx context.Context, username string) (string, bool, error) {
	var users []userRepresentation
	path := c.adminPath("users") + "?exact=true&username=" + url.QueryEscape(username)
	if err := c.do(ctx, http.MethodGet, path, nil, &users); err != nil {
		return "", false, fmt.Errorf("failed to look up user %q: %w", username, err)
	}
	for _, u := range users {
		if u.Username == username {
			return u.ID, true, nil
		}
	}
	return "", false, nil
}

// UpsertUser creates or updates the user and returns its provider ID along
// with whether this call created it.
func (c *Client) UpsertUser(ctx context.Context, user User) (string, bool, error) {
	rep := userRepresentation{
		Username:   user.Username,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Enabled:    user.Enabled,
		Attributes: user.Attributes,
	}

	id, found, err := c.LookupUser(ctx, user.Username)
	if err != nil {
		return "", false, err
	}
	if found {
		if err := c.do(ctx, http.MethodPut, c.adminPath("users", id), rep, nil); err != nil {
			return "", false, fmt.Errorf("failed to update user %q: %w", user.Username, err)
		}
		return id, false, nil
	}

	if err := c.do(ctx, http.MethodPost, c.adminPath("users"), rep, nil); err != nil {
		return "", false, fmt.Errorf("failed to create user %q: %w", user.Username, err)
	}

	// The create response carries no body, so resolve the assigned ID with a
	// follow-up lookup.
	id, found, err = c.LookupUser(ctx, user.Username)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, fmt.Errorf("user %q not found after creation", user.Username)
	}

	c.logger.Info("created identity user", "username", user.Username, "id", id)
	return id, true, nil
}

// DeleteUser removes the user. A user that is already absent is success.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	id, found, err := c.LookupUser(ctx, username)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := c.do(ctx, http.MethodDelete, c.adminPath("users", id), nil, nil); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete user %q: %w", username, err)
	}
	return nil
}

// SetPassword sets the user's password credential. Temporary passwords force
// a change on first login.
func (c *Client) SetPassword(ctx context.Context, userID, password string, temporary bool) error {
	credential := map[string]any{
		"type":      "password",
		"value":     password,
		"temporary": temporary,
	}
	if err := c.do(ctx, http.MethodPut, c.adminPath("users", userID, "reset-password"), credential, nil); err != nil {
		return fmt.Errorf("failed to set password for user %s: %w", userID, err)
	}
	return nil
}

// ReplaceUserGroups makes the user's group memberships exactly the named
// groups. All current memberships are removed first, then the named groups
// are re-added, so stale memberships never survive. Groups that do not exist
// in the provider are skipped and returned so the caller can surface them;
// they are not an error.
func (c *Client) ReplaceUserGroups(ctx context.Context, userID string, groups []string) ([]string, error) {
	var current []groupRepresentation
	if err := c.do(ctx, http.MethodGet, c.adminPath("users", userID, "groups"), nil, &current); err != nil {
		return nil, fmt.Errorf("failed to list groups for user %s: %w", userID, err)
	}

	for _, g := range current {
		if err := c.do(ctx, http.MethodDelete, c.adminPath("users", userID, "groups", g.ID), nil, nil); err != nil && !IsNotFound(err) {
			return nil, fmt.Errorf("failed to remove user %s from group %q: %w", userID, g.Name, err)
		}
	}

	var missing []string
	for _, name := range groups {
		groupID, found, err := c.LookupGroup(ctx, name)
		if err != nil {
			return nil, err
		}
		if !found {
			c.logger.Warn("skipping membership in unknown group", "user", userID, "group", name)
			missing = append(missing, name)
			continue
		}
		if err := c.do(ctx, http.MethodPut, c.adminPath("users", userID, "groups", groupID), nil, nil); err != nil {
			return nil, fmt.Errorf("failed to add user %s to group %q: %w", userID, name, err)
		}
	}
	return missing, nil
}
