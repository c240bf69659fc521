// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type groupRepresentation struct {
	ID         string              `json:"id,omitempty"`
	Name       string              `json:"name"`
	Path       string              `json:"path,omitempty"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// LookupGroup resolves a group name to the provider's internal group ID. The
// second return value reports whether the group exists.
func (c *Client) LookupGroup(ctx context.Context, name string) (string, bool, error) {
	var groups []groupRepresentation
	path := c.adminPath("groups") + "?search=" + url.QueryEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &groups); err != nil {
		return "", false, fmt.Errorf("failed to look up group %q: %w", name, err)
	}
	for _, g := range groups {
		if g.Name == name {
			return g.ID, true, nil
		}
	}
	return "", false, nil
}

// UpsertGroup creates or updates the group and returns its provider ID. The
// second return value reports whether the group was created.
func (c *Client) UpsertGroup(ctx context.Context, name string, attributes map[string][]string) (string, bool, error) {
	rep := groupRepresentation{Name: name, Attributes: attributes}

	id, found, err := c.LookupGroup(ctx, name)
	if err != nil {
		return "", false, err
	}
	if found {
		if err := c.do(ctx, http.MethodPut, c.adminPath("groups", id), rep, nil); err != nil {
			return "", false, fmt.Errorf("failed to update group %q: %w", name, err)
		}
		return id, false, nil
	}

	if err := c.do(ctx, http.MethodPost, c.adminPath("groups"), rep, nil); err != nil {
		return "", false, fmt.Errorf("failed to create group %q: %w", name, err)
	}

	id, found, err = c.LookupGroup(ctx, name)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, fmt.Errorf("group %q not found after creation", name)
	}

	c.logger.Info("created identity group", "group", name, "id", id)
	return id, true, nil
}

// DeleteGroup removes the group. A group that is already absent is success.
func (c *Client) DeleteGroup(ctx context.Context, name string) error {
	id, found, err := c.LookupGroup(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := c.do(ctx, http.MethodDelete, c.adminPath("groups", id), nil, nil); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete group %q: %w", name, err)
	}
	return nil
}

// AddUserToGroup adds one membership. Adding an existing membership is a
// no-op on the provider side.
func (c *Client) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	if err := c.do(ctx, http.MethodPut, c.adminPath("users", userID, "groups", groupID), nil, nil); err != nil {
		return fmt.Errorf("failed to add user %s to group %s: %w", userID, groupID, err)
	}
	return nil
}
