// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"fmt"
	"net/http"
)

type realmRepresentation struct {
	Realm                  string   `json:"realm"`
	Enabled                bool     `json:"enabled"`
	DisplayName            string   `json:"displayName,omitempty"`
	LoginWithEmailAllowed  bool     `json:"loginWithEmailAllowed,omitempty"`
	DuplicateEmailsAllowed bool     `json:"duplicateEmailsAllowed"`
	ResetPasswordAllowed   bool     `json:"resetPasswordAllowed,omitempty"`
	RequiredCredentials    []string `json:"requiredCredentials,omitempty"`
	DefaultRoles           []string `json:"defaultRoles,omitempty"`
}

// EnsureRealm creates the configured realm if it does not exist yet. It
// returns true when the realm was created by this call.
func (c *Client) EnsureRealm(ctx context.Context) (bool, error) {
	var existing realmRepresentation
	err := c.do(ctx, http.MethodGet, c.adminPath(), nil, &existing)
	if err == nil {
		return false, nil
	}
	if !IsNotFound(err) {
		return false, fmt.Errorf("failed to check realm %q: %w", c.realm, err)
	}

	realm := realmRepresentation{
		Realm:                  c.realm,
		Enabled:                true,
		DisplayName:            c.realm,
		LoginWithEmailAllowed:  true,
		DuplicateEmailsAllowed: false,
		ResetPasswordAllowed:   true,
		RequiredCredentials:    []string{"password"},
		DefaultRoles:           []string{"offline_access", "uma_authorization", "user"},
	}
	if err := c.do(ctx, http.MethodPost, "/admin/realms", realm, nil); err != nil {
		if IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create realm %q: %w", c.realm, err)
	}

	c.logger.Info("created identity realm", "realm", c.realm)
	return true, nil
}
