// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// OAuthSource is the desired state of one OAuth authentication source on the
// git host, pointing logins at the identity provider.
type OAuthSource struct {
	Name           string
	ClientID       string
	ClientSecret   string
	DiscoveryURL   string
	Scopes         []string
	GroupClaimName string
	SkipLocalTwoFA bool
}

type authSourceRepresentation struct {
	ID   int64          `json:"id,omitempty"`
	Type string         `json:"type"`
	Name string         `json:"name"`
	Cfg  authSourceConf `json:"cfg"`
}

type authSourceConf struct {
	Provider        string   `json:"provider"`
	ClientID        string   `json:"clientID"`
	ClientSecret    string   `json:"clientSecret"`
	AutoDiscoverURL string   `json:"autoDiscoverURL"`
	Scopes          []string `json:"scopes,omitempty"`
	GroupClaimName  string   `json:"groupClaimName,omitempty"`
	SkipLocalTwoFA  bool     `json:"skipLocalTwoFA"`
}

// DiscoveryURL builds the well-known OpenID discovery endpoint for a realm
// on the identity provider.
func DiscoveryURL(identityURL, realm string) string {
	return strings.TrimSuffix(identityURL, "/") + "/realms/" + url.PathEscape(realm) + "/.well-known/openid-configuration"
}

// EnsureOAuthSource creates or updates the authentication source by name and
// returns its id. These endpoints require basic admin credentials.
func (c *Client) EnsureOAuthSource(ctx context.Context, src OAuthSource) (int64, bool, error) {
	existing, found, err := c.lookupOAuthSource(ctx, src.Name)
	if err != nil {
		return 0, false, err
	}

	rep := authSourceRepresentation{
		Type: "oauth2",
		Name: src.Name,
		Cfg: authSourceConf{
			Provider:        "openidConnect",
			ClientID:        src.ClientID,
			ClientSecret:    src.ClientSecret,
			AutoDiscoverURL: src.DiscoveryURL,
			Scopes:          src.Scopes,
			GroupClaimName:  src.GroupClaimName,
			SkipLocalTwoFA:  src.SkipLocalTwoFA,
		},
	}

	if found {
		path := "/api/v1/admin/auth/" + strconv.FormatInt(existing, 10)
		if err := c.doAdmin(ctx, http.MethodPatch, path, rep, nil); err != nil {
			return 0, false, fmt.Errorf("failed to update OAuth source %q: %w", src.Name, err)
		}
		return existing, false, nil
	}

	if err := c.doAdmin(ctx, http.MethodPost, "/api/v1/admin/auth", rep, nil); err != nil {
		return 0, false, fmt.Errorf("failed to create OAuth source %q: %w", src.Name, err)
	}

	id, found, err := c.lookupOAuthSource(ctx, src.Name)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, fmt.Errorf("OAuth source %q not found after creation", src.Name)
	}

	c.logger.Info("created git host OAuth source", "source", src.Name, "id", id)
	return id, true, nil
}

// DeleteOAuthSource removes the authentication source. Absence is success.
func (c *Client) DeleteOAuthSource(ctx context.Context, name string) error {
	id, found, err := c.lookupOAuthSource(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	path := "/api/v1/admin/auth/" + strconv.FormatInt(id, 10)
	if err := c.doAdmin(ctx, http.MethodDelete, path, nil, nil); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete OAuth source %q: %w", name, err)
	}
	return nil
}

func (c *Client) lookupOAuthSource(ctx context.Context, name string) (int64, bool, error) {
	var sources []authSourceRepresentation
	if err := c.doAdmin(ctx, http.MethodGet, "/api/v1/admin/auth", nil, &sources); err != nil {
		return 0, false, fmt.Errorf("failed to list OAuth sources: %w", err)
	}
	for _, s := range sources {
		if s.Name == name {
			return s.ID, true, nil
		}
	}
	return 0, false, nil
}
