// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// OAuthClient is the desired state of a provider OAuth/OIDC client.
type OAuthClient struct {
	ClientID           string
	Secret             string
	RedirectURIs       []string
	WebOrigins         []string
	Enabled            bool
	PublicClient       bool
	StandardFlow       bool
	DirectAccessGrants bool
}

// Mapper is the desired state of one protocol mapper on a client. A mapper
// with the same name is replaced wholesale.
type Mapper struct {
	Name     string
	Protocol string
	Type     string
	Config   map[string]string
}

type clientRepresentation struct {
	ID                        string   `json:"id,omitempty"`
	ClientID                  string   `json:"clientId"`
	Secret                    string   `json:"secret,omitempty"`
	Protocol                  string   `json:"protocol,omitempty"`
	Enabled                   bool     `json:"enabled"`
	PublicClient              bool     `json:"publicClient"`
	StandardFlowEnabled       bool     `json:"standardFlowEnabled"`
	DirectAccessGrantsEnabled bool     `json:"directAccessGrantsEnabled"`
	RedirectURIs              []string `json:"redirectUris,omitempty"`
	WebOrigins                []string `json:"webOrigins,omitempty"`
}

type clientScopeRepresentation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type mapperRepresentation struct {
	ID             string            `json:"id,omitempty"`
	Name           string            `json:"name"`
	Protocol       string            `json:"protocol"`
	ProtocolMapper string            `json:"protocolMapper"`
	Config         map[string]string `json:"config,omitempty"`
}

// LookupClient resolves a clientId to the provider's internal UUID. The
// second return value reports whether the client exists.
func (c *Client) LookupClient(ctx context.Context, clientID string) (string, bool, error) {
	var clients []clientRepresentation
	path := c.adminPath("clients") + "?clientId=" + url.QueryEscape(clientID)
	if err := c.do(ctx, http.MethodGet, path, nil, &clients); err != nil {
		return "", false, fmt.Errorf("failed to look up client %q: %w", clientID, err)
	}
	for _, cl := range clients {
		if cl.ClientID == clientID {
			return cl.ID, true, nil
		}
	}
	return "", false, nil
}

// UpsertClient creates or updates the OAuth client and returns its provider
// UUID. The second return value reports whether the client was created.
func (c *Client) UpsertClient(ctx context.Context, oc OAuthClient) (string, bool, error) {
	rep := clientRepresentation{
		ClientID:                  oc.ClientID,
		Secret:                    oc.Secret,
		Protocol:                  "openid-connect",
		Enabled:                   oc.Enabled,
		PublicClient:              oc.PublicClient,
		StandardFlowEnabled:       oc.StandardFlow,
		DirectAccessGrantsEnabled: oc.DirectAccessGrants,
		RedirectURIs:              oc.RedirectURIs,
		WebOrigins:                oc.WebOrigins,
	}

	id, found, err := c.LookupClient(ctx, oc.ClientID)
	if err != nil {
		return "", false, err
	}
	if found {
		rep.ID = id
		if err := c.do(ctx, http.MethodPut, c.adminPath("clients", id), rep, nil); err != nil {
			return "", false, fmt.Errorf("failed to update client %q: %w", oc.ClientID, err)
		}
		return id, false, nil
	}

	if err := c.do(ctx, http.MethodPost, c.adminPath("clients"), rep, nil); err != nil {
		return "", false, fmt.Errorf("failed to create client %q: %w", oc.ClientID, err)
	}

	id, found, err = c.LookupClient(ctx, oc.ClientID)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, fmt.Errorf("client %q not found after creation", oc.ClientID)
	}

	c.logger.Info("created identity client", "clientId", oc.ClientID, "id", id)
	return id, true, nil
}

// DeleteClient removes the OAuth client. A client that is already absent is
// success.
func (c *Client) DeleteClient(ctx context.Context, clientID string) error {
	id, found, err := c.LookupClient(ctx, clientID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := c.do(ctx, http.MethodDelete, c.adminPath("clients", id), nil, nil); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete client %q: %w", clientID, err)
	}
	return nil
}

// AssignScopes attaches realm client scopes to the client. Each assignment
// is independent; scope names unknown to the realm are skipped and returned,
// not raised, so one missing scope cannot block the rest.
func (c *Client) AssignScopes(ctx context.Context, clientUID string, defaults, optionals []string) ([]string, error) {
	var scopes []clientScopeRepresentation
	if err := c.do(ctx, http.MethodGet, c.adminPath("client-scopes"), nil, &scopes); err != nil {
		return nil, fmt.Errorf("failed to list client scopes: %w", err)
	}
	byName := make(map[string]string, len(scopes))
	for _, s := range scopes {
		byName[s.Name] = s.ID
	}

	var missing []string
	assign := func(names []string, kind string) error {
		for _, name := range names {
			scopeID, ok := byName[name]
			if !ok {
				c.logger.Warn("skipping unknown client scope", "client", clientUID, "scope", name)
				missing = append(missing, name)
				continue
			}
			path := c.adminPath("clients", clientUID, kind, scopeID)
			if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
				return fmt.Errorf("failed to assign scope %q to client %s: %w", name, clientUID, err)
			}
		}
		return nil
	}

	if err := assign(defaults, "default-client-scopes"); err != nil {
		return missing, err
	}
	if err := assign(optionals, "optional-client-scopes"); err != nil {
		return missing, err
	}
	return missing, nil
}

// EnsureProtocolMappers creates or replaces the client's protocol mappers by
// name.
func (c *Client) EnsureProtocolMappers(ctx context.Context, clientUID string, mappers []Mapper) error {
	var existing []mapperRepresentation
	path := c.adminPath("clients", clientUID, "protocol-mappers", "models")
	if err := c.do(ctx, http.MethodGet, path, nil, &existing); err != nil {
		return fmt.Errorf("failed to list protocol mappers for client %s: %w", clientUID, err)
	}
	byName := make(map[string]string, len(existing))
	for _, m := range existing {
		byName[m.Name] = m.ID
	}

	for _, m := range mappers {
		protocol := m.Protocol
		if protocol == "" {
			protocol = "openid-connect"
		}
		rep := mapperRepresentation{
			Name:           m.Name,
			Protocol:       protocol,
			ProtocolMapper: m.Type,
			Config:         m.Config,
		}
		if id, ok := byName[m.Name]; ok {
			rep.ID = id
			if err := c.do(ctx, http.MethodPut, c.adminPath("clients", clientUID, "protocol-mappers", "models", id), rep, nil); err != nil {
				return fmt.Errorf("failed to update protocol mapper %q on client %s: %w", m.Name, clientUID, err)
			}
			continue
		}
		if err := c.do(ctx, http.MethodPost, path, rep, nil); err != nil {
			return fmt.Errorf("failed to create protocol mapper %q on client %s: %w", m.Name, clientUID, err)
		}
	}
	return nil
}
