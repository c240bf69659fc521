// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package githost synchronizes organizations, teams, team memberships and
// repositories to the git hosting service through its REST API. Membership
// reconciliation is set-difference based so repeated runs converge to zero
// operations.
package githost

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// waitReadyInterval is the poll interval for the startup readiness probe.
const waitReadyInterval = 5 * time.Second

// Config holds the connection settings for the git host API.
type Config struct {
	// BaseURL of the git host, for example http://gitea-http.gitea.svc:3000.
	BaseURL string

	// Token is an admin API token. Used for organization, team and
	// repository calls.
	Token string

	// AdminUsername and AdminPassword authenticate the authentication-source
	// admin endpoints, which require basic credentials instead of a token.
	AdminUsername string
	AdminPassword string

	// Timeout for each API call.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS verification. Development only.
	InsecureSkipVerify bool
}

// Client is a minimal JSON client for the git host API.
type Client struct {
	baseURL       string
	token         string
	adminUsername string
	adminPassword string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient validates the configuration and returns a client. At least one
// of token or basic admin credentials must be set.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("git host base URL is required")
	}
	if cfg.Token == "" && cfg.AdminUsername == "" {
		return nil, fmt.Errorf("git host credentials are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		transport = &http.Transport{
			// #nosec G402 -- opt-in for development clusters without proper certificates
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		token:         cfg.Token,
		adminUsername: cfg.AdminUsername,
		adminPassword: cfg.AdminPassword,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the configured git host URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is returned for non-success responses from the git host API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("git host returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("git host returned status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a git host 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsAlreadyExists reports whether err signals that the record exists. The
// git host answers 409 for duplicate repositories and 422 for duplicate
// organizations and teams.
func IsAlreadyExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict || apiErr.StatusCode == http.StatusUnprocessableEntity
}

type versionResponse struct {
	Version string `json:"version"`
}

// Ping checks that the git host answers its version endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var v versionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/version", nil, &v); err != nil {
		return fmt.Errorf("git host ping failed: %w", err)
	}
	return nil
}

// WaitReady polls the version endpoint until the git host responds or the
// timeout elapses. Used at startup: the git host and the operator commonly
// come up together and the host is slower.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(waitReadyInterval)
	defer ticker.Stop()

	for {
		if err := c.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("git host at %s not ready after %s", c.baseURL, timeout)
		case <-ticker.C:
		}
	}
}

// do performs one token-authenticated API call. Non-2xx responses become an
// *APIError; a nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.request(ctx, method, path, in, out, false)
}

// doAdmin performs one call against the authentication-source admin
// endpoints, which require basic admin credentials instead of a token.
func (c *Client) doAdmin(ctx context.Context, method, path string, in, out any) error {
	if c.adminUsername == "" {
		return fmt.Errorf("git host admin credentials are not configured")
	}
	return c.request(ctx, method, path, in, out, true)
}

func (c *Client) request(ctx context.Context, method, path string, in, out any, basicAuth bool) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if basicAuth || c.token == "" {
		req.SetBasicAuth(c.adminUsername, c.adminPassword)
	} else {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to git host failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
