// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity synchronizes users, groups and OAuth clients to the OIDC
// identity provider through its admin REST API. The custom resources are the
// source of truth; every operation here is an idempotent mirror step.
package identity

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
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenRefreshMargin renews the admin token this long before it expires so
// in-flight requests never race the expiry.
const tokenRefreshMargin = 30 * time.Second

// Config holds the connection settings for the identity provider admin API.
type Config struct {
	// BaseURL of the provider, for example http://keycloak.crucible-system:8080.
	BaseURL string

	// Realm the synchronized users, groups and clients live in. Admin
	// authentication always happens against the master realm.
	Realm string

	// Username and Password of the admin account.
	Username string
	Password string

	// Timeout for each admin API call.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS verification. Development only.
	InsecureSkipVerify bool
}

// Client is a minimal JSON client for the provider admin API. It manages the
// admin access token internally, renewing it ahead of the expiry carried in
// the token's exp claim.
type Client struct {
	baseURL    string
	realm      string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient validates the configuration and returns a client. No network
// call is made; use Ping to verify connectivity.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("identity provider base URL is required")
	}
	if cfg.Realm == "" {
		return nil, fmt.Errorf("identity provider realm is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("identity provider admin credentials are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		transport = &http.Transport{
			// #nosec G402 -- opt-in for development clusters without proper certificates
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		realm:    cfg.Realm,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// Realm returns the realm this client synchronizes into.
func (c *Client) Realm() string {
	return c.realm
}

// Ping verifies admin connectivity by acquiring a token and listing realms.
func (c *Client) Ping(ctx context.Context) error {
	var realms []realmRepresentation
	if err := c.do(ctx, http.MethodGet, "/admin/realms", nil, &realms); err != nil {
		return fmt.Errorf("identity provider ping failed: %w", err)
	}
	return nil
}

// APIError is returned for non-success responses from the admin API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("identity provider returned status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an admin API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is an admin API 409.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// token returns a valid admin access token, fetching a fresh one when the
// cached token is within the refresh margin of its expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(tokenRefreshMargin).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {"admin-cli"},
		"username":   {c.username},
		"password":   {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/realms/master/protocol/openid-connect/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch admin token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tr.AccessToken
	c.tokenExpiry = tokenExpiry(tr)
	return c.accessToken, nil
}

// tokenExpiry derives when the access token stops being usable. The exp
// claim is authoritative when the token parses as a JWT; expires_in covers
// opaque tokens.
func tokenExpiry(tr tokenResponse) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
}

// do performs one authenticated admin API call. Non-2xx responses become an
// *APIError; a nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to identity provider failed: %w", err)
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

// adminPath builds a realm-scoped admin API path.
func (c *Client) adminPath(segments ...string) string {
	parts := append([]string{"/admin/realms", url.PathEscape(c.realm)}, segments...)
	return strings.Join(parts, "/")
}

func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
