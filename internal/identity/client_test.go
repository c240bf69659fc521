// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient wires a client against a fake admin API. The token endpoint
// is served automatically; handler receives everything under /admin/.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","expires_in":300}`))
	})
	mux.Handle("/admin/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:  server.URL,
		Realm:    "crucible",
		Username: "admin",
		Password: "admin",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return client
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing base URL", cfg: Config{Realm: "r", Username: "u", Password: "p"}},
		{name: "missing realm", cfg: Config{BaseURL: "http://idp", Username: "u", Password: "p"}},
		{name: "missing credentials", cfg: Config{BaseURL: "http://idp", Realm: "r"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.cfg, testLogger()); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestTokenIsCachedUntilRefreshMargin(t *testing.T) {
	tokenHits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		tokenHits++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Failed to parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "password" {
			t.Errorf("grant_type = %q, want %q", got, "password")
		}
		if got := r.PostForm.Get("client_id"); got != "admin-cli" {
			t.Errorf("client_id = %q, want %q", got, "admin-cli")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","expires_in":300}`))
	})
	mux.HandleFunc("/admin/realms", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		_, _ = w.Write([]byte(`[]`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL:  server.URL,
		Realm:    "crucible",
		Username: "admin",
		Password: "admin",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	ctx := context.Background()
	for range 3 {
		if err := client.Ping(ctx); err != nil {
			t.Fatalf("Ping() error: %v", err)
		}
	}

	if tokenHits != 1 {
		t.Errorf("Token endpoint hit %d times, want 1", tokenHits)
	}
}

func TestTokenIsRefreshedWhenNearExpiry(t *testing.T) {
	tokenHits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		tokenHits++
		// Expires inside the refresh margin, so every call refetches.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","expires_in":5}`))
	})
	mux.HandleFunc("/admin/realms", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL:  server.URL,
		Realm:    "crucible",
		Username: "admin",
		Password: "admin",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	ctx := context.Background()
	for range 2 {
		if err := client.Ping(ctx); err != nil {
			t.Fatalf("Ping() error: %v", err)
		}
	}

	if tokenHits != 2 {
		t.Errorf("Token endpoint hit %d times, want 2", tokenHits)
	}
}

func TestTokenExpiryPrefersJWTClaim(t *testing.T) {
	exp := time.Now().Add(2 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}

	got := tokenExpiry(tokenResponse{AccessToken: signed, ExpiresIn: 9999})
	if !got.Equal(exp) {
		t.Errorf("tokenExpiry() = %v, want %v", got, exp)
	}
}

func TestTokenExpiryFallsBackToExpiresIn(t *testing.T) {
	before := time.Now()
	got := tokenExpiry(tokenResponse{AccessToken: "opaque-token", ExpiresIn: 60})
	lifetime := got.Sub(before)
	if lifetime < 55*time.Second || lifetime > 65*time.Second {
		t.Errorf("tokenExpiry() lifetime = %v, want about 60s", lifetime)
	}
}

func TestDoMapsErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		checkFn    func(error) bool
		checkName  string
		wantInBody string
	}{
		{
			name:      "404 is not found",
			status:    http.StatusNotFound,
			body:      `{"error":"User not found"}`,
			checkFn:   IsNotFound,
			checkName: "IsNotFound",
		},
		{
			name:      "409 is conflict",
			status:    http.StatusConflict,
			body:      `{"errorMessage":"User exists with same username"}`,
			checkFn:   IsConflict,
			checkName: "IsConflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := client.do(context.Background(), http.MethodGet, client.adminPath("users", "u-1"), nil, nil)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !tt.checkFn(err) {
				t.Errorf("%s(err) = false for %v", tt.checkName, err)
			}
		})
	}
}

func TestErrorCarriesStatusAndBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"unknown_error"}`))
	})

	err := client.do(context.Background(), http.MethodGet, client.adminPath("users"), nil, nil)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if IsNotFound(err) || IsConflict(err) {
		t.Errorf("500 should be neither not-found nor conflict: %v", err)
	}
}
