// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package githost

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestEnsureOrg_CreatesWhenMissing(t *testing.T) {
	var created orgRepresentation

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /api/v1/orgs/project-alpha":
			w.WriteHeader(http.StatusNotFound)
		case "POST /api/v1/orgs":
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Fatalf("Failed to decode create body: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":1,"username":"project-alpha"}`))
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	wasCreated, err := client.EnsureOrg(context.Background(), "project-alpha", "Alpha project", "")
	if err != nil {
		t.Fatalf("EnsureOrg() error: %v", err)
	}
	if !wasCreated {
		t.Error("EnsureOrg() created = false, want true")
	}
	if created.Username != "project-alpha" {
		t.Errorf("Create username = %q, want %q", created.Username, "project-alpha")
	}
	if created.Visibility != "private" {
		t.Errorf("Create visibility = %q, want default private", created.Visibility)
	}
}

func TestEnsureOrg_ExistingIsNoOp(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /api/v1/orgs/project-alpha":
			_, _ = w.Write([]byte(`{"id":1,"username":"project-alpha"}`))
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	wasCreated, err := client.EnsureOrg(context.Background(), "project-alpha", "", "private")
	if err != nil {
		t.Fatalf("EnsureOrg() error: %v", err)
	}
	if wasCreated {
		t.Error("EnsureOrg() created = true, want false")
	}
}

func TestEnsureOrg_LostCreateRaceIsNoOp(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /api/v1/orgs/project-alpha":
			w.WriteHeader(http.StatusNotFound)
		case "POST /api/v1/orgs":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"user already exists"}`))
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	wasCreated, err := client.EnsureOrg(context.Background(), "project-alpha", "", "private")
	if err != nil {
		t.Fatalf("EnsureOrg() error: %v", err)
	}
	if wasCreated {
		t.Error("EnsureOrg() created = true, want false on duplicate")
	}
}

func TestDeleteOrg_AbsentIsSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if err := client.DeleteOrg(context.Background(), "ghost-org"); err != nil {
		t.Fatalf("DeleteOrg() error: %v", err)
	}
}
