// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestUpsertGroup_CreateThenResolveID(t *testing.T) {
	created := false

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /admin/realms/crucible/groups":
			if !created {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"id":"g-1","name":"team-x"}]`))
		case "POST /admin/realms/crucible/groups":
			var rep groupRepresentation
			if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
				t.Fatalf("Failed to decode create body: %v", err)
			}
			if rep.Name != "team-x" {
				t.Errorf("Create name = %q, want %q", rep.Name, "team-x")
			}
			if got := rep.Attributes["tier"]; len(got) != 1 || got[0] != "gold" {
				t.Errorf("Create attributes = %v, want tier=gold", rep.Attributes)
			}
			created = true
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	id, wasCreated, err := client.UpsertGroup(context.Background(), "team-x", map[string][]string{"tier": {"gold"}})
	if err != nil {
		t.Fatalf("UpsertGroup() error: %v", err)
	}
	if id != "g-1" {
		t.Errorf("UpsertGroup() id = %q, want %q", id, "g-1")
	}
	if !wasCreated {
		t.Error("UpsertGroup() created = false, want true")
	}
}

func TestUpsertGroup_ExistingIsUpdated(t *testing.T) {
	var updatedPath string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"g-1","name":"team-x"},{"id":"g-2","name":"team-x-extra"}]`))
		case http.MethodPut:
			updatedPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
	})

	id, wasCreated, err := client.UpsertGroup(context.Background(), "team-x", nil)
	if err != nil {
		t.Fatalf("UpsertGroup() error: %v", err)
	}
	if id != "g-1" {
		t.Errorf("UpsertGroup() id = %q, want exact name match %q", id, "g-1")
	}
	if wasCreated {
		t.Error("UpsertGroup() created = true, want false")
	}
	if updatedPath != "/admin/realms/crucible/groups/g-1" {
		t.Errorf("Update path = %q, want group g-1", updatedPath)
	}
}

func TestDeleteGroup_AbsentIsSuccess(t *testing.T) {
	deleteCalls := 0

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[]`))
		case http.MethodDelete:
			deleteCalls++
		}
	})

	if err := client.DeleteGroup(context.Background(), "ghost"); err != nil {
		t.Fatalf("DeleteGroup() error: %v", err)
	}
	if deleteCalls != 0 {
		t.Errorf("Delete issued %d calls for absent group, want 0", deleteCalls)
	}
}
