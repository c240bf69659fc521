// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"strings"
	"testing"
)

func TestGenerateName_ShortNamesPassThrough(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{name: "plain parts", parts: []string{"vdi", "alice", "proj-x"}, want: "vdi-alice-proj-x"},
		{name: "mixed case is lowered", parts: []string{"VDI", "Alice"}, want: "vdi-alice"},
		{name: "invalid runes become hyphens", parts: []string{"a_b.c"}, want: "a-b-c"},
		{name: "leading and trailing hyphens trimmed", parts: []string{"-abc-"}, want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateName(MaxResourceNameLength, tt.parts...)
			if got != tt.want {
				t.Errorf("GenerateName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateName_LongNamesTruncatedWithHash(t *testing.T) {
	long := strings.Repeat("a", 300)

	got := GenerateName(MaxResourceNameLength, "vdi", long)
	if len(got) != MaxResourceNameLength {
		t.Fatalf("expected name of length %d, got %d", MaxResourceNameLength, len(got))
	}
	if !strings.HasPrefix(got, "vdi-aaaa") {
		t.Errorf("expected truncated name to keep its prefix, got %q", got)
	}

	// Same input yields the same name, different inputs differ even though
	// their truncated prefixes collide.
	if again := GenerateName(MaxResourceNameLength, "vdi", long); again != got {
		t.Errorf("expected stable output, got %q and %q", got, again)
	}
	other := GenerateName(MaxResourceNameLength, "vdi", long+"b")
	if other == got {
		t.Error("expected distinct long inputs to generate distinct names")
	}
	if other[:MaxResourceNameLength-nameHashLength-1] != got[:MaxResourceNameLength-nameHashLength-1] {
		t.Error("expected the truncated prefixes to match, only the hash suffix should differ")
	}
}

func TestVolumeClaimName_StripsInvalidRunes(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		project string
		want    string
	}{
		{name: "plain", user: "alice", project: "proj-x", want: "vdi-alice-proj-x"},
		{name: "mixed case and punctuation", user: "Alice.Smith", project: "Proj_X", want: "vdi-alicesmith-projx"},
		{name: "email style user", user: "bob@example.com", project: "genomics", want: "vdi-bobexamplecom-genomics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VolumeClaimName(tt.user, tt.project)
			if got != tt.want {
				t.Errorf("VolumeClaimName(%q, %q) = %q, want %q", tt.user, tt.project, got, tt.want)
			}
		})
	}
}

func TestWorkspaceServiceName_FitsServiceLimit(t *testing.T) {
	got := WorkspaceServiceName(strings.Repeat("u", 60), strings.Repeat("p", 60))
	if len(got) > MaxServiceNameLength {
		t.Errorf("service name exceeds %d chars: %d", MaxServiceNameLength, len(got))
	}
	if !strings.HasPrefix(got, "vdi-") {
		t.Errorf("expected vdi- prefix, got %q", got)
	}
}
