// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxResourceNameLength is the DNS subdomain limit applied to generated
	// resource names.
	MaxResourceNameLength = 253

	// MaxServiceNameLength is the DNS label limit applied to generated
	// Service names.
	MaxServiceNameLength = 63

	nameHashLength = 8
)

// GenerateName joins the given parts into a DNS-compatible resource name.
// Names over the limit are truncated and given a short content hash suffix
// so distinct long inputs cannot collide after truncation.
func GenerateName(limit int, parts ...string) string {
	name := sanitizeName(strings.Join(parts, "-"))
	if len(name) <= limit {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := hex.EncodeToString(sum[:])[:nameHashLength]
	return name[:limit-nameHashLength-1] + "-" + suffix
}

// VolumeClaimName returns the name of the per-user per-project home volume.
func VolumeClaimName(user, project string) string {
	return GenerateName(MaxResourceNameLength, "vdi", sanitizeNameToken(user), sanitizeNameToken(project))
}

// WorkspaceServiceName returns the name of the Service fronting a user's
// workspace pod in a project.
func WorkspaceServiceName(user, project string) string {
	return GenerateName(MaxServiceNameLength, "vdi", sanitizeNameToken(user), sanitizeNameToken(project))
}

// sanitizeName lowercases the input and replaces every character that is not
// a lowercase letter, digit, or hyphen with a hyphen.
func sanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if isNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// sanitizeNameToken lowercases the input and strips every character that is
// not a lowercase letter, digit, or hyphen. Used for user and project tokens
// embedded in volume and service names.
func sanitizeNameToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if isNameRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
}
