// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package hash provides generic utilities for computing content hashes.
// It contains no domain-specific types and can be used by any package.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hex returns the hex-encoded SHA-256 of the input.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n characters of the hex-encoded SHA-256 of s.
// Used for collision-free suffixes on truncated resource names.
func Short(s string, n int) string {
	h := Hex([]byte(s))
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}

// JSONHex returns the hex-encoded SHA-256 of the JSON serialization of v.
// encoding/json emits map keys in sorted order, so the result is stable
// across runs for the same value.
func JSONHex(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Hex(raw), nil
}
