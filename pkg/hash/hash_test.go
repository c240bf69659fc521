// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHex(t *testing.T) {
	got := Hex([]byte("crucible"))
	assert.Len(t, got, 64)
	assert.Equal(t, got, Hex([]byte("crucible")))
	assert.NotEqual(t, got, Hex([]byte("crucible2")))
}

func TestShort(t *testing.T) {
	got := Short("project-proj-x", 8)
	assert.Len(t, got, 8)
	assert.True(t, strings.HasPrefix(Hex([]byte("project-proj-x")), got))

	// Requesting more characters than the digest has returns the full digest.
	assert.Len(t, Short("x", 100), 64)
}

func TestJSONHexIsStableAcrossMapOrder(t *testing.T) {
	a := map[string]int{"alpha": 1, "beta": 2, "gamma": 3}
	b := map[string]int{"gamma": 3, "beta": 2, "alpha": 1}

	ha, err := JSONHex(a)
	require.NoError(t, err)
	hb, err := JSONHex(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	hc, err := JSONHex(map[string]int{"alpha": 1, "beta": 2, "gamma": 4})
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestJSONHexRejectsUnserializable(t *testing.T) {
	_, err := JSONHex(func() {})
	require.Error(t, err)
}
