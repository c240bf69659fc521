// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()"

// TempPasswordLength is the length of generated one-time passwords.
const TempPasswordLength = 16

// GenerateTempPassword returns a random password drawn from letters, digits
// and a small set of punctuation.
func GenerateTempPassword() (string, error) {
	buf := make([]byte, TempPasswordLength)
	alphabetLen := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}
