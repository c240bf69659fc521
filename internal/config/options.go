// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
)

// Option customizes a Loader at construction time.
type Option func(*Loader)

// WithLogger routes the loader's debug output (which sources were merged,
// in what order) to the given logger instead of slog.Default. The operator
// builds its logger from the loaded config, so this is mostly useful in
// tests and auxiliary tooling.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}
