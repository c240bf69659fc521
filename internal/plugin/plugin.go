// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package plugin groups the operator's functionality into units that are
// discovered, initialized, and wired into the controller manager as a batch.
// A plugin owns its external client connections and the reconcilers built on
// them; the registry isolates one plugin's startup failure from the rest.
package plugin

import (
	"context"
	"errors"
	"log/slog"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/kindregistry"
)

// ErrDisabled is returned from Initialize by plugins switched off in the
// configuration. The registry records them as skipped rather than failed.
var ErrDisabled = errors.New("plugin is disabled by configuration")

// Health is a point-in-time report of a plugin's state.
type Health struct {
	// Healthy is false when the plugin cannot do its work, for example when
	// its provider connection failed during initialization.
	Healthy bool

	// Message carries human-readable detail.
	Message string
}

// Plugin is one functional unit of the operator.
type Plugin interface {
	Name() string
	Version() string
	Description() string

	// Kinds lists the custom resource kinds this plugin serves.
	Kinds() []kindregistry.Descriptor

	// Initialize prepares the plugin's external connections. Called exactly
	// once by the registry, before RegisterHandlers.
	Initialize(ctx context.Context) error

	// RegisterHandlers wires the plugin's reconcilers into the manager.
	// Called only after a successful Initialize.
	RegisterHandlers(mgr ctrl.Manager) error

	// Shutdown releases the plugin's resources.
	Shutdown(ctx context.Context) error

	Health() Health
}

// Deps carries the shared dependencies handed to every plugin factory.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	Kinds  *kindregistry.Registry
}

// Factory constructs one plugin from the shared dependencies.
type Factory func(deps Deps) Plugin

// Builtins is the compiled-in plugin table, in wiring order.
var Builtins = []Factory{
	NewIdentityPlugin,
	NewWorkspacePlugin,
	NewProvisionerPlugin,
}
