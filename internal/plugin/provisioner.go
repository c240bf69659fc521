// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"fmt"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/crucible-dev/crucible/internal/controller/projectsync"
	"github.com/crucible-dev/crucible/internal/kindregistry"
)

// NewProvisionerPlugin returns the plugin that applies the project roster
// manifest. It contributes no kinds of its own; it writes the identity and
// workspace kinds.
func NewProvisionerPlugin(deps Deps) Plugin {
	return &provisionerPlugin{deps: deps}
}

type provisionerPlugin struct {
	deps   Deps
	health Health
}

func (p *provisionerPlugin) Name() string    { return "provisioner" }
func (p *provisionerPlugin) Version() string { return "v1" }
func (p *provisionerPlugin) Description() string {
	return "Materializes projects, groups and users from the roster ConfigMap"
}

func (p *provisionerPlugin) Kinds() []kindregistry.Descriptor {
	return nil
}

func (p *provisionerPlugin) Initialize(context.Context) error {
	cfg := p.deps.Config.Provisioner
	if !cfg.Enabled {
		p.health = Health{Healthy: true, Message: "disabled by configuration"}
		return ErrDisabled
	}
	if cfg.ConfigMapName == "" {
		p.health = Health{Message: "no manifest ConfigMap configured"}
		return fmt.Errorf("provisioner is enabled but configMapName is empty")
	}

	p.health = Health{Healthy: true, Message: "watching " + cfg.ConfigMapName}
	return nil
}

func (p *provisionerPlugin) RegisterHandlers(mgr ctrl.Manager) error {
	rec := &projectsync.Reconciler{
		Client:        mgr.GetClient(),
		Scheme:        mgr.GetScheme(),
		Namespace:     p.deps.Config.OperatorNamespace,
		ConfigMapName: p.deps.Config.Provisioner.ConfigMapName,
	}
	if err := rec.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("failed to set up projectsync controller: %w", err)
	}
	return nil
}

func (p *provisionerPlugin) Shutdown(context.Context) error {
	return nil
}

func (p *provisionerPlugin) Health() Health {
	return p.health
}
