// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"fmt"
	"reflect"

	ctrl "sigs.k8s.io/controller-runtime"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/controller/githostclient"
	"github.com/crucible-dev/crucible/internal/controller/group"
	"github.com/crucible-dev/crucible/internal/controller/identityclient"
	"github.com/crucible-dev/crucible/internal/controller/user"
	"github.com/crucible-dev/crucible/internal/githost"
	"github.com/crucible-dev/crucible/internal/identity"
	"github.com/crucible-dev/crucible/internal/kindregistry"
	"github.com/crucible-dev/crucible/internal/resolver"
)

// NewIdentityPlugin returns the plugin that synchronizes users, groups, and
// OAuth clients with the identity provider.
func NewIdentityPlugin(deps Deps) Plugin {
	return &identityPlugin{deps: deps}
}

type identityPlugin struct {
	deps Deps

	client  *identity.Client
	gitHost *githost.Client
	health  Health
}

func (p *identityPlugin) Name() string        { return "identity" }
func (p *identityPlugin) Version() string     { return identityv1alpha1.GroupVersion.Version }
func (p *identityPlugin) Description() string {
	return "Synchronizes users, groups and OAuth clients with the identity provider"
}

func (p *identityPlugin) Kinds() []kindregistry.Descriptor {
	gv := identityv1alpha1.GroupVersion
	return []kindregistry.Descriptor{
		{
			Group: gv.Group, Version: gv.Version, Kind: "User",
			ShortNames: []string{"usr"},
			SpecType:   reflect.TypeOf(identityv1alpha1.UserSpec{}),
		},
		{
			Group: gv.Group, Version: gv.Version, Kind: "Group",
			ShortNames: []string{"grp"},
			SpecType:   reflect.TypeOf(identityv1alpha1.GroupSpec{}),
		},
		{
			Group: gv.Group, Version: gv.Version, Kind: "IdentityClient",
			ShortNames: []string{"idc"},
			SpecType:   reflect.TypeOf(identityv1alpha1.IdentityClientSpec{}),
		},
		{
			Group: gv.Group, Version: gv.Version, Kind: "GitHostClient",
			ShortNames: []string{"ghc"},
			SpecType:   reflect.TypeOf(identityv1alpha1.GitHostClientSpec{}),
		},
	}
}

// Initialize builds the identity admin client and verifies connectivity.
// The git-host admin client used for immediate team membership updates is
// built here too; its readiness probe belongs to the workspace plugin.
func (p *identityPlugin) Initialize(ctx context.Context) error {
	cfg := p.deps.Config
	if !cfg.Identity.Enabled {
		p.health = Health{Healthy: true, Message: "disabled by configuration"}
		return ErrDisabled
	}

	logger := p.deps.Logger.With("plugin", p.Name())
	client, err := identity.NewClient(identity.Config{
		BaseURL:            cfg.Identity.URL,
		Realm:              cfg.Identity.Realm,
		Username:           cfg.Identity.Username,
		Password:           cfg.Identity.Password,
		Timeout:            cfg.Identity.Timeout,
		InsecureSkipVerify: cfg.Identity.InsecureSkipVerify,
	}, logger)
	if err != nil {
		p.health = Health{Message: err.Error()}
		return fmt.Errorf("failed to build identity client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		p.health = Health{Message: err.Error()}
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	p.client = client

	if cfg.GitHost.Enabled {
		gh, err := githost.NewClient(gitHostConfig(cfg), logger)
		if err != nil {
			p.health = Health{Message: err.Error()}
			return fmt.Errorf("failed to build git host client: %w", err)
		}
		p.gitHost = gh
	}

	p.health = Health{Healthy: true, Message: "connected to " + cfg.Identity.URL}
	return nil
}

func (p *identityPlugin) RegisterHandlers(mgr ctrl.Manager) error {
	cfg := p.deps.Config

	userRec := &user.Reconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Identity: p.client,
		Storage:  storageDefaults(cfg),
	}
	groupRec := &group.Reconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Identity: p.client,
		Storage:  storageDefaults(cfg),
	}
	if p.gitHost != nil {
		userRec.GitHost = p.gitHost
		groupRec.GitHost = p.gitHost
	}

	if err := userRec.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("failed to set up user controller: %w", err)
	}
	if err := groupRec.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("failed to set up group controller: %w", err)
	}

	clientRec := &identityclient.Reconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Identity: p.client,
	}
	if err := clientRec.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("failed to set up identityclient controller: %w", err)
	}

	sourceRec := &githostclient.Reconciler{
		Client:       mgr.GetClient(),
		Scheme:       mgr.GetScheme(),
		ReadyTimeout: cfg.GitHost.ReadyProbeTimeout,
	}
	if err := sourceRec.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("failed to set up githostclient controller: %w", err)
	}
	return nil
}

func (p *identityPlugin) Shutdown(context.Context) error {
	return nil
}

func (p *identityPlugin) Health() Health {
	return p.health
}

// storageDefaults maps the operator storage configuration onto the resolver
// defaults layer.
func storageDefaults(cfg *config.Config) resolver.StorageDefaults {
	return resolver.StorageDefaults{
		Size:    cfg.Storage.DefaultSize,
		MaxSize: cfg.Storage.MaxSize,
		Class:   cfg.Storage.DefaultClass,
	}
}

// gitHostConfig maps the operator git-host configuration onto the admin
// client configuration.
func gitHostConfig(cfg *config.Config) githost.Config {
	return githost.Config{
		BaseURL:            cfg.GitHost.URL,
		Token:              cfg.GitHost.Token,
		AdminUsername:      cfg.GitHost.Username,
		AdminPassword:      cfg.GitHost.Password,
		Timeout:            cfg.GitHost.Timeout,
		InsecureSkipVerify: cfg.GitHost.InsecureSkipVerify,
	}
}
