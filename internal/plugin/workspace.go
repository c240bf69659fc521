// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"context"
	"fmt"
	"reflect"

	ctrl "sigs.k8s.io/controller-runtime"

	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/cluster"
	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/controller/project"
	"github.com/crucible-dev/crucible/internal/controller/vdiinstance"
	"github.com/crucible-dev/crucible/internal/githost"
	"github.com/crucible-dev/crucible/internal/kindregistry"
)

// NewWorkspacePlugin returns the plugin that materializes projects and
// virtual desktops on the cluster.
func NewWorkspacePlugin(deps Deps) Plugin {
	return &workspacePlugin{deps: deps}
}

type workspacePlugin struct {
	deps Deps

	gitHost *githost.Client
	health  Health
}

func (p *workspacePlugin) Name() string    { return "workspace" }
func (p *workspacePlugin) Version() string { return workspacev1alpha1.GroupVersion.Version }
func (p *workspacePlugin) Description() string {
	return "Provisions project namespaces, git organizations and VDI workspaces"
}

func (p *workspacePlugin) Kinds() []kindregistry.Descriptor {
	gv := workspacev1alpha1.GroupVersion
	return []kindregistry.Descriptor{
		{
			Group: gv.Group, Version: gv.Version, Kind: "Project",
			ShortNames: []string{"proj"},
			SpecType:   reflect.TypeOf(workspacev1alpha1.ProjectSpec{}),
		},
		{
			Group: gv.Group, Version: gv.Version, Kind: "VDIInstance",
			ShortNames: []string{"vdi"},
			SpecType:   reflect.TypeOf(workspacev1alpha1.VDIInstanceSpec{}),
		},
	}
}

// Initialize builds the git-host admin client when git hosting is enabled
// and waits for the host to come up. The operator and the git host commonly
// start together; the bounded probe absorbs the race.
func (p *workspacePlugin) Initialize(ctx context.Context) error {
	cfg := p.deps.Config
	if !cfg.GitHost.Enabled {
		p.health = Health{Healthy: true, Message: "git hosting disabled"}
		return nil
	}

	logger := p.deps.Logger.With("plugin", p.Name())
	gh, err := githost.NewClient(gitHostConfig(cfg), logger)
	if err != nil {
		p.health = Health{Message: err.Error()}
		return fmt.Errorf("failed to build git host client: %w", err)
	}
	if err := gh.WaitReady(ctx, cfg.GitHost.ReadyProbeTimeout); err != nil {
		p.health = Health{Message: err.Error()}
		return fmt.Errorf("git host not ready: %w", err)
	}

	p.gitHost = gh
	p.health = Health{Healthy: true, Message: "connected to " + cfg.GitHost.URL}
	return nil
}

func (p *workspacePlugin) RegisterHandlers(mgr ctrl.Manager) error {
	cfg := p.deps.Config

	projectRec := &project.Reconciler{
		Client:  mgr.GetClient(),
		Scheme:  mgr.GetScheme(),
		Quota:   quotaDefaults(cfg),
		Limits:  limitRangeDefaults(cfg),
		Hub:     hubAccess(cfg),
		Network: networkParams(cfg),
	}
	if p.gitHost != nil {
		projectRec.GitHost = p.gitHost
	}
	if err := projectRec.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("failed to set up project controller: %w", err)
	}

	vdiRec := &vdiinstance.Reconciler{
		Client:             mgr.GetClient(),
		Scheme:             mgr.GetScheme(),
		Storage:            storageDefaults(cfg),
		OperatorNamespace:  cfg.OperatorNamespace,
		BootstrapConfigMap: cfg.Cluster.BootstrapConfigMap,
	}
	if err := vdiRec.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("failed to set up vdiinstance controller: %w", err)
	}
	return nil
}

func (p *workspacePlugin) Shutdown(context.Context) error {
	return nil
}

func (p *workspacePlugin) Health() Health {
	return p.health
}

func quotaDefaults(cfg *config.Config) cluster.QuotaDefaults {
	q := cfg.Cluster.Quota
	return cluster.QuotaDefaults{
		RequestsCPU:            q.RequestsCPU,
		RequestsMemory:         q.RequestsMemory,
		LimitsCPU:              q.LimitsCPU,
		LimitsMemory:           q.LimitsMemory,
		Pods:                   q.Pods,
		Services:               q.Services,
		PersistentVolumeClaims: q.PVCs,
	}
}

func limitRangeDefaults(cfg *config.Config) cluster.LimitRangeDefaults {
	lr := cfg.Cluster.LimitRange
	return cluster.LimitRangeDefaults{
		DefaultCPU:           lr.DefaultCPU,
		DefaultMemory:        lr.DefaultMemory,
		DefaultRequestCPU:    lr.DefaultRequestCPU,
		DefaultRequestMemory: lr.DefaultRequestMemory,
	}
}

func hubAccess(cfg *config.Config) cluster.HubAccess {
	hub := cfg.Cluster.Hub
	return cluster.HubAccess{
		ServiceAccountNamespace: hub.Namespace,
		ServiceAccountName:      hub.ServiceAccount,
		ClusterRole:             hub.ClusterRole,
	}
}

func networkParams(cfg *config.Config) cluster.NetworkParams {
	return cluster.NetworkParams{
		InfraNamespaces: cfg.Cluster.InfraNamespaces,
		ClusterCIDRs:    cfg.Cluster.ClusterCIDRs,
	}
}
