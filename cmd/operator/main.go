// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"os"

	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/config"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/controller"
	"github.com/crucible-dev/crucible/internal/kindregistry"
	"github.com/crucible-dev/crucible/internal/logging"
	"github.com/crucible-dev/crucible/internal/plugin"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(extv1.AddToScheme(scheme))

	utilruntime.Must(identityv1alpha1.AddToScheme(scheme))
	utilruntime.Must(workspacev1alpha1.AddToScheme(scheme))
}

func main() {
	var metricsAddr string
	var probeAddr string
	var configPath string
	var enableLeaderElection bool
	var secureMetrics bool
	var enableHTTP2 bool
	var tlsOpts []func(*tls.Config)
	flag.StringVar(&metricsAddr, "metrics-bind-address", "0", "The address the metrics endpoint binds to. "+
		"Use :8443 for HTTPS or :8080 for HTTP, or leave as 0 to disable the metrics service.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.StringVar(&configPath, "config", os.Getenv("CRUCIBLE_CONFIG"),
		"Path to the operator configuration file. Struct defaults and CRUCIBLE__ environment "+
			"variables still apply when empty.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	flag.BoolVar(&secureMetrics, "metrics-secure", true,
		"If set, the metrics endpoint is served securely via HTTPS. Use --metrics-secure=false to use HTTP instead.")
	flag.BoolVar(&enableHTTP2, "enable-http2", false,
		"If set, HTTP/2 will be enabled for the metrics servers")
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg := config.Default()
	loader := config.NewLoader("CRUCIBLE")
	if err := loader.LoadWithDefaults(cfg, configPath); err != nil {
		setupLog.Error(err, "unable to load configuration")
		os.Exit(1)
	}
	if err := loader.UnmarshalAndValidate("", &cfg); err != nil {
		setupLog.Error(err, "invalid configuration")
		os.Exit(1)
	}

	appLogger := logging.New(cfg.Logging)
	slog.SetDefault(appLogger)

	kinds := kindregistry.NewRegistry(appLogger)
	plugins := plugin.NewRegistry(plugin.Deps{
		Config: &cfg,
		Logger: appLogger,
		Kinds:  kinds,
	})
	if err := plugins.Discover(); err != nil {
		setupLog.Error(err, "unable to discover plugins")
		os.Exit(1)
	}
	if err := plugins.RegisterKinds(); err != nil {
		setupLog.Error(err, "unable to register kinds")
		os.Exit(1)
	}

	restConfig := ctrl.GetConfigOrDie()
	ctx := ctrl.SetupSignalHandler()

	if cfg.CRD.Mode == config.CRDModeManage {
		crds, _, err := kinds.GenerateAll(cfg.CRD.Force)
		if err != nil {
			setupLog.Error(err, "unable to generate CRDs")
			os.Exit(1)
		}
		crdClient, err := client.New(restConfig, client.Options{Scheme: scheme})
		if err != nil {
			setupLog.Error(err, "unable to create CRD client")
			os.Exit(1)
		}
		if err := kindregistry.Apply(ctx, crdClient, appLogger, crds); err != nil {
			setupLog.Error(err, "unable to apply CRDs")
			os.Exit(1)
		}
	}

	// if the enable-http2 flag is false (the default), http/2 should be disabled
	// due to its vulnerabilities. More specifically, disabling http/2 will
	// prevent from being vulnerable to the HTTP/2 Stream Cancellation and
	// Rapid Reset CVEs. For more information see:
	// - https://github.com/advisories/GHSA-qppj-fm5r-hxr3
	// - https://github.com/advisories/GHSA-4374-p667-p6c8
	disableHTTP2 := func(c *tls.Config) {
		setupLog.Info("disabling http/2")
		c.NextProtos = []string{"http/1.1"}
	}

	if !enableHTTP2 {
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	metricsServerOptions := metricsserver.Options{
		BindAddress:   metricsAddr,
		SecureServing: secureMetrics,
		TLSOpts:       tlsOpts,
	}

	if secureMetrics {
		// FilterProvider is used to protect the metrics endpoint with authn/authz.
		metricsServerOptions.FilterProvider = filters.WithAuthenticationAndAuthorization
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsServerOptions,
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "7a1c3db2.crucible.dev",
		Controller: ctrlconfig.Controller{
			MaxConcurrentReconciles: cfg.Workers,
		},
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	// Shared field indexes must exist before any plugin wires its handlers.
	if err := controller.SetupSharedIndexes(ctx, mgr); err != nil {
		setupLog.Error(err, "unable to setup shared indexes")
		os.Exit(1)
	}

	plugins.InitializeAll(ctx)
	if plugins.InitializedCount() == 0 {
		setupLog.Error(nil, "no plugins initialized, refusing to start")
		os.Exit(1)
	}
	if err := plugins.RegisterAllHandlers(mgr); err != nil {
		setupLog.Error(err, "unable to register plugin handlers")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	// A plugin that failed to initialize fails the liveness probe, so the
	// kubelet restarts the operator and the initialization is retried.
	if err := mgr.AddHealthzCheck("plugins", plugins.Healthz); err != nil {
		setupLog.Error(err, "unable to set up plugin health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager", "workers", cfg.Workers, "plugins", plugins.InitializedCount())
	err = mgr.Start(ctx)
	plugins.ShutdownAll(context.Background())
	if err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}
