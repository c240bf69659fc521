// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// crdgen renders the CustomResourceDefinition manifests for every kind the
// built-in plugins declare. It backs the crd.mode "external" deployment path,
// where CRDs are installed out of band instead of by the operator itself.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucible-dev/crucible/internal/config"
	"github.com/crucible-dev/crucible/internal/kindregistry"
	"github.com/crucible-dev/crucible/internal/logging"
	"github.com/crucible-dev/crucible/internal/plugin"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var outputDir string
	var force bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "crdgen",
		Short: "Generate CustomResourceDefinition manifests for the Crucible kinds",
		Long: "crdgen writes one CRD YAML document per kind registered by the compiled-in\n" +
			"plugins. A schema hash is stored next to the emitted files; when it matches\n" +
			"the current schemas, generation is skipped unless --force is set.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(logging.Config{Level: logLevel, Format: "text"})
			return generate(logger, outputDir, force)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "config/crd", "Directory the CRD YAML files are written to")
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate even when the stored schema hash is unchanged")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func generate(logger *slog.Logger, outputDir string, force bool) error {
	cfg := config.Default()
	kinds := kindregistry.NewRegistry(logger)
	plugins := plugin.NewRegistry(plugin.Deps{
		Config: &cfg,
		Logger: logger,
		Kinds:  kinds,
	})
	if err := plugins.Discover(); err != nil {
		return fmt.Errorf("failed to discover plugins: %w", err)
	}
	if err := plugins.RegisterKinds(); err != nil {
		return fmt.Errorf("failed to register kinds: %w", err)
	}

	hash, err := kinds.ContentHash()
	if err != nil {
		return err
	}
	if !force && kindregistry.ReadStoredHash(outputDir) == hash {
		logger.Info("CRDs are up to date", "dir", outputDir)
		return nil
	}

	crds, _, err := kinds.GenerateAll(true)
	if err != nil {
		return err
	}
	if err := kindregistry.WriteFiles(outputDir, crds); err != nil {
		return err
	}
	if err := kindregistry.WriteStoredHash(outputDir, hash); err != nil {
		return err
	}
	logger.Info("Wrote CRDs", "dir", outputDir, "count", len(crds))
	return nil
}
