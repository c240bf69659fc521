// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

type testIdentityConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type testLoggingConfig struct {
	Level string `koanf:"level"`
}

type testConfig struct {
	Workers  int                `koanf:"workers"`
	Identity testIdentityConfig `koanf:"identity"`
	Logging  testLoggingConfig  `koanf:"logging"`
}

func testDefaults() testConfig {
	return testConfig{
		Workers: 4,
		Identity: testIdentityConfig{
			URL:     "http://keycloak.auth:8080",
			Timeout: 10 * time.Second,
		},
		Logging: testLoggingConfig{
			Level: "info",
		},
	}
}

func TestLoader_StructDefaults(t *testing.T) {
	loader := NewLoader("CRUCIBLE_TEST")
	if err := loader.LoadWithDefaults(testDefaults(), ""); err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	var cfg testConfig
	if err := loader.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cfg.Workers != 4 {
		t.Errorf("expected workers 4, got %d", cfg.Workers)
	}
	if cfg.Identity.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", cfg.Identity.Timeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected level info, got %s", cfg.Logging.Level)
	}
}

func TestLoader_ConfigFileOverridesDefaults(t *testing.T) {
	configPath := filepath.Join("testdata", "test_config.yaml")

	loader := NewLoader("CRUCIBLE_TEST")
	if err := loader.LoadWithDefaults(testDefaults(), configPath); err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	var cfg testConfig
	if err := loader.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	// Config file overrides
	if cfg.Workers != 8 {
		t.Errorf("expected workers 8 from config file, got %d", cfg.Workers)
	}
	if cfg.Identity.URL != "http://keycloak.example:8080" {
		t.Errorf("expected identity url from config file, got %s", cfg.Identity.URL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug from config file, got %s", cfg.Logging.Level)
	}
}

func TestLoader_EnvVarsOverrideConfigFile(t *testing.T) {
	configPath := filepath.Join("testdata", "test_config.yaml")

	// Set env vars (double underscore for nesting)
	os.Setenv("CRUCIBLE_TEST__WORKERS", "16")
	os.Setenv("CRUCIBLE_TEST__LOGGING__LEVEL", "warn")
	defer func() {
		os.Unsetenv("CRUCIBLE_TEST__WORKERS")
		os.Unsetenv("CRUCIBLE_TEST__LOGGING__LEVEL")
	}()

	loader := NewLoader("CRUCIBLE_TEST")
	if err := loader.LoadWithDefaults(testDefaults(), configPath); err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	var cfg testConfig
	if err := loader.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	// Env vars override config file
	if cfg.Workers != 16 {
		t.Errorf("expected workers 16 from env var, got %d", cfg.Workers)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level warn from env var, got %s", cfg.Logging.Level)
	}
	// Config file value preserved when no env override
	if cfg.Identity.URL != "http://keycloak.example:8080" {
		t.Errorf("expected identity url from config file, got %s", cfg.Identity.URL)
	}
}

func TestLoader_WithLoggerReceivesDebugOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	configPath := filepath.Join("testdata", "test_config.yaml")
	loader := NewLoader("CRUCIBLE_TEST", WithLogger(logger))
	if err := loader.LoadWithDefaults(testDefaults(), configPath); err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if !strings.Contains(buf.String(), "loaded config file") {
		t.Errorf("expected debug output on the injected logger, got %q", buf.String())
	}
}

func TestLoader_MissingConfigFileFails(t *testing.T) {
	loader := NewLoader("CRUCIBLE_TEST")
	err := loader.LoadWithDefaults(testDefaults(), "nonexistent.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoader_NoConfigFileOK(t *testing.T) {
	loader := NewLoader("CRUCIBLE_TEST")
	if err := loader.LoadWithDefaults(testDefaults(), ""); err != nil {
		t.Fatalf("LoadWithDefaults should succeed without config file: %v", err)
	}
}

func TestLoader_FlagsOverrideEnvVars(t *testing.T) {
	os.Setenv("CRUCIBLE_TEST__WORKERS", "16")
	defer os.Unsetenv("CRUCIBLE_TEST__WORKERS")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 0, "reconcile workers")
	if err := flags.Parse([]string{"--workers=2"}); err != nil {
		t.Fatalf("flags.Parse failed: %v", err)
	}

	loader := NewLoader("CRUCIBLE_TEST")
	if err := loader.LoadWithDefaults(testDefaults(), ""); err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if err := loader.LoadFlags(flags, map[string]string{
		"workers": "workers",
	}); err != nil {
		t.Fatalf("LoadFlags failed: %v", err)
	}

	var cfg testConfig
	if err := loader.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	// Flag should override env var
	if cfg.Workers != 2 {
		t.Errorf("expected workers 2 from flag, got %d", cfg.Workers)
	}
}

func TestLoader_FlagsNotSetDoNotOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 99, "reconcile workers")
	if err := flags.Parse([]string{}); err != nil { // No flags set
		t.Fatalf("flags.Parse failed: %v", err)
	}

	loader := NewLoader("CRUCIBLE_TEST")
	if err := loader.LoadWithDefaults(testDefaults(), ""); err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if err := loader.LoadFlags(flags, map[string]string{
		"workers": "workers",
	}); err != nil {
		t.Fatalf("LoadFlags failed: %v", err)
	}

	var cfg testConfig
	if err := loader.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	// Flag default must not leak in; only explicitly set flags are applied.
	if cfg.Workers != 4 {
		t.Errorf("expected workers 4 (flag not set), got %d", cfg.Workers)
	}
}

// validatingConfig implements Validator
type validatingConfig struct {
	Workers int `koanf:"workers"`
}

func (c *validatingConfig) Validate() error {
	if err := MustBeInRange(NewPath("workers"), c.Workers, 1, 64); err != nil {
		return err
	}
	return nil
}

func TestLoader_UnmarshalAndValidate(t *testing.T) {
	loader := NewLoader("CRUCIBLE_TEST")
	if err := loader.LoadWithDefaults(map[string]any{"workers": 0}, ""); err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	var cfg validatingConfig
	if err := loader.UnmarshalAndValidate("", &cfg); err == nil {
		t.Fatal("expected validation error for workers=0")
	}
}
