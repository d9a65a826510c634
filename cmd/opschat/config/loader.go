// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".opschat"
	configFileName = "opschat.yaml"
)

var (
	global     *Config
	globalErr  error
	globalOnce sync.Once
)

// Global returns the process-wide configuration, loading it on first use.
// A missing config file is created with defaults.
func Global() (*Config, error) {
	globalOnce.Do(func() {
		global, globalErr = Load("")
	})
	return global, globalErr
}

// Load reads the configuration from path, or from the default location when
// path is empty. Environment overrides are applied after the file is read.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = defaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if writeErr := writeDefault(path); writeErr != nil {
			return nil, writeErr
		}
	case err != nil:
		return nil, fmt.Errorf("read config %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, configDirName, configFileName), nil
}

// writeDefault persists the default configuration so users have a file to
// edit after the first run.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// applyEnvOverrides layers OPSCHAT_* variables over the file values. Only
// the settings that differ between deployments are exposed this way.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPSCHAT_BASE_URL"); v != "" {
		cfg.Server.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("OPSCHAT_STREAMING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Stream.Enabled = b
		}
	}
	if v := os.Getenv("OPSCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPSCHAT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
}

// ExpandPath expands a leading ~ in configured paths.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
