// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the opschat client configuration from
// ~/.opschat/opschat.yaml, with environment overrides for the settings that
// change between deployments.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full client configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Stream   StreamConfig   `yaml:"stream"`
	Fallback FallbackConfig `yaml:"fallback"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig describes the orchestrator endpoints.
type ServerConfig struct {
	// BaseURL is the orchestrator root, without a trailing slash.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// ChatEndpoint is the blocking question-answer endpoint.
	ChatEndpoint string `yaml:"chat_endpoint" validate:"required,startswith=/"`

	// RequestTimeoutSeconds bounds blocking requests. Streaming requests
	// are bounded by the heartbeat watchdog instead.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" validate:"min=1"`
}

// StreamConfig describes the thinking stream endpoint and its liveness
// limits.
type StreamConfig struct {
	// Enabled turns the streaming path on. When false every message goes
	// through the blocking endpoint.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the SSE endpoint serving the thinking stream.
	Endpoint string `yaml:"endpoint" validate:"required,startswith=/"`

	// HeartbeatTimeoutMs is the server's advertised heartbeat interval
	// ceiling.
	HeartbeatTimeoutMs int `yaml:"heartbeat_timeout_ms" validate:"min=1000"`

	// HeartbeatMarginMs is extra slack on top of the heartbeat timeout
	// before the watchdog declares the stream dead.
	HeartbeatMarginMs int `yaml:"heartbeat_margin_ms" validate:"min=0"`

	// PreviewMaxLength caps tool result previews, in characters.
	PreviewMaxLength int `yaml:"preview_max_length" validate:"min=0"`
}

// FallbackConfig tunes the degrade-and-retry behavior.
type FallbackConfig struct {
	// TTLMinutes is how long a tripped fallback keeps routing messages to
	// the blocking endpoint before streaming is retried.
	TTLMinutes int `yaml:"ttl_minutes" validate:"min=1"`
}

// StorageConfig locates the local state database.
type StorageConfig struct {
	// DataDir holds session metadata and the fallback flag. A leading ~
	// is expanded.
	DataDir string `yaml:"data_dir" validate:"required"`
}

// LoggingConfig mirrors pkg/logging.Config for the yaml surface.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:               "http://localhost:8000",
			ChatEndpoint:          "/api/chat",
			RequestTimeoutSeconds: 300,
		},
		Stream: StreamConfig{
			Enabled:            true,
			Endpoint:           "/api/react_stream",
			HeartbeatTimeoutMs: 30000,
			HeartbeatMarginMs:  5000,
			PreviewMaxLength:   500,
		},
		Fallback: FallbackConfig{
			TTLMinutes: 10,
		},
		Storage: StorageConfig{
			DataDir: "~/.opschat/data",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.opschat/logs",
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequestTimeout returns the blocking request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// HeartbeatDeadline returns timeout plus margin, the full watchdog window.
func (c *Config) HeartbeatDeadline() time.Duration {
	return time.Duration(c.Stream.HeartbeatTimeoutMs+c.Stream.HeartbeatMarginMs) * time.Millisecond
}

// FallbackTTL returns the fallback flag lifetime as a duration.
func (c *Config) FallbackTTL() time.Duration {
	return time.Duration(c.Fallback.TTLMinutes) * time.Minute
}

// StreamURL returns the absolute streaming endpoint URL.
func (c *Config) StreamURL() string {
	return c.Server.BaseURL + c.Stream.Endpoint
}

// ChatURL returns the absolute blocking endpoint URL.
func (c *Config) ChatURL() string {
	return c.Server.BaseURL + c.Server.ChatEndpoint
}
