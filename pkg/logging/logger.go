// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides the layered logger used across opschat: a text
// handler on stderr for humans, an optional JSON file handler for later
// inspection, and an optional exporter hook for tests and log shipping.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a handler will emit.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) toSlog() slog.Level {
	switch strings.ToLower(string(l)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls which handlers a Logger is built with.
type Config struct {
	// Level is the minimum severity to log. Defaults to info.
	Level Level

	// LogDir, when set, enables a JSON log file at <LogDir>/<Service>.log.
	// A leading ~ is expanded to the user's home directory.
	LogDir string

	// Service names the component in file names and exported entries.
	Service string

	// JSON switches the stderr handler from text to JSON.
	JSON bool

	// Quiet suppresses the stderr handler entirely.
	Quiet bool

	// Exporter, when set, receives every log entry.
	Exporter LogExporter
}

// LogEntry is the exporter-facing form of one log record.
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
	Service string
	Attrs   map[string]any
}

// LogExporter receives log entries for shipping or capture.
type LogExporter interface {
	Export(entry LogEntry) error
	Close() error
}

// Logger wraps slog with the opschat handler stack.
type Logger struct {
	slog    *slog.Logger
	file    *os.File
	service string
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns a process-wide logger writing text to stderr at info
// level. Prefer New with an explicit Config in anything long-lived.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger, _ = New(Config{Level: LevelInfo, Service: "opschat"})
	})
	return defaultLogger
}

// New builds a Logger from cfg. The returned logger owns the log file, if
// any; call Close when done.
func New(cfg Config) (*Logger, error) {
	if cfg.Service == "" {
		cfg.Service = "opschat"
	}
	level := cfg.Level.toSlog()
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	var file *os.File
	if cfg.LogDir != "" {
		dir, err := expandPath(cfg.LogDir)
		if err != nil {
			return nil, fmt.Errorf("expand log dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(dir, cfg.Service+".log")
		file, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}

	if cfg.Exporter != nil {
		handlers = append(handlers, &exporterHandler{
			exporter: cfg.Exporter,
			service:  cfg.Service,
			level:    level,
		})
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	return &Logger{
		slog:    slog.New(handler).With("service", cfg.Service),
		file:    file,
		service: cfg.Service,
	}, nil
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a logger carrying additional key-value context.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file, service: l.service}
}

// Slog exposes the underlying slog.Logger for libraries that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// expandPath expands a leading ~ to the current user's home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// =============================================================================
// Handlers
// =============================================================================

// multiHandler fans every record out to all child handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}

// exporterHandler adapts an exporter to the slog.Handler interface.
type exporterHandler struct {
	exporter LogExporter
	service  string
	level    slog.Level
	attrs    []slog.Attr
}

func (e *exporterHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= e.level
}

func (e *exporterHandler) Handle(_ context.Context, record slog.Record) error {
	attrs := make(map[string]any, record.NumAttrs()+len(e.attrs))
	for _, a := range e.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	return e.exporter.Export(LogEntry{
		Time:    record.Time,
		Level:   record.Level.String(),
		Message: record.Message,
		Service: e.service,
		Attrs:   attrs,
	})
}

func (e *exporterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(e.attrs)+len(attrs))
	merged = append(merged, e.attrs...)
	merged = append(merged, attrs...)
	return &exporterHandler{exporter: e.exporter, service: e.service, level: e.level, attrs: merged}
}

func (e *exporterHandler) WithGroup(string) slog.Handler {
	return e
}

// =============================================================================
// Exporters
// =============================================================================

// NopExporter discards every entry.
type NopExporter struct{}

func (NopExporter) Export(LogEntry) error { return nil }
func (NopExporter) Close() error          { return nil }

// BufferedExporter captures entries in memory. Intended for tests.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{}
}

func (b *BufferedExporter) Export(entry LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	return nil
}

// Entries returns a copy of everything exported so far.
func (b *BufferedExporter) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *BufferedExporter) Close() error { return nil }

var (
	_ LogExporter  = NopExporter{}
	_ LogExporter  = (*BufferedExporter)(nil)
	_ slog.Handler = (*multiHandler)(nil)
	_ slog.Handler = (*exporterHandler)(nil)
)
