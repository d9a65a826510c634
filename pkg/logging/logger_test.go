// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevel_ToSlog(t *testing.T) {
	cases := []struct {
		in   Level
		want slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{Level("warning"), slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level("bogus"), slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := tc.in.toSlog(); got != tc.want {
			t.Errorf("Level(%q).toSlog() = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew_ExporterReceivesEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger, err := New(Config{Level: LevelDebug, Service: "test", Quiet: true, Exporter: exporter})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer logger.Close()

	logger.Info("stream opened", "trace_id", "tr-1")
	logger.Debug("frame received", "step", 2)

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "stream opened" {
		t.Errorf("unexpected message: %q", entries[0].Message)
	}
	if entries[0].Service != "test" {
		t.Errorf("unexpected service: %q", entries[0].Service)
	}
	if entries[0].Attrs["trace_id"] != "tr-1" {
		t.Errorf("expected trace_id attr, got %v", entries[0].Attrs)
	}
}

func TestNew_ExporterRespectsLevel(t *testing.T) {
	exporter := NewBufferedExporter()
	logger, err := New(Config{Level: LevelWarn, Service: "test", Quiet: true, Exporter: exporter})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer logger.Close()

	logger.Info("below threshold")
	logger.Warn("at threshold")

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "at threshold" {
		t.Errorf("unexpected message: %q", entries[0].Message)
	}
}

func TestNew_LogFileWritten(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: LevelInfo, Service: "filetest", LogDir: dir, Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Info("persisted line")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "filetest.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "persisted line") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestLogger_With_CarriesContext(t *testing.T) {
	exporter := NewBufferedExporter()
	logger, err := New(Config{Level: LevelInfo, Service: "test", Quiet: true, Exporter: exporter})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer logger.Close()

	logger.With("session_id", "s-9").Info("tagged")

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Attrs["session_id"] != "s-9" {
		t.Errorf("expected session_id attr, got %v", entries[0].Attrs)
	}
}
