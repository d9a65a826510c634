// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Frame Parser Tests
// =============================================================================

func TestNewFrameParser(t *testing.T) {
	parser := NewFrameParser()
	if parser == nil {
		t.Fatal("NewFrameParser() returned nil")
	}
}

// -----------------------------------------------------------------------------
// ParseBlock Tests - Event Payloads
// -----------------------------------------------------------------------------

func TestFrameParser_ParseBlock_ThoughtEvent(t *testing.T) {
	parser := NewFrameParser()

	block := "event: thinking\n" +
		`data: {"trace_id":"tr-1","step":3,"ts":1700000000000,"type":"thought","content":"checking pump telemetry"}`

	ev, err := parser.ParseBlock(block)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil {
		t.Fatal("expected event, got nil")
	}
	if ev.TraceID != "tr-1" {
		t.Errorf("expected TraceID 'tr-1', got %q", ev.TraceID)
	}
	if ev.Sequence != 3 {
		t.Errorf("expected Sequence 3, got %d", ev.Sequence)
	}
	if ev.Timestamp != 1700000000000 {
		t.Errorf("expected Timestamp 1700000000000, got %d", ev.Timestamp)
	}
	if ev.Kind != KindThought {
		t.Errorf("expected Kind %v, got %v", KindThought, ev.Kind)
	}
	if ev.Content != "checking pump telemetry" {
		t.Errorf("expected content 'checking pump telemetry', got %q", ev.Content)
	}
}

func TestFrameParser_ParseBlock_FinalEventWithExtra(t *testing.T) {
	parser := NewFrameParser()

	block := `data: {"trace_id":"tr-1","step":9,"ts":1700000000000,"type":"final",` +
		`"content":"Pump 4 is within limits.",` +
		`"extra":{"query_type":"knowledge","confidence":0.92,"engines_used":["rag","sql"],"enhancement_applied":true}}`

	ev, err := parser.ParseBlock(block)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != KindFinal {
		t.Fatalf("expected Kind %v, got %v", KindFinal, ev.Kind)
	}
	if !ev.IsTerminal() {
		t.Error("expected final event to be terminal")
	}
	if ev.Extra == nil {
		t.Fatal("expected Extra to be populated")
	}
	if ev.Extra.QueryType != "knowledge" {
		t.Errorf("expected query_type 'knowledge', got %q", ev.Extra.QueryType)
	}
	if ev.Extra.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", ev.Extra.Confidence)
	}
	if len(ev.Extra.EnginesUsed) != 2 {
		t.Errorf("expected 2 engines, got %v", ev.Extra.EnginesUsed)
	}
	if !ev.Extra.EnhancementApplied {
		t.Error("expected enhancement_applied to be true")
	}
}

func TestFrameParser_ParseBlock_MultiLineData(t *testing.T) {
	parser := NewFrameParser()

	// Data split across lines must be rejoined with newlines before decoding.
	block := "data: {\"trace_id\":\"tr-2\",\"step\":1,\"ts\":1,\n" +
		"data: \"type\":\"thought\",\"content\":\"two lines\"}"

	ev, err := parser.ParseBlock(block)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Content != "two lines" {
		t.Fatalf("expected rejoined payload to decode, got %+v", ev)
	}
}

func TestFrameParser_ParseBlock_LegacySessionID(t *testing.T) {
	parser := NewFrameParser()

	ev, err := parser.ParseBlock(`data: {"trace_id":"tr-3","session_id":"turn-7","step":0,"ts":1,"type":"meta.start","content":""}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TurnID != "turn-7" {
		t.Errorf("expected legacy session_id to map to TurnID, got %q", ev.TurnID)
	}
}

func TestFrameParser_ParseBlock_TurnIDWinsOverSessionID(t *testing.T) {
	parser := NewFrameParser()

	ev, err := parser.ParseBlock(`data: {"trace_id":"tr-3","turn_id":"turn-new","session_id":"turn-old","step":0,"ts":1,"type":"meta.start","content":""}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TurnID != "turn-new" {
		t.Errorf("expected turn_id to take precedence, got %q", ev.TurnID)
	}
}

// -----------------------------------------------------------------------------
// ParseBlock Tests - Timestamp Normalization
// -----------------------------------------------------------------------------

func TestFrameParser_ParseBlock_TimestampFromString(t *testing.T) {
	parser := NewFrameParser()

	ev, err := parser.ParseBlock(`data: {"trace_id":"tr-4","step":1,"ts":"2025-06-01T12:00:00Z","type":"thought","content":"x"}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	if ev.Timestamp != want {
		t.Errorf("expected Timestamp %d, got %d", want, ev.Timestamp)
	}
}

func TestFrameParser_ParseBlock_TimestampMissingDefaultsToNow(t *testing.T) {
	parser := NewFrameParser()
	before := time.Now().UnixMilli()

	ev, err := parser.ParseBlock(`data: {"trace_id":"tr-4","step":1,"type":"thought","content":"x"}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Timestamp < before {
		t.Errorf("expected Timestamp >= %d, got %d", before, ev.Timestamp)
	}
}

// -----------------------------------------------------------------------------
// ParseBlock Tests - Heartbeats, Noise, Malformed Frames
// -----------------------------------------------------------------------------

func TestFrameParser_ParseBlock_HeartbeatEventLine(t *testing.T) {
	parser := NewFrameParser()

	ev, err := parser.ParseBlock("event: heartbeat")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || !ev.IsHeartbeat() {
		t.Fatalf("expected synthetic heartbeat, got %+v", ev)
	}
	if ev.Timestamp == 0 {
		t.Error("expected heartbeat timestamp to be set")
	}
}

func TestFrameParser_ParseBlock_EmptyBlock(t *testing.T) {
	parser := NewFrameParser()

	for _, block := range []string{"", "   ", "\n\n"} {
		ev, err := parser.ParseBlock(block)
		if err != nil {
			t.Errorf("block %q: unexpected error: %v", block, err)
		}
		if ev != nil {
			t.Errorf("block %q: expected nil event, got %+v", block, ev)
		}
	}
}

func TestFrameParser_ParseBlock_CommentOnly(t *testing.T) {
	parser := NewFrameParser()

	ev, err := parser.ParseBlock(": keepalive comment")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected nil event for comment block, got %+v", ev)
	}
}

func TestFrameParser_ParseBlock_EventNameWithoutData(t *testing.T) {
	parser := NewFrameParser()

	ev, err := parser.ParseBlock("event: thinking")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected nil event without data payload, got %+v", ev)
	}
}

func TestFrameParser_ParseBlock_MalformedJSON(t *testing.T) {
	parser := NewFrameParser()

	ev, err := parser.ParseBlock(`data: {"trace_id": truncated`)

	if ev != nil {
		t.Fatalf("expected nil event, got %+v", ev)
	}
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected ErrMalformedFrame, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// ParseBlock Tests - Preview Truncation
// -----------------------------------------------------------------------------

func TestFrameParser_ParseBlock_PreviewTruncation(t *testing.T) {
	parser := NewFrameParserWithPreviewMax(10)

	long := strings.Repeat("a", 40)
	ev, err := parser.ParseBlock(`data: {"trace_id":"tr-5","step":2,"ts":1,"type":"tool_result","content":"done","extra":{"preview":"` + long + `"}}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := strings.Repeat("a", 10) + "..."
	if ev.Extra.Preview != want {
		t.Errorf("expected truncated preview %q, got %q", want, ev.Extra.Preview)
	}
}

func TestFrameParser_ParseBlock_ShortPreviewUntouched(t *testing.T) {
	parser := NewFrameParserWithPreviewMax(10)

	ev, err := parser.ParseBlock(`data: {"trace_id":"tr-5","step":2,"ts":1,"type":"tool_result","content":"done","extra":{"preview":"short"}}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Extra.Preview != "short" {
		t.Errorf("expected preview unchanged, got %q", ev.Extra.Preview)
	}
}
