// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

// =============================================================================
// Test Helpers
// =============================================================================

// createEventStream joins SSE blocks with blank-line separators the way the
// orchestrator emits them.
func createEventStream(blocks ...string) string {
	return strings.Join(blocks, "\n\n") + "\n\n"
}

func thoughtBlock(traceID string, step int, content string) string {
	return fmt.Sprintf(`data: {"trace_id":%q,"step":%d,"ts":1,"type":"thought","content":%q}`,
		traceID, step, content)
}

// dribbleReader returns its content a few bytes at a time to exercise
// partial-block buffering across reads.
type dribbleReader struct {
	data []byte
	pos  int
	step int
}

func (d *dribbleReader) Read(p []byte) (int, error) {
	if d.pos >= len(d.data) {
		return 0, io.EOF
	}
	end := d.pos + d.step
	if end > len(d.data) {
		end = len(d.data)
	}
	n := copy(p, d.data[d.pos:end])
	d.pos += n
	return n, nil
}

func collectEvents(t *testing.T, r io.Reader) []*ThinkingEvent {
	t.Helper()
	reader := NewStreamReader(NewFrameParser(), nil)

	var events []*ThinkingEvent
	err := reader.Read(context.Background(), r, func(ev *ThinkingEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	return events
}

// =============================================================================
// Stream Reader Tests
// =============================================================================

func TestStreamReader_Read_MultipleBlocks(t *testing.T) {
	body := createEventStream(
		thoughtBlock("tr-1", 1, "first"),
		thoughtBlock("tr-1", 2, "second"),
		thoughtBlock("tr-1", 3, "third"),
	)

	events := collectEvents(t, strings.NewReader(body))

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"first", "second", "third"} {
		if events[i].Content != want {
			t.Errorf("event %d: expected content %q, got %q", i, want, events[i].Content)
		}
	}
}

func TestStreamReader_Read_BlockSplitAcrossChunks(t *testing.T) {
	body := createEventStream(
		thoughtBlock("tr-1", 1, "spanning multiple reads"),
		thoughtBlock("tr-1", 2, "still intact"),
	)

	events := collectEvents(t, &dribbleReader{data: []byte(body), step: 7})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Content != "spanning multiple reads" {
		t.Errorf("unexpected first event content: %q", events[0].Content)
	}
}

func TestStreamReader_Read_CRLFSeparators(t *testing.T) {
	body := thoughtBlock("tr-1", 1, "crlf") + "\r\n\r\n" + thoughtBlock("tr-1", 2, "unix") + "\n\n"

	events := collectEvents(t, strings.NewReader(body))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestStreamReader_Read_FlushesTrailingBlockAtEOF(t *testing.T) {
	// No trailing separator: the final block only exists in the buffer.
	body := thoughtBlock("tr-1", 1, "buffered tail")

	events := collectEvents(t, strings.NewReader(body))

	if len(events) != 1 {
		t.Fatalf("expected trailing block to be flushed, got %d events", len(events))
	}
	if events[0].Content != "buffered tail" {
		t.Errorf("unexpected content: %q", events[0].Content)
	}
}

func TestStreamReader_Read_SkipsMalformedFrames(t *testing.T) {
	body := createEventStream(
		thoughtBlock("tr-1", 1, "good"),
		`data: {"broken`,
		thoughtBlock("tr-1", 2, "also good"),
	)

	events := collectEvents(t, strings.NewReader(body))

	if len(events) != 2 {
		t.Fatalf("expected malformed frame to be skipped, got %d events", len(events))
	}
}

func TestStreamReader_Read_DeliversHeartbeats(t *testing.T) {
	body := createEventStream(
		"event: heartbeat",
		thoughtBlock("tr-1", 1, "after heartbeat"),
	)

	events := collectEvents(t, strings.NewReader(body))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].IsHeartbeat() {
		t.Error("expected first event to be a heartbeat")
	}
}

func TestStreamReader_Read_NilBody(t *testing.T) {
	reader := NewStreamReader(NewFrameParser(), nil)

	err := reader.Read(context.Background(), nil, func(*ThinkingEvent) error { return nil })

	if !errors.Is(err, ErrNoBody) {
		t.Errorf("expected ErrNoBody, got %v", err)
	}
}

func TestStreamReader_Read_CallbackErrorStopsRead(t *testing.T) {
	body := createEventStream(
		thoughtBlock("tr-1", 1, "first"),
		thoughtBlock("tr-1", 2, "second"),
	)
	reader := NewStreamReader(NewFrameParser(), nil)
	stop := errors.New("stop")

	count := 0
	err := reader.Read(context.Background(), strings.NewReader(body), func(*ThinkingEvent) error {
		count++
		return stop
	})

	if !errors.Is(err, stop) {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected read to stop after first callback, got %d calls", count)
	}
}

func TestStreamReader_Read_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewStreamReader(NewFrameParser(), nil)
	err := reader.Read(ctx, strings.NewReader("data: {}\n\n"), func(*ThinkingEvent) error {
		t.Fatal("callback should not run after cancellation")
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
