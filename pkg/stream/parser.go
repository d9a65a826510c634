// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultPreviewMax is the character limit applied to tool result previews
// before they are surfaced to the UI.
const DefaultPreviewMax = 500

// ErrMalformedFrame indicates a data payload that could not be decoded as a
// ThinkingEvent. Callers are expected to log and skip the frame; one bad
// frame must not kill the stream.
var ErrMalformedFrame = errors.New("malformed stream frame")

// FrameParser converts one SSE block into a ThinkingEvent.
//
// A block is the text between two blank-line separators: zero or more
// "event:" / "data:" / comment lines. The parser is stateless and safe for
// concurrent use.
type FrameParser interface {
	// ParseBlock parses a single SSE block.
	//
	// Returns:
	//   - (nil, nil) for blocks that carry no event: empty blocks, comment
	//     -only blocks, and blocks without a data payload
	//   - a synthetic heartbeat event for heartbeat frames
	//   - (nil, ErrMalformedFrame-wrapped error) when the payload is not
	//     valid JSON
	ParseBlock(block string) (*ThinkingEvent, error)
}

type frameParser struct {
	previewMax int
}

// NewFrameParser creates a FrameParser with the default preview limit.
func NewFrameParser() FrameParser {
	return NewFrameParserWithPreviewMax(DefaultPreviewMax)
}

// NewFrameParserWithPreviewMax creates a FrameParser that truncates tool
// result previews to max characters. A max of zero or less disables
// truncation.
func NewFrameParserWithPreviewMax(max int) FrameParser {
	return &frameParser{previewMax: max}
}

// wireEvent is the raw JSON shape of a data payload. The timestamp is kept
// raw because the server has emitted both epoch numbers and RFC 3339 strings
// across versions; session_id is the legacy name for turn_id.
type wireEvent struct {
	TraceID   string          `json:"trace_id"`
	TurnID    string          `json:"turn_id"`
	SessionID string          `json:"session_id"`
	Step      int             `json:"step"`
	Ts        json.RawMessage `json:"ts"`
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	Extra     *EventExtra     `json:"extra"`
}

func (p *frameParser) ParseBlock(block string) (*ThinkingEvent, error) {
	block = strings.TrimSpace(block)
	if block == "" {
		return nil, nil
	}

	var (
		eventName string
		dataLines []string
	)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, ":"):
			// SSE comment, ignore
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if eventName == string(KindHeartbeat) {
		return syntheticHeartbeat(), nil
	}
	if len(dataLines) == 0 {
		return nil, nil
	}

	payload := strings.Join(dataLines, "\n")
	if payload == string(KindHeartbeat) {
		return syntheticHeartbeat(), nil
	}

	var raw wireEvent
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	ev := &ThinkingEvent{
		TraceID:   raw.TraceID,
		TurnID:    raw.TurnID,
		Sequence:  raw.Step,
		Timestamp: normalizeTimestamp(raw.Ts),
		Kind:      EventKind(raw.Type),
		Content:   raw.Content,
		Extra:     raw.Extra,
	}
	if ev.TurnID == "" {
		ev.TurnID = raw.SessionID
	}
	if ev.Extra != nil && p.previewMax > 0 {
		ev.Extra.Preview = truncatePreview(ev.Extra.Preview, p.previewMax)
	}
	return ev, nil
}

// syntheticHeartbeat builds the placeholder event used for keepalive frames
// so downstream consumers see a uniform event type.
func syntheticHeartbeat() *ThinkingEvent {
	return &ThinkingEvent{
		Timestamp: time.Now().UnixMilli(),
		Kind:      KindHeartbeat,
	}
}

// normalizeTimestamp converts a raw ts value to epoch milliseconds. Numbers
// pass through, RFC 3339 strings are parsed, anything else falls back to the
// current time.
func normalizeTimestamp(raw json.RawMessage) int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Now().UnixMilli()
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return int64(num)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UnixMilli()
		}
	}
	return time.Now().UnixMilli()
}

func truncatePreview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// Compile-time interface check
var _ FrameParser = (*frameParser)(nil)
