// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream implements the client side of the orchestrator's thinking
// stream: parsing SSE frames into ThinkingEvents, reading chunked response
// bodies into event sequences, and storing per-trace event timelines.
package stream

// EventKind identifies the type of a ThinkingEvent as emitted by the
// orchestrator's reasoning loop.
type EventKind string

const (
	// KindMetaStart marks the beginning of a reasoning trace.
	KindMetaStart EventKind = "meta.start"

	// KindRouterDecision reports which engine the query router selected.
	KindRouterDecision EventKind = "router.decision"

	// KindMemoryInject reports conversational memory being added to the prompt.
	KindMemoryInject EventKind = "memory.inject"

	// KindThought carries a fragment of model reasoning text.
	KindThought EventKind = "thought"

	// KindToolCall reports a tool invocation with its arguments.
	KindToolCall EventKind = "tool_call"

	// KindToolResult reports a tool completion with a result preview.
	KindToolResult EventKind = "tool_result"

	// KindFallback reports that the orchestrator degraded to a simpler path.
	KindFallback EventKind = "fallback"

	// KindFinal carries the complete answer and closes the trace.
	KindFinal EventKind = "final"

	// KindError reports a server-side failure and closes the trace.
	KindError EventKind = "error"

	// KindHeartbeat is a keepalive frame; it carries no content.
	KindHeartbeat EventKind = "heartbeat"
)

// EventExtra carries the kind-specific payload of a ThinkingEvent. All
// fields are optional on the wire; which ones are populated depends on the
// event kind.
type EventExtra struct {
	QueryType          string         `json:"query_type,omitempty"`
	Confidence         float64        `json:"confidence,omitempty"`
	Route              string         `json:"route,omitempty"`
	MemoryCount        int            `json:"memory_count,omitempty"`
	ToolName           string         `json:"tool_name,omitempty"`
	ToolArgs           map[string]any `json:"tool_args,omitempty"`
	Status             string         `json:"status,omitempty"`
	Duration           float64        `json:"duration,omitempty"`
	Preview            string         `json:"preview,omitempty"`
	ErrorMsg           string         `json:"error_msg,omitempty"`
	FallbackTriggered  bool           `json:"fallback_triggered,omitempty"`
	FallbackReason     string         `json:"fallback_reason,omitempty"`
	EnginesUsed        []string       `json:"engines_used,omitempty"`
	EnhancementApplied bool           `json:"enhancement_applied,omitempty"`
}

// ThinkingEvent is one step of the orchestrator's reasoning trace as
// delivered over the thinking stream.
//
// Sequence orders events within a trace; the wire field is "step". Timestamp
// is epoch milliseconds after normalization by the parser.
type ThinkingEvent struct {
	TraceID   string      `json:"trace_id"`
	TurnID    string      `json:"turn_id,omitempty"`
	Sequence  int         `json:"step"`
	Timestamp int64       `json:"ts"`
	Kind      EventKind   `json:"type"`
	Content   string      `json:"content"`
	Extra     *EventExtra `json:"extra,omitempty"`
}

// IsTerminal reports whether the event ends its trace.
func (e *ThinkingEvent) IsTerminal() bool {
	return e.Kind == KindFinal || e.Kind == KindError
}

// IsHeartbeat reports whether the event is a keepalive frame.
func (e *ThinkingEvent) IsHeartbeat() bool {
	return e.Kind == KindHeartbeat
}
