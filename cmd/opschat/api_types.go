// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package main contains the opschat terminal client for the PlantOps
// question-answering orchestrator.
//
// This file defines the wire types for the orchestrator's HTTP API and the
// client-side conversation model.
package main

import (
	"time"

	"github.com/plantops-ai/opschat/pkg/ux"
)

// =============================================================================
// Orchestrator Wire Types
// =============================================================================

// ChatRequest is the request body shared by the blocking chat endpoint and
// the thinking stream endpoint.
type ChatRequest struct {
	Query          string `json:"query"`
	SessionID      string `json:"session_id,omitempty"`
	QueryType      string `json:"query_type,omitempty"`
	CreateSession  bool   `json:"create_session,omitempty"`
	StreamThoughts bool   `json:"stream_thoughts,omitempty"`
}

// ChatResponse is the blocking chat endpoint's response body.
type ChatResponse struct {
	Success            bool     `json:"success"`
	Answer             string   `json:"answer"`
	SessionID          string   `json:"session_id"`
	QueryType          string   `json:"query_type"`
	EnginesUsed        []string `json:"engines_used,omitempty"`
	Confidence         float64  `json:"confidence,omitempty"`
	EnhancementApplied bool     `json:"enhancement_applied,omitempty"`
	Error              string   `json:"error,omitempty"`
}

// ContextInfo describes a server-side conversation context.
type ContextInfo struct {
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// =============================================================================
// Conversation Model
// =============================================================================

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the client-side conversation.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time

	// IsLoading marks a placeholder still waiting for its first stream
	// event or blocking response.
	IsLoading bool

	// Streaming marks a message currently being filled by the thinking
	// stream.
	Streaming bool

	// IsError marks a visible failure bubble.
	IsError bool

	// TraceID links an assistant message to its thinking trace.
	TraceID string

	// Meta carries answer metadata once the response completes.
	Meta *ux.AnswerMeta
}
