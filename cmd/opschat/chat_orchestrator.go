// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the chat orchestrator: the send-message policy that
// sits between the input loop and the transport.
//
// # Description
//
// SendMessage appends the user's message exactly once, then makes delivery
// attempts against that fixed conversation state: a streaming attempt first
// when allowed, then one blocking retry if the stream fails. The degrade
// path never re-enters SendMessage, so a retried message is never duplicated.
//
// # Limitations
//
//   - One message in flight at a time; concurrent sends are rejected with a
//     warning
package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plantops-ai/opschat/cmd/opschat/config"
	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/stream"
	"github.com/plantops-ai/opschat/pkg/ux"
)

const (
	// stopNoticeText replaces a streaming placeholder when the user stops
	// generation. Deliberately neutral: a stop is not an error.
	stopNoticeText = "Generation stopped."

	// errorBubbleText is the visible message left when every delivery
	// attempt failed.
	errorBubbleText = "Sorry, something went wrong while answering. Please try again."
)

var (
	// ErrEmptyQuery indicates a blank input; nothing was sent.
	ErrEmptyQuery = errors.New("empty query")

	// ErrBusy indicates a message is already in flight.
	ErrBusy = errors.New("a message is already in flight")

	// errNoFinal indicates a stream that ended cleanly but never produced
	// a final event. Treated as a stream failure.
	errNoFinal = errors.New("stream ended without final event")
)

// ChatOrchestrator owns the conversation state and the delivery policy for
// one interactive chat.
type ChatOrchestrator struct {
	client   QAClient
	ui       ux.ChatUI
	traces   *stream.TraceStore
	fallback *FallbackState
	sessions *SessionStore
	cfg      *config.Config
	logger   *logging.Logger

	mu        sync.Mutex
	messages  []Message
	sessionID string
	inFlight  bool
	active    *StreamSession
}

// NewChatOrchestrator wires the orchestrator. sessions may be nil when no
// local database is available; session bookkeeping is then skipped.
func NewChatOrchestrator(
	client QAClient,
	chatUI ux.ChatUI,
	traces *stream.TraceStore,
	fallback *FallbackState,
	sessions *SessionStore,
	cfg *config.Config,
	logger *logging.Logger,
) *ChatOrchestrator {
	return &ChatOrchestrator{
		client:   client,
		ui:       chatUI,
		traces:   traces,
		fallback: fallback,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// SessionID returns the orchestrator session adopted from responses, empty
// until the first answer arrives.
func (o *ChatOrchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// ResumeSession continues an existing orchestrator session.
func (o *ChatOrchestrator) ResumeSession(sessionID string) {
	o.mu.Lock()
	o.sessionID = sessionID
	o.mu.Unlock()
}

// Messages returns a copy of the conversation.
func (o *ChatOrchestrator) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Busy reports whether a message is currently in flight.
func (o *ChatOrchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// StopGeneration cancels the in-flight stream, if any. A stop with nothing
// running is a no-op.
func (o *ChatOrchestrator) StopGeneration() {
	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if active != nil {
		active.Stop()
	}
}

// SendMessage runs one user message through the delivery policy and blocks
// until the conversation has settled. The returned error reports the final
// outcome; all user-visible rendering has already happened.
func (o *ChatOrchestrator) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		o.ui.Warning("Type a question first.")
		return ErrEmptyQuery
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		o.ui.Warning("Still working on the previous question.")
		return ErrBusy
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	// The user message is appended exactly once, before any delivery
	// attempt. Retries below reuse this state.
	o.appendMessage(Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})

	clientTraceID := uuid.NewString()
	placeholderID := uuid.NewString()
	o.appendMessage(Message{
		ID:        placeholderID,
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		IsLoading: true,
		Streaming: true,
		TraceID:   clientTraceID,
	})

	useStream := o.cfg.Stream.Enabled && !o.fallback.Active()
	if !useStream {
		reason := o.fallback.Reason()
		if !o.cfg.Stream.Enabled {
			reason = ""
		}
		return o.deliverBlocking(ctx, text, placeholderID, reason != "", reason)
	}

	handled, err := o.deliverStreaming(ctx, text, placeholderID, clientTraceID)
	if handled || err == nil {
		return nil
	}

	// Degrade: trip the fallback flag and retry once over the blocking
	// endpoint, against the already-appended conversation state.
	reason := degradeReason(err)
	o.logger.Warn("stream delivery failed, degrading",
		"reason", reason,
		"error", err)
	o.fallback.Trip(reason)
	o.resetPlaceholder(placeholderID)
	return o.deliverBlocking(ctx, text, placeholderID, true, reason)
}

// deliverStreaming makes the streaming delivery attempt.
//
// Returns:
//   - (true, nil) when the outcome is terminal and already rendered: a
//     completed answer, a user stop, or a server-emitted error event
//   - (false, err) when the stream failed and the caller should degrade
func (o *ChatOrchestrator) deliverStreaming(ctx context.Context, text, placeholderID, clientTraceID string) (bool, error) {
	session := NewStreamSession(o.client, o.cfg.HeartbeatDeadline(), o.logger)
	o.mu.Lock()
	o.active = session
	sessionID := o.sessionID
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.active = nil
		o.mu.Unlock()
	}()

	traceID := clientTraceID
	var (
		finalEv *stream.ThinkingEvent
		errEv   *stream.ThinkingEvent
		first   = true
	)

	hooks := StreamHooks{
		OnEvent: func(ev *stream.ThinkingEvent) {
			if first {
				first = false
				if ev.TraceID != "" && ev.TraceID != traceID {
					traceID = ev.TraceID
				}
				o.updateMessage(placeholderID, func(m *Message) {
					m.IsLoading = false
					m.TraceID = traceID
				})
			}
			if ev.TurnID != "" {
				o.adoptSession(ev.TurnID)
			}
			o.traces.Append(traceID, *ev)
			o.ui.ThinkingStep(ev)

			// Thought content is the only interim text worth keeping on
			// the placeholder; structural events render in the timeline.
			if ev.Kind == stream.KindThought && ev.Content != "" {
				o.updateMessage(placeholderID, func(m *Message) {
					m.Content = ev.Content
				})
			}
		},
		OnFinal: func(ev *stream.ThinkingEvent) { finalEv = ev },
		OnError: func(ev *stream.ThinkingEvent) { errEv = ev },
	}

	req := ChatRequest{
		Query:         text,
		SessionID:     sessionID,
		CreateSession: sessionID == "",
	}
	err := session.Start(ctx, req, hooks)

	if session.Status() == StreamAborted {
		// User stop: keep the trace, leave a neutral notice.
		o.updateMessage(placeholderID, func(m *Message) {
			m.Content = stopNoticeText
			m.IsLoading = false
			m.Streaming = false
		})
		o.ui.StopNotice(stopNoticeText)
		return true, nil
	}
	if err != nil {
		o.traces.Clear(traceID)
		return false, err
	}
	if errEv != nil && finalEv == nil {
		// The orchestrator answered with a failure of its own; it already
		// made its attempt, so there is nothing to retry.
		msg := errEv.Content
		if msg == "" && errEv.Extra != nil {
			msg = errEv.Extra.ErrorMsg
		}
		if msg == "" {
			msg = errorBubbleText
		}
		o.updateMessage(placeholderID, func(m *Message) {
			m.Content = msg
			m.IsLoading = false
			m.Streaming = false
			m.IsError = true
		})
		o.ui.Error(msg)
		return true, nil
	}
	if finalEv == nil {
		o.traces.Clear(traceID)
		return false, errNoFinal
	}

	o.finalizeAnswer(placeholderID, finalEv, text)
	return true, nil
}

// finalizeAnswer applies the final event to the placeholder. The final
// event is authoritative: metadata absent from it resets to zero values.
func (o *ChatOrchestrator) finalizeAnswer(placeholderID string, finalEv *stream.ThinkingEvent, query string) {
	meta := &ux.AnswerMeta{}
	if extra := finalEv.Extra; extra != nil {
		meta.QueryType = extra.QueryType
		meta.Confidence = extra.Confidence
		meta.EnginesUsed = extra.EnginesUsed
		meta.EnhancementApplied = extra.EnhancementApplied
		meta.Degraded = extra.FallbackTriggered
		meta.DegradeReason = extra.FallbackReason
	}

	o.updateMessage(placeholderID, func(m *Message) {
		m.Content = finalEv.Content
		m.IsLoading = false
		m.Streaming = false
		m.Meta = meta
	})

	o.bookkeepSession(query)
	o.ui.Answer(finalEv.Content, meta)
}

// deliverBlocking makes the single-shot delivery attempt. It is both the
// fallback path and the normal path when streaming is off.
func (o *ChatOrchestrator) deliverBlocking(ctx context.Context, text, placeholderID string, degraded bool, degradeReason string) error {
	o.mu.Lock()
	sessionID := o.sessionID
	o.mu.Unlock()

	resp, err := o.client.Ask(ctx, ChatRequest{
		Query:         text,
		SessionID:     sessionID,
		CreateSession: sessionID == "",
	})
	if err != nil {
		o.logger.Error("blocking delivery failed", "error", err)
		o.updateMessage(placeholderID, func(m *Message) {
			m.Content = errorBubbleText
			m.IsLoading = false
			m.Streaming = false
			m.IsError = true
		})
		o.ui.Error(errorBubbleText)
		return err
	}

	if resp.SessionID != "" {
		o.adoptSession(resp.SessionID)
	}

	meta := &ux.AnswerMeta{
		QueryType:          resp.QueryType,
		Confidence:         resp.Confidence,
		EnginesUsed:        resp.EnginesUsed,
		EnhancementApplied: resp.EnhancementApplied,
		Degraded:           degraded,
		DegradeReason:      degradeReason,
	}
	o.updateMessage(placeholderID, func(m *Message) {
		m.Content = resp.Answer
		m.IsLoading = false
		m.Streaming = false
		m.Meta = meta
	})

	o.bookkeepSession(text)
	o.ui.Answer(resp.Answer, meta)
	return nil
}

// =============================================================================
// Conversation State Helpers
// =============================================================================

func (o *ChatOrchestrator) appendMessage(m Message) {
	o.mu.Lock()
	o.messages = append(o.messages, m)
	o.mu.Unlock()
}

func (o *ChatOrchestrator) updateMessage(id string, apply func(m *Message)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.messages {
		if o.messages[i].ID == id {
			apply(&o.messages[i])
			return
		}
	}
}

// resetPlaceholder returns a placeholder to its loading state before a
// retry, clearing any interim stream content.
func (o *ChatOrchestrator) resetPlaceholder(id string) {
	o.updateMessage(id, func(m *Message) {
		m.Content = ""
		m.IsLoading = true
		m.Streaming = false
		m.IsError = false
		m.Meta = nil
	})
}

func (o *ChatOrchestrator) adoptSession(sessionID string) {
	o.mu.Lock()
	if o.sessionID == "" {
		o.sessionID = sessionID
	}
	o.mu.Unlock()
}

// bookkeepSession records or refreshes the local session metadata after a
// successful answer. A user+assistant pair counts as two messages.
func (o *ChatOrchestrator) bookkeepSession(query string) {
	o.mu.Lock()
	sessionID := o.sessionID
	o.mu.Unlock()
	if o.sessions == nil || sessionID == "" {
		return
	}

	if err := o.sessions.Touch(sessionID, 2); err == nil {
		return
	}
	now := time.Now()
	err := o.sessions.Save(Session{
		SessionID:    sessionID,
		Title:        deriveTitle(query),
		CreatedAt:    now,
		LastAccessed: now,
		MessageCount: 2,
	})
	if err != nil {
		o.logger.Warn("saving session metadata failed", "error", err)
	}
}

func degradeReason(err error) string {
	switch {
	case errors.Is(err, ErrHeartbeatTimeout):
		return "timeout"
	case errors.Is(err, ErrNoEvents):
		return "no_events"
	case errors.Is(err, errNoFinal):
		return "no_final"
	default:
		return "stream_error"
	}
}
