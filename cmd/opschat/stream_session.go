// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the stream session controller: one StreamSession per
// streamed message, owning the connection lifecycle, the heartbeat watchdog,
// and abort classification.
//
// # Description
//
// A session moves through connecting → streaming → one of completed, error,
// or aborted. The watchdog is reset by every frame, heartbeats included;
// when it fires the session is cancelled with a recorded timeout cause so
// the resulting context error is not mistaken for a user stop.
//
// # Assumptions
//
//   - Start is called at most once per StreamSession
//   - Stop may be called from any goroutine, any number of times
package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/stream"
)

// ErrHeartbeatTimeout indicates the server stopped sending frames for longer
// than the heartbeat deadline.
var ErrHeartbeatTimeout = errors.New("stream heartbeat timeout")

// StreamStatus is the lifecycle state of a stream session.
type StreamStatus string

const (
	StreamIdle       StreamStatus = "idle"
	StreamConnecting StreamStatus = "connecting"
	StreamStreaming  StreamStatus = "streaming"
	StreamCompleted  StreamStatus = "completed"
	StreamError      StreamStatus = "error"
	StreamAborted    StreamStatus = "aborted"
)

// abortCause records why a session's context was cancelled.
type abortCause string

const (
	causeNone    abortCause = ""
	causeUser    abortCause = "user"
	causeTimeout abortCause = "timeout"
)

// StreamHooks is the explicit handler table a caller attaches to a session.
// All hooks are optional and are invoked from the streaming goroutine.
type StreamHooks struct {
	// OnConnected fires once the response body is open, before the first
	// event.
	OnConnected func()

	// OnEvent receives every non-heartbeat event in order.
	OnEvent func(ev *stream.ThinkingEvent)

	// OnFinal fires for the final event, after OnEvent.
	OnFinal func(ev *stream.ThinkingEvent)

	// OnError fires for a server-emitted error event, after OnEvent.
	OnError func(ev *stream.ThinkingEvent)

	// OnComplete fires exactly once when the session settles, regardless
	// of outcome.
	OnComplete func()
}

// StreamSession drives one streamed message end to end.
type StreamSession struct {
	client   QAClient
	deadline time.Duration
	logger   *logging.Logger

	mu       sync.Mutex
	status   StreamStatus
	cause    abortCause
	cancel   context.CancelFunc
	watchdog *time.Timer
}

// NewStreamSession creates a session. deadline is the full watchdog window:
// the server's heartbeat interval plus margin.
func NewStreamSession(client QAClient, deadline time.Duration, logger *logging.Logger) *StreamSession {
	return &StreamSession{
		client:   client,
		deadline: deadline,
		logger:   logger,
		status:   StreamIdle,
	}
}

// Status returns the session's current lifecycle state.
func (s *StreamSession) Status() StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stop cancels the session on behalf of the user. Safe to call from any
// goroutine and after the session has settled.
func (s *StreamSession) Stop() {
	s.abort(causeUser)
}

// Start runs the stream to completion and blocks until it settles.
//
// Returns:
//   - nil on a completed stream or a user stop
//   - ErrHeartbeatTimeout (wrapped) when the watchdog fired
//   - ErrNoEvents when the stream closed without emitting anything
//   - the transport error otherwise
func (s *StreamSession) Start(ctx context.Context, req ChatRequest, hooks StreamHooks) error {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.status = StreamConnecting
	s.cause = causeNone
	s.cancel = cancel
	s.watchdog = time.AfterFunc(s.deadline, func() {
		s.logger.Warn("stream heartbeat deadline exceeded", "deadline", s.deadline)
		s.abort(causeTimeout)
	})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.watchdog != nil {
			s.watchdog.Stop()
			s.watchdog = nil
		}
		s.cancel = nil
		s.mu.Unlock()
		cancel()
		if hooks.OnComplete != nil {
			hooks.OnComplete()
		}
	}()

	onConnected := func() {
		s.setStreaming()
		if hooks.OnConnected != nil {
			hooks.OnConnected()
		}
	}

	_, err := s.client.StreamMessage(ctx, req, onConnected, func(ev *stream.ThinkingEvent) error {
		s.feedWatchdog()
		if ev.IsHeartbeat() {
			return nil
		}
		s.setStreaming()

		if hooks.OnEvent != nil {
			hooks.OnEvent(ev)
		}
		switch ev.Kind {
		case stream.KindFinal:
			if hooks.OnFinal != nil {
				hooks.OnFinal(ev)
			}
		case stream.KindError:
			if hooks.OnError != nil {
				hooks.OnError(ev)
			}
		}
		return nil
	})

	return s.settle(err)
}

// settle classifies the read outcome against the recorded abort cause and
// fixes the terminal status.
func (s *StreamSession) settle(err error) error {
	s.mu.Lock()
	cause := s.cause
	s.mu.Unlock()

	switch {
	case cause == causeUser:
		s.setStatus(StreamAborted)
		return nil
	case cause == causeTimeout:
		s.setStatus(StreamError)
		return ErrHeartbeatTimeout
	case err != nil:
		s.setStatus(StreamError)
		return err
	default:
		s.setStatus(StreamCompleted)
		return nil
	}
}

func (s *StreamSession) setStatus(status StreamStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *StreamSession) setStreaming() {
	s.mu.Lock()
	if s.status == StreamConnecting {
		s.status = StreamStreaming
	}
	s.mu.Unlock()
}

func (s *StreamSession) feedWatchdog() {
	s.mu.Lock()
	if s.watchdog != nil {
		s.watchdog.Reset(s.deadline)
	}
	s.mu.Unlock()
}

// abort records the first cause and cancels the in-flight request. Later
// causes are ignored so a user stop racing the watchdog stays a user stop.
func (s *StreamSession) abort(cause abortCause) {
	s.mu.Lock()
	if s.cause != causeNone || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.cause = cause
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
}
