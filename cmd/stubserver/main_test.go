// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/stream"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, err := logging.New(logging.Config{Level: logging.LevelError, Quiet: true, Service: "stubserver-test"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	s := &stubServer{logger: logger, stepDelay: 0}
	router := gin.New()
	s.registerRoutes(router)
	return router
}

func TestHandleStream_ParsesWithClientReader(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/react_stream",
		strings.NewReader(`{"query": "boiler pressure?", "session_id": "s-9"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected SSE content type, got %q", ct)
	}

	// The emitted stream must round-trip through the real client reader.
	reader := stream.NewStreamReader(stream.NewFrameParser(), slog.New(slog.DiscardHandler))
	var events []*stream.ThinkingEvent
	err := reader.Read(context.Background(), rec.Body, func(ev *stream.ThinkingEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	if len(events) != 8 {
		t.Fatalf("expected 7 trace events plus a heartbeat, got %d", len(events))
	}
	heartbeats := 0
	for _, ev := range events {
		if ev.IsHeartbeat() {
			heartbeats++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 heartbeat, got %d", heartbeats)
	}

	first, last := events[0], events[len(events)-1]
	if first.Kind != stream.KindMetaStart {
		t.Errorf("expected meta.start first, got %s", first.Kind)
	}
	if first.TurnID != "s-9" {
		t.Errorf("expected requested session id, got %q", first.TurnID)
	}
	if last.Kind != stream.KindFinal || !last.IsTerminal() {
		t.Errorf("expected a terminal final event, got %s", last.Kind)
	}
	if last.Extra == nil || len(last.Extra.EnginesUsed) == 0 {
		t.Error("expected final event metadata")
	}
}

func TestHandleStream_RejectsBadJSON(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/react_stream", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleChat_BlockingAnswer(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"query": "boiler pressure?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Answer == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.SessionID == "" {
		t.Error("expected a generated session id")
	}
}

func TestHandleContext_Endpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/context/s-1/info", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("info: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"session_id":"s-1"`) {
		t.Errorf("info: unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/context/s-1", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/context/s-1/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("refresh: expected 200, got %d", rec.Code)
	}
}
