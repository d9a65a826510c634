// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command stubserver is a development stand-in for the PlantOps
// orchestrator. It serves the thinking stream and the blocking chat
// endpoint with canned responses so the client can be exercised without a
// real backend.
//
// Usage:
//
//	stubserver --addr :8000 --step-delay 200ms
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/stream"
)

type chatRequest struct {
	Query          string `json:"query"`
	SessionID      string `json:"session_id"`
	CreateSession  bool   `json:"create_session"`
	StreamThoughts bool   `json:"stream_thoughts"`
}

type chatResponse struct {
	Success            bool     `json:"success"`
	Answer             string   `json:"answer"`
	SessionID          string   `json:"session_id"`
	QueryType          string   `json:"query_type"`
	EnginesUsed        []string `json:"engines_used,omitempty"`
	Confidence         float64  `json:"confidence,omitempty"`
	EnhancementApplied bool     `json:"enhancement_applied,omitempty"`
}

type stubServer struct {
	logger    *logging.Logger
	stepDelay time.Duration
}

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	stepDelay := flag.Duration("step-delay", 150*time.Millisecond, "delay between stream events")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: logging.LevelInfo, Service: "stubserver"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer logger.Close()

	s := &stubServer{logger: logger, stepDelay: *stepDelay}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)

	logger.Info("stub orchestrator listening", "addr", *addr)
	if err := router.Run(*addr); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func (s *stubServer) registerRoutes(router *gin.Engine) {
	router.POST("/api/react_stream", s.handleStream)
	router.POST("/api/chat", s.handleChat)
	router.GET("/api/context/:id/info", s.handleContextInfo)
	router.DELETE("/api/context/:id", s.handleContextDelete)
	router.POST("/api/context/:id/refresh", s.handleContextRefresh)
}

// handleStream emits the canned thinking trace as SSE, heartbeats included.
func (s *stubServer) handleStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	traceID := uuid.NewString()
	s.logger.Info("streaming request",
		"trace_id", traceID,
		"session_id", sessionID,
		"query_len", len(req.Query))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	now := func() int64 { return time.Now().UnixMilli() }
	events := []stream.ThinkingEvent{
		{TraceID: traceID, TurnID: sessionID, Sequence: 0, Kind: stream.KindMetaStart, Content: "trace started"},
		{TraceID: traceID, TurnID: sessionID, Sequence: 1, Kind: stream.KindRouterDecision, Content: "routing query",
			Extra: &stream.EventExtra{QueryType: "knowledge", Route: "rag", Confidence: 0.82}},
		{TraceID: traceID, TurnID: sessionID, Sequence: 2, Kind: stream.KindMemoryInject, Content: "injecting memory",
			Extra: &stream.EventExtra{MemoryCount: 3}},
		{TraceID: traceID, TurnID: sessionID, Sequence: 3, Kind: stream.KindThought, Content: "Looking up recent telemetry for the asset."},
		{TraceID: traceID, TurnID: sessionID, Sequence: 4, Kind: stream.KindToolCall, Content: "calling tool",
			Extra: &stream.EventExtra{ToolName: "sql_query", ToolArgs: map[string]any{"table": "telemetry"}}},
		{TraceID: traceID, TurnID: sessionID, Sequence: 5, Kind: stream.KindToolResult, Content: "tool finished",
			Extra: &stream.EventExtra{ToolName: "sql_query", Status: "ok", Duration: 0.4, Preview: "42 rows"}},
		{TraceID: traceID, TurnID: sessionID, Sequence: 6, Kind: stream.KindFinal,
			Content: "All monitored values for your query are within normal limits.",
			Extra: &stream.EventExtra{QueryType: "knowledge", Confidence: 0.91,
				EnginesUsed: []string{"rag", "sql"}, EnhancementApplied: true}},
	}

	for i, ev := range events {
		select {
		case <-c.Request.Context().Done():
			s.logger.Info("client disconnected", "trace_id", traceID)
			return
		default:
		}

		ev.Timestamp = now()
		if err := writeEvent(c, ev); err != nil {
			s.logger.Warn("writing event failed", "error", err)
			return
		}
		flusher.Flush()

		// A heartbeat midway exercises the client's keepalive handling.
		if i == 2 {
			fmt.Fprint(c.Writer, "event: heartbeat\n\n")
			flusher.Flush()
		}
		time.Sleep(s.stepDelay)
	}
}

func writeEvent(c *gin.Context, ev stream.ThinkingEvent) error {
	c.SSEvent("thinking", ev)
	// gin.SSEvent writes "event:" and a JSON "data:" line; the blank-line
	// separator is ours to add.
	_, err := fmt.Fprint(c.Writer, "\n")
	return err
}

func (s *stubServer) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	c.JSON(http.StatusOK, chatResponse{
		Success:     true,
		Answer:      "All monitored values for your query are within normal limits.",
		SessionID:   sessionID,
		QueryType:   "knowledge",
		EnginesUsed: []string{"rag"},
		Confidence:  0.88,
	})
}

func (s *stubServer) handleContextInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session_id":    c.Param("id"),
		"message_count": 4,
		"created_at":    time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
}

func (s *stubServer) handleContextDelete(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (s *stubServer) handleContextRefresh(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "refreshed": true})
}
