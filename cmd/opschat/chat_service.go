// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the HTTP transport to the PlantOps orchestrator: the
// thinking stream endpoint, the blocking chat endpoint, and the session
// context operations.
//
// # Description
//
// QAClient is the single surface the orchestrator is reached through. The
// streaming path follows the layered architecture:
//
//	HTTP Response Body → FrameParser → StreamReader → EventCallback
//
// # Limitations
//
//   - StreamMessage holds the connection open for the lifetime of the
//     response; callers bound it with a context
//   - No authentication; the orchestrator is assumed to be reachable on a
//     trusted network
//
// # Assumptions
//
//   - The orchestrator emits the SSE frame format parsed by pkg/stream
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/plantops-ai/opschat/cmd/opschat/config"
	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/stream"
)

// ErrNoEvents indicates a streaming response that closed without emitting a
// single event. Treated as a stream failure so the caller can degrade to
// the blocking endpoint.
var ErrNoEvents = errors.New("no stream events received")

// errorBodyLimit caps how much of a failed response body is read into the
// error message.
const errorBodyLimit = 2048

// =============================================================================
// HTTP Client Interface
// =============================================================================

// HTTPClient abstracts the HTTP operations the client needs, so tests can
// substitute canned responses.
type HTTPClient interface {
	Post(ctx context.Context, url string, body []byte) (*http.Response, error)
	PostWithHeaders(ctx context.Context, url string, body []byte, headers map[string]string) (*http.Response, error)
	Get(ctx context.Context, url string) (*http.Response, error)
	Delete(ctx context.Context, url string) (*http.Response, error)
}

type defaultHTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates the production HTTP client. Timeouts are applied
// per-request through contexts so streaming responses are not cut short.
func NewHTTPClient() HTTPClient {
	return &defaultHTTPClient{client: &http.Client{}}
}

func (c *defaultHTTPClient) Post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	return c.PostWithHeaders(ctx, url, body, nil)
}

func (c *defaultHTTPClient) PostWithHeaders(ctx context.Context, url string, body []byte, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

func (c *defaultHTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.client.Do(req)
}

func (c *defaultHTTPClient) Delete(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.client.Do(req)
}

// =============================================================================
// QA Client
// =============================================================================

// QAClient talks to the PlantOps orchestrator.
type QAClient interface {
	// StreamMessage posts req to the thinking stream endpoint and delivers
	// each event to callback. onConnected fires once the response body is
	// available, before the first event. Returns the number of events
	// delivered.
	StreamMessage(ctx context.Context, req ChatRequest, onConnected func(), callback stream.EventCallback) (int, error)

	// Ask posts req to the blocking chat endpoint.
	Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ContextInfo fetches metadata for a server-side conversation context.
	ContextInfo(ctx context.Context, sessionID string) (*ContextInfo, error)

	// DeleteContext removes a server-side conversation context.
	DeleteContext(ctx context.Context, sessionID string) error

	// RefreshContext resets the TTL of a server-side conversation context.
	RefreshContext(ctx context.Context, sessionID string) error
}

type qaClient struct {
	http   HTTPClient
	reader stream.StreamReader
	cfg    *config.Config
	logger *logging.Logger
}

// NewQAClient creates a QAClient with production dependencies.
func NewQAClient(cfg *config.Config, logger *logging.Logger) QAClient {
	parser := stream.NewFrameParserWithPreviewMax(cfg.Stream.PreviewMaxLength)
	return NewQAClientWithDeps(cfg, logger, NewHTTPClient(), stream.NewStreamReader(parser, logger.Slog()))
}

// NewQAClientWithDeps creates a QAClient with injected dependencies. Used in
// tests.
func NewQAClientWithDeps(cfg *config.Config, logger *logging.Logger, httpClient HTTPClient, reader stream.StreamReader) QAClient {
	return &qaClient{
		http:   httpClient,
		reader: reader,
		cfg:    cfg,
		logger: logger,
	}
}

func (c *qaClient) StreamMessage(ctx context.Context, req ChatRequest, onConnected func(), callback stream.EventCallback) (int, error) {
	// The stream endpoint only makes sense with thoughts enabled.
	req.StreamThoughts = true

	payload, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.PostWithHeaders(ctx, c.cfg.StreamURL(), payload, map[string]string{
		"Accept": "text/event-stream",
	})
	if err != nil {
		return 0, fmt.Errorf("http post: %w", err)
	}
	defer func(body io.ReadCloser) {
		if body != nil {
			_ = body.Close()
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("stream request failed: %s: %s", resp.Status, readErrorBody(resp.Body))
	}
	if resp.Body == nil {
		return 0, stream.ErrNoBody
	}

	if onConnected != nil {
		onConnected()
	}

	count := 0
	err = c.reader.Read(ctx, resp.Body, func(ev *stream.ThinkingEvent) error {
		count++
		return callback(ev)
	})
	if err != nil {
		return count, err
	}
	if count == 0 {
		return 0, ErrNoEvents
	}
	return count, nil
}

func (c *qaClient) Ask(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()

	req.StreamThoughts = false
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(ctx, c.cfg.ChatURL(), payload)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer func(body io.ReadCloser) {
		if body != nil {
			_ = body.Close()
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat request failed: %s: %s", resp.Status, readErrorBody(resp.Body))
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "orchestrator reported failure"
		}
		return nil, fmt.Errorf("chat request failed: %s", msg)
	}
	return &out, nil
}

func (c *qaClient) ContextInfo(ctx context.Context, sessionID string) (*ContextInfo, error) {
	resp, err := c.http.Get(ctx, c.contextURL(sessionID)+"/info")
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func(body io.ReadCloser) {
		if body != nil {
			_ = body.Close()
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("context info failed: %s", resp.Status)
	}
	var info ContextInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode context info: %w", err)
	}
	return &info, nil
}

func (c *qaClient) DeleteContext(ctx context.Context, sessionID string) error {
	resp, err := c.http.Delete(ctx, c.contextURL(sessionID))
	if err != nil {
		return fmt.Errorf("http delete: %w", err)
	}
	defer func(body io.ReadCloser) {
		if body != nil {
			_ = body.Close()
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete context failed: %s", resp.Status)
	}
	return nil
}

func (c *qaClient) RefreshContext(ctx context.Context, sessionID string) error {
	resp, err := c.http.Post(ctx, c.contextURL(sessionID)+"/refresh", nil)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer func(body io.ReadCloser) {
		if body != nil {
			_ = body.Close()
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh context failed: %s", resp.Status)
	}
	return nil
}

func (c *qaClient) contextURL(sessionID string) string {
	return c.cfg.Server.BaseURL + "/api/context/" + sessionID
}

func readErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, errorBodyLimit))
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(data))
}

// Compile-time interface checks
var (
	_ HTTPClient = (*defaultHTTPClient)(nil)
	_ QAClient   = (*qaClient)(nil)
)
