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
	"log/slog"
	"strings"
)

// ErrNoBody indicates a response without a readable body, which means the
// transport cannot stream and the caller should fall back to the blocking
// endpoint.
var ErrNoBody = errors.New("response has no body")

// readChunkSize is the buffer size for each read from the response body.
// Blocks are typically well under 4 KiB; larger payloads simply span reads.
const readChunkSize = 4096

// EventCallback receives each parsed event in arrival order. Returning an
// error stops the read and propagates the error to the caller.
type EventCallback func(ev *ThinkingEvent) error

// StreamReader consumes a chunked SSE response body and delivers parsed
// ThinkingEvents one at a time, without buffering the whole response.
type StreamReader interface {
	// Read pulls blocks from r until EOF, context cancellation, or a
	// callback error. Malformed frames are logged and skipped. A partial
	// block left in the buffer at EOF is flushed through the parser.
	Read(ctx context.Context, r io.Reader, callback EventCallback) error
}

type blockStreamReader struct {
	parser FrameParser
	logger *slog.Logger
}

// NewStreamReader creates a StreamReader backed by the given parser. A nil
// logger defaults to slog.Default().
func NewStreamReader(parser FrameParser, logger *slog.Logger) StreamReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &blockStreamReader{parser: parser, logger: logger}
}

func (sr *blockStreamReader) Read(ctx context.Context, r io.Reader, callback EventCallback) error {
	if r == nil {
		return ErrNoBody
	}

	var buffer strings.Builder
	chunk := make([]byte, readChunkSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			buffer.WriteString(string(chunk[:n]))

			pending := strings.ReplaceAll(buffer.String(), "\r\n", "\n")
			blocks := strings.Split(pending, "\n\n")

			// The last element is an incomplete block; keep it for the
			// next read.
			buffer.Reset()
			buffer.WriteString(blocks[len(blocks)-1])

			for _, block := range blocks[:len(blocks)-1] {
				if err := sr.deliver(block, callback); err != nil {
					return err
				}
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				if err := sr.deliver(buffer.String(), callback); err != nil {
					return err
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", readErr)
		}
	}
}

// deliver parses one block and invokes the callback. Frames the parser
// rejects are logged and dropped so a single corrupt frame cannot end the
// stream.
func (sr *blockStreamReader) deliver(block string, callback EventCallback) error {
	ev, err := sr.parser.ParseBlock(block)
	if err != nil {
		sr.logger.Warn("skipping malformed stream frame",
			"error", err,
			"block_len", len(block))
		return nil
	}
	if ev == nil {
		return nil
	}
	return callback(ev)
}

// Compile-time interface check
var _ StreamReader = (*blockStreamReader)(nil)
