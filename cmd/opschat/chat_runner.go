// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the interactive chat loop and its input readers.
//
// # Description
//
// ChatRunner reads questions, hands them to the orchestrator, and renders
// the session lifecycle. While a message is in flight, an interrupt stops
// generation; at the prompt, an interrupt (or an exit command) ends the
// session.
//
// # Assumptions
//
//   - Run is called once per runner
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/plantops-ai/opschat/pkg/logging"
	"github.com/plantops-ai/opschat/pkg/ux"
)

// exitCommands end the interactive session.
var exitCommands = map[string]bool{
	"exit": true,
	"quit": true,
	"bye":  true,
	"/q":   true,
}

// errInputInterrupted is returned by input readers on Ctrl+C.
var errInputInterrupted = errors.New("input interrupted")

// =============================================================================
// Input Readers
// =============================================================================

// InputReader reads one line of user input.
type InputReader interface {
	ReadLine() (string, error)
}

// PromptingInputReader is an InputReader that renders its own prompt.
type PromptingInputReader interface {
	InputReader
	SetPrompt(prompt string)
}

// StdinReader reads plain lines from an io.Reader. Used for piped input and
// as the non-TTY fallback.
type StdinReader struct {
	scanner *bufio.Scanner
}

// NewStdinReader creates a reader over stdin.
func NewStdinReader() *StdinReader {
	return NewStdinReaderFrom(os.Stdin)
}

// NewStdinReaderFrom creates a reader over r. Used in tests.
func NewStdinReaderFrom(r io.Reader) *StdinReader {
	return &StdinReader{scanner: bufio.NewScanner(r)}
}

func (r *StdinReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

// InteractiveInputReader reads input through a bubbletea text field with
// in-session history. Falls back to StdinReader when stdin is not a
// terminal.
type InteractiveInputReader struct {
	prompt   string
	history  []string
	fallback *StdinReader
}

// NewInteractiveInputReader creates the interactive reader.
func NewInteractiveInputReader() *InteractiveInputReader {
	r := &InteractiveInputReader{prompt: "> "}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		r.fallback = NewStdinReader()
	}
	return r
}

// SetPrompt sets the prompt rendered in front of the text field.
func (r *InteractiveInputReader) SetPrompt(prompt string) {
	r.prompt = prompt
}

func (r *InteractiveInputReader) ReadLine() (string, error) {
	if r.fallback != nil {
		return r.fallback.ReadLine()
	}

	model := newInputModel(r.prompt, r.history)
	// Render on stderr so piped stdout stays clean machine output.
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("input program: %w", err)
	}

	m, ok := final.(inputModel)
	if !ok {
		return "", fmt.Errorf("unexpected input model type %T", final)
	}
	switch {
	case m.eof:
		return "", io.EOF
	case m.interrupted:
		return "", errInputInterrupted
	}

	line := m.input.Value()
	if strings.TrimSpace(line) != "" {
		r.history = append(r.history, line)
	}
	return line, nil
}

// inputModel is the bubbletea model behind InteractiveInputReader.
type inputModel struct {
	input       textinput.Model
	historyPos  int
	history     []string
	eof         bool
	interrupted bool
	done        bool
}

func newInputModel(prompt string, history []string) inputModel {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Focus()
	return inputModel{
		input:      ti,
		history:    history,
		historyPos: len(history),
	}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC:
			m.interrupted = true
			return m, tea.Quit
		case tea.KeyCtrlD:
			if m.input.Value() == "" {
				m.eof = true
				return m, tea.Quit
			}
		case tea.KeyUp:
			if m.historyPos > 0 {
				m.historyPos--
				m.input.SetValue(m.history[m.historyPos])
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyDown:
			if m.historyPos < len(m.history) {
				m.historyPos++
				if m.historyPos == len(m.history) {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.history[m.historyPos])
				}
				m.input.CursorEnd()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done || m.eof || m.interrupted {
		return ""
	}
	return m.input.View()
}

// =============================================================================
// Chat Runner
// =============================================================================

// ChatRunner drives one interactive chat session.
type ChatRunner struct {
	orc    *ChatOrchestrator
	ui     ux.ChatUI
	input  InputReader
	logger *logging.Logger

	started time.Time
	turns   int

	mu     sync.Mutex
	closed bool
}

// NewChatRunner wires a runner over the orchestrator.
func NewChatRunner(orc *ChatOrchestrator, chatUI ux.ChatUI, input InputReader, logger *logging.Logger) *ChatRunner {
	return &ChatRunner{
		orc:    orc,
		ui:     chatUI,
		input:  input,
		logger: logger,
	}
}

// Run executes the read-send loop until an exit command, EOF, or an
// interrupt at the prompt.
func (r *ChatRunner) Run(ctx context.Context, version, baseURL string) error {
	r.started = time.Now()
	r.ui.Header(version, baseURL)

	if prompting, ok := r.input.(PromptingInputReader); ok {
		prompting.SetPrompt(r.ui.PromptString())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// An interrupt during generation stops the stream; at the prompt it
	// ends the session.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if r.orc.Busy() {
					r.orc.StopGeneration()
				} else {
					cancel()
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return r.Close()
		default:
		}

		line, err := r.input.ReadLine()
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, errInputInterrupted):
			return r.Close()
		case err != nil:
			r.logger.Error("reading input failed", "error", err)
			return r.Close()
		}

		trimmed := strings.TrimSpace(strings.ToLower(line))
		if exitCommands[trimmed] {
			return r.Close()
		}

		r.handleMessage(ctx, line)
	}
}

func (r *ChatRunner) handleMessage(ctx context.Context, line string) {
	err := r.orc.SendMessage(ctx, line)
	switch {
	case err == nil:
		r.turns++
	case errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrBusy):
		// Already rendered as a warning.
	default:
		r.logger.Error("message delivery failed", "error", err)
	}
}

// Close renders the session summary. Safe to call more than once.
func (r *ChatRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.ui.SessionEnd(ux.SessionSummary{
		SessionID: r.orc.SessionID(),
		Messages:  r.turns * 2,
		Duration:  time.Since(r.started),
	})
	return nil
}
