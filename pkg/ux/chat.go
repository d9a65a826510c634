// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/plantops-ai/opschat/pkg/stream"
)

// AnswerMeta carries the answer metadata shown after a response completes.
type AnswerMeta struct {
	QueryType          string
	Confidence         float64
	EnginesUsed        []string
	EnhancementApplied bool
	Degraded           bool
	DegradeReason      string
}

// SessionSummary is shown when an interactive session ends.
type SessionSummary struct {
	SessionID string
	Messages  int
	Duration  time.Duration
}

// ChatUI renders the chat surface for the terminal client.
type ChatUI interface {
	// Header prints the session banner.
	Header(version, baseURL string)

	// PromptString returns the rendered input prompt.
	PromptString() string

	// ThinkingStep renders one event of the live thinking timeline.
	ThinkingStep(ev *stream.ThinkingEvent)

	// Answer renders the assistant's final answer with its metadata.
	Answer(text string, meta *AnswerMeta)

	// StopNotice renders the neutral marker left when the user stops
	// generation.
	StopNotice(text string)

	// Warning renders a non-fatal notice.
	Warning(msg string)

	// Error renders a failure message.
	Error(msg string)

	// Info renders a muted informational line.
	Info(msg string)

	// SessionEnd prints the closing summary.
	SessionEnd(summary SessionSummary)
}

type terminalChatUI struct {
	w io.Writer
}

// NewChatUI creates a ChatUI writing to stdout.
func NewChatUI() ChatUI {
	return NewChatUIWithWriter(os.Stdout)
}

// NewChatUIWithWriter creates a ChatUI writing to w. Used in tests.
func NewChatUIWithWriter(w io.Writer) ChatUI {
	return &terminalChatUI{w: w}
}

func (ui *terminalChatUI) writeln(s string) {
	fmt.Fprintln(ui.w, s)
}

func (ui *terminalChatUI) Header(version, baseURL string) {
	if GetPersonalityLevel() == PersonalityMachine {
		ui.writeln(fmt.Sprintf("opschat %s (%s)", version, baseURL))
		return
	}
	title := Colorize(Styles.Title, "opschat "+version)
	sub := Colorize(Styles.Subtitle, "plant operations assistant · "+baseURL)
	if GetPersonalityLevel() == PersonalityFull {
		ui.writeln(Styles.Box.Render(title + "\n" + sub))
	} else {
		ui.writeln(title)
		ui.writeln(sub)
	}
	ui.writeln(Colorize(Styles.Muted, "Type a question, or \"exit\" to leave."))
}

func (ui *terminalChatUI) PromptString() string {
	return Colorize(Styles.Prompt, IconPrompt.Render()+" ")
}

func (ui *terminalChatUI) ThinkingStep(ev *stream.ThinkingEvent) {
	if !ShouldShowTimeline() || ev == nil {
		return
	}

	switch ev.Kind {
	case stream.KindMetaStart:
		ui.writeln(Colorize(Styles.Muted, "  trace "+ev.TraceID))
	case stream.KindRouterDecision:
		line := "route"
		if ev.Extra != nil && ev.Extra.Route != "" {
			line = "route: " + ev.Extra.Route
		}
		if ev.Extra != nil && ev.Extra.QueryType != "" {
			line += " (" + ev.Extra.QueryType + ")"
		}
		ui.writeln(Labeled(IconRouter, Styles.Tool, "%s", line))
	case stream.KindMemoryInject:
		count := 0
		if ev.Extra != nil {
			count = ev.Extra.MemoryCount
		}
		ui.writeln(Labeled(IconMemory, Styles.Tool, "memory: %d items", count))
	case stream.KindThought:
		if GetPersonalityLevel() == PersonalityFull && ev.Content != "" {
			ui.writeln(Colorize(Styles.Thinking, "  "+ev.Content))
		}
	case stream.KindToolCall:
		name := "tool"
		if ev.Extra != nil && ev.Extra.ToolName != "" {
			name = ev.Extra.ToolName
		}
		ui.writeln(Labeled(IconTool, Styles.Tool, "%s ...", name))
	case stream.KindToolResult:
		ui.renderToolResult(ev)
	case stream.KindFallback:
		reason := ev.Content
		if ev.Extra != nil && ev.Extra.FallbackReason != "" {
			reason = ev.Extra.FallbackReason
		}
		ui.writeln(Labeled(IconFallback, Styles.Warning, "degraded: %s", reason))
	}
}

func (ui *terminalChatUI) renderToolResult(ev *stream.ThinkingEvent) {
	name := "tool"
	status := "ok"
	var duration float64
	if ev.Extra != nil {
		if ev.Extra.ToolName != "" {
			name = ev.Extra.ToolName
		}
		if ev.Extra.Status != "" {
			status = ev.Extra.Status
		}
		duration = ev.Extra.Duration
	}

	style := Styles.Success
	icon := IconSuccess
	if status != "ok" {
		style = Styles.Warning
		icon = IconWarning
	}
	ui.writeln(Labeled(icon, style, "%s %s (%.1fs)", name, status, duration))

	if GetPersonalityLevel() == PersonalityFull && ev.Extra != nil && ev.Extra.Preview != "" {
		ui.writeln(Colorize(Styles.Muted, "  "+ev.Extra.Preview))
	}
}

func (ui *terminalChatUI) Answer(text string, meta *AnswerMeta) {
	ui.writeln("")
	ui.writeln(Colorize(Styles.Prompt, IconAnswer.Render()) + " " + Colorize(Styles.Answer, text))

	if meta == nil || GetPersonalityLevel() == PersonalityMachine {
		ui.writeln("")
		return
	}

	var parts []string
	if meta.QueryType != "" {
		parts = append(parts, meta.QueryType)
	}
	if len(meta.EnginesUsed) > 0 {
		parts = append(parts, "engines: "+strings.Join(meta.EnginesUsed, ","))
	}
	if meta.Confidence > 0 {
		parts = append(parts, fmt.Sprintf("confidence: %.2f", meta.Confidence))
	}
	if meta.EnhancementApplied {
		parts = append(parts, "enhanced")
	}
	if meta.Degraded {
		note := "degraded"
		if meta.DegradeReason != "" {
			note += ": " + meta.DegradeReason
		}
		parts = append(parts, note)
	}
	if len(parts) > 0 {
		ui.writeln(Colorize(Styles.Muted, "  ["+strings.Join(parts, " · ")+"]"))
	}
	ui.writeln("")
}

func (ui *terminalChatUI) StopNotice(text string) {
	ui.writeln("")
	ui.writeln(Labeled(IconStopped, Styles.Muted, "%s", text))
	ui.writeln("")
}

func (ui *terminalChatUI) Warning(msg string) {
	ui.writeln(Labeled(IconWarning, Styles.Warning, "%s", msg))
}

func (ui *terminalChatUI) Error(msg string) {
	ui.writeln(Labeled(IconError, Styles.Error, "%s", msg))
}

func (ui *terminalChatUI) Info(msg string) {
	ui.writeln(Colorize(Styles.Muted, msg))
}

func (ui *terminalChatUI) SessionEnd(summary SessionSummary) {
	if GetPersonalityLevel() == PersonalityMachine {
		ui.writeln(fmt.Sprintf("session=%s messages=%d duration=%s",
			summary.SessionID, summary.Messages, summary.Duration.Round(time.Second)))
		return
	}
	ui.writeln("")
	ui.writeln(Labeled(IconSuccess, Styles.Success, "Session closed."))
	if summary.SessionID != "" {
		ui.writeln(Colorize(Styles.Muted, fmt.Sprintf("  %d messages over %s · session %s",
			summary.Messages, summary.Duration.Round(time.Second), summary.SessionID)))
	}
}

// Compile-time interface check
var _ ChatUI = (*terminalChatUI)(nil)
