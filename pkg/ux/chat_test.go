// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/plantops-ai/opschat/pkg/stream"
)

func withLevel(t *testing.T, level PersonalityLevel) {
	t.Helper()
	prev := GetPersonalityLevel()
	SetPersonalityLevel(level)
	t.Cleanup(func() { SetPersonalityLevel(prev) })
}

func TestChatUI_Header_Machine(t *testing.T) {
	withLevel(t, PersonalityMachine)
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf)

	ui.Header("1.2.0", "http://localhost:8080")

	got := buf.String()
	if !strings.Contains(got, "opschat 1.2.0") {
		t.Errorf("expected version in header, got %q", got)
	}
	if strings.Contains(got, "❯") {
		t.Errorf("machine output must not contain icons: %q", got)
	}
}

func TestChatUI_ThinkingStep_ToolResult(t *testing.T) {
	withLevel(t, PersonalityStandard)
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf)

	ui.ThinkingStep(&stream.ThinkingEvent{
		Kind: stream.KindToolResult,
		Extra: &stream.EventExtra{
			ToolName: "sql_query",
			Status:   "ok",
			Duration: 1.5,
		},
	})

	got := buf.String()
	if !strings.Contains(got, "sql_query") {
		t.Errorf("expected tool name in output, got %q", got)
	}
	if !strings.Contains(got, "1.5s") {
		t.Errorf("expected duration in output, got %q", got)
	}
}

func TestChatUI_ThinkingStep_SuppressedInMachineMode(t *testing.T) {
	withLevel(t, PersonalityMachine)
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf)

	ui.ThinkingStep(&stream.ThinkingEvent{Kind: stream.KindThought, Content: "pondering"})

	if buf.Len() != 0 {
		t.Errorf("expected no timeline output in machine mode, got %q", buf.String())
	}
}

func TestChatUI_ThinkingStep_ThoughtOnlyInFullMode(t *testing.T) {
	withLevel(t, PersonalityStandard)
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf)

	ui.ThinkingStep(&stream.ThinkingEvent{Kind: stream.KindThought, Content: "pondering"})

	if strings.Contains(buf.String(), "pondering") {
		t.Errorf("standard mode should collapse thoughts, got %q", buf.String())
	}
}

func TestChatUI_Answer_WithMeta(t *testing.T) {
	withLevel(t, PersonalityStandard)
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf)

	ui.Answer("Pump 4 is nominal.", &AnswerMeta{
		QueryType:   "sql",
		EnginesUsed: []string{"sql", "rag"},
		Confidence:  0.87,
		Degraded:    true,
	})

	got := buf.String()
	for _, want := range []string{"Pump 4 is nominal.", "sql,rag", "0.87", "degraded"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got %q", want, got)
		}
	}
}

func TestChatUI_StopNotice(t *testing.T) {
	withLevel(t, PersonalityStandard)
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf)

	ui.StopNotice("Generation stopped.")

	if !strings.Contains(buf.String(), "Generation stopped.") {
		t.Errorf("expected stop notice, got %q", buf.String())
	}
}

func TestChatUI_SessionEnd_Machine(t *testing.T) {
	withLevel(t, PersonalityMachine)
	var buf bytes.Buffer
	ui := NewChatUIWithWriter(&buf)

	ui.SessionEnd(SessionSummary{SessionID: "s-1", Messages: 4, Duration: 90 * time.Second})

	got := buf.String()
	if !strings.Contains(got, "session=s-1") || !strings.Contains(got, "messages=4") {
		t.Errorf("unexpected machine summary: %q", got)
	}
}

func TestParsePersonalityLevel(t *testing.T) {
	cases := map[string]PersonalityLevel{
		"full":    PersonalityFull,
		"f":       PersonalityFull,
		"std":     PersonalityStandard,
		"minimal": PersonalityMinimal,
		"q":       PersonalityMachine,
		"unknown": PersonalityStandard,
	}
	for in, want := range cases {
		if got := ParsePersonalityLevel(in); got != want {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
