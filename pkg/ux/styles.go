// Copyright (C) 2025 PlantOps AI (dev@plantops.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling, personality levels, and the
// chat surface for the opschat CLI.
package ux

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette. Amber primary with steel accents.
var (
	ColorAmber     = lipgloss.Color("#FFB454")
	ColorAmberDim  = lipgloss.Color("#B37E3B")
	ColorSteel     = lipgloss.Color("#8CA0B3")
	ColorSteelDim  = lipgloss.Color("#5C6B78")
	ColorGreen     = lipgloss.Color("#7FD962")
	ColorRed       = lipgloss.Color("#F07178")
	ColorYellow    = lipgloss.Color("#E6B450")
	ColorWhite     = lipgloss.Color("#E6E1CF")
	ColorGrayMuted = lipgloss.Color("#626A73")
)

// Styles holds the lipgloss styles used across the CLI.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Prompt    lipgloss.Style
	Answer    lipgloss.Style
	Thinking  lipgloss.Style
	Tool      lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorAmber),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorSteel),
	Prompt:    lipgloss.NewStyle().Bold(true).Foreground(ColorAmber),
	Answer:    lipgloss.NewStyle().Foreground(ColorWhite),
	Thinking:  lipgloss.NewStyle().Foreground(ColorSteelDim).Italic(true),
	Tool:      lipgloss.NewStyle().Foreground(ColorSteel),
	Success:   lipgloss.NewStyle().Foreground(ColorGreen),
	Warning:   lipgloss.NewStyle().Foreground(ColorYellow),
	Error:     lipgloss.NewStyle().Foreground(ColorRed).Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorGrayMuted),
	Highlight: lipgloss.NewStyle().Bold(true).Foreground(ColorWhite),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAmberDim).
		Padding(0, 1),
}

// Icon is a semantic marker rendered according to the personality level.
type Icon string

const (
	IconPrompt   Icon = "❯"
	IconThinking Icon = "·"
	IconRouter   Icon = "⇢"
	IconMemory   Icon = "≡"
	IconTool     Icon = "⚙"
	IconFallback Icon = "↯"
	IconAnswer   Icon = "▸"
	IconSuccess  Icon = "✓"
	IconWarning  Icon = "!"
	IconError    Icon = "✗"
	IconStopped  Icon = "■"
)

// Render returns the icon as a string, or an ASCII fallback for machine
// output.
func (i Icon) Render() string {
	if GetPersonalityLevel() == PersonalityMachine {
		switch i {
		case IconSuccess:
			return "[ok]"
		case IconWarning:
			return "[warn]"
		case IconError:
			return "[error]"
		case IconStopped:
			return "[stopped]"
		default:
			return "*"
		}
	}
	return string(i)
}

// Colorize applies style to s when colors are enabled, otherwise returns s
// unchanged.
func Colorize(style lipgloss.Style, s string) string {
	if !ShouldShowColors() {
		return s
	}
	return style.Render(s)
}

// Labeled renders an icon-prefixed line.
func Labeled(icon Icon, style lipgloss.Style, format string, args ...any) string {
	text := fmt.Sprintf(format, args...)
	if !ShouldShowColors() {
		return icon.Render() + " " + text
	}
	return style.Render(icon.Render()+" ") + text
}
