// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides styled terminal output for the CompliancePulse CLI.
//
// # Description
//
// A Printer writes either styled output (lipgloss, for terminals) or plain
// "LEVEL: text" lines for pipes and scripts. The dashboard has its own styles;
// this package covers one-shot commands such as `rules explain` and `init`.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette shared by CLI output.
var (
	ColorAccent  = lipgloss.Color("#2CD7C7")
	ColorPrimary = lipgloss.Color("#20B9B4")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSlate   = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Label:   lipgloss.NewStyle().Foreground(ColorPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
}

// Icons used in styled mode.
const (
	IconSuccess = "✓"
	IconWarning = "⚠"
	IconError   = "✗"
	IconBullet  = "•"
)

// Printer writes CLI output.
//
// # Thread Safety
//
// Not safe for concurrent use; commands print from one goroutine.
type Printer struct {
	out   io.Writer
	plain bool
}

// NewPrinter creates a printer. Plain disables styling and icons.
func NewPrinter(out io.Writer, plain bool) *Printer {
	return &Printer{out: out, plain: plain}
}

// Stdout returns a printer for os.Stdout that is plain when stdout is not a
// terminal.
func Stdout() *Printer {
	fd := os.Stdout.Fd()
	return NewPrinter(os.Stdout, !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd))
}

// Plain reports whether styling is disabled.
func (p *Printer) Plain() bool {
	return p.plain
}

// Title prints a heading. Plain mode prints it unstyled.
func (p *Printer) Title(text string) {
	if p.plain {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintln(p.out, Styles.Title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	p.status("OK", IconSuccess, Styles.Success, text)
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	p.status("WARN", IconWarning, Styles.Warning, text)
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	p.status("ERROR", IconError, Styles.Error, text)
}

func (p *Printer) status(level, icon string, style lipgloss.Style, text string) {
	if p.plain {
		fmt.Fprintf(p.out, "%s: %s\n", level, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", style.Render(icon), style.Render(text))
}

// Bullet prints an indented list item.
func (p *Printer) Bullet(text string) {
	if p.plain {
		fmt.Fprintf(p.out, "  - %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "  %s %s\n", Styles.Muted.Render(IconBullet), text)
}

// KeyValues prints aligned "key  value" rows in the given order.
func (p *Printer) KeyValues(rows [][2]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	for _, r := range rows {
		key := r[0] + strings.Repeat(" ", width-len(r[0]))
		if p.plain {
			fmt.Fprintf(p.out, "%s  %s\n", key, r[1])
			continue
		}
		fmt.Fprintf(p.out, "%s  %s\n", Styles.Label.Render(key), r[1])
	}
}

// Box prints a titled block. Plain mode prints "title: content".
func (p *Printer) Box(title, content string) {
	if p.plain {
		fmt.Fprintf(p.out, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.out, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}
