// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders slicer results and progress in the terminal.
package ux

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes styled messages. Normal output goes to Out; warnings and
// errors in machine mode go to Err so scripts can keep stdout clean.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	Out  io.Writer
	Err  io.Writer
	Mode Mode
}

// NewPrinter creates a Printer.
func NewPrinter(out, errw io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Err: errw, Mode: mode}
}

// Title prints a styled title. Machine mode prints nothing.
func (p *Printer) Title(text string) {
	switch p.Mode {
	case ModeMachine:
	case ModeMinimal:
		fmt.Fprintln(p.Out, text)
	default:
		fmt.Fprintln(p.Out, Styles.Title.Render(text))
	}
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.Out, "OK: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// ObjectReport describes one sliced object.
type ObjectReport struct {
	Name          string
	Instances     int
	Layers        int
	Height        float64
	SupportPoints int
	Supports      bool
	Pad           bool
}

// Report summarizes a finished slicing run.
type Report struct {
	Objects  []ObjectReport
	Layers   int
	Height   float64
	Area     float64
	Warnings []string
	Elapsed  time.Duration
}

// Report prints a run summary: one line per object, then totals and
// warnings.
func (p *Printer) Report(r Report) {
	if p.Mode == ModeMachine {
		for _, o := range r.Objects {
			fmt.Fprintf(p.Out, "OBJECT\t%s\tinstances=%d\tlayers=%d\theight=%.3f\tpoints=%d\tsupports=%t\tpad=%t\n",
				o.Name, o.Instances, o.Layers, o.Height, o.SupportPoints, o.Supports, o.Pad)
		}
		fmt.Fprintf(p.Out, "SUMMARY\tobjects=%d\tlayers=%d\theight=%.3f\tarea=%.3f\telapsed_ms=%d\n",
			len(r.Objects), r.Layers, r.Height, r.Area, r.Elapsed.Milliseconds())
		for _, w := range r.Warnings {
			fmt.Fprintf(p.Err, "WARN: %s\n", w)
		}
		return
	}

	var b strings.Builder
	for _, o := range r.Objects {
		extras := featureList(o)
		fmt.Fprintf(&b, "%s %s  %d layers, %.2f mm, %d instance(s)%s\n",
			IconBullet, o.Name, o.Layers, o.Height, o.Instances, extras)
	}
	fmt.Fprintf(&b, "\n%d printer layers, %.2f mm tall, %.1f mm² exposed, %s",
		r.Layers, r.Height, r.Area, r.Elapsed.Round(time.Millisecond))

	if p.Mode == ModeMinimal {
		fmt.Fprintln(p.Out, b.String())
	} else {
		title := Styles.Title.Render("Slice complete")
		fmt.Fprintln(p.Out, Styles.Box.Render(title+"\n"+b.String()))
	}
	for _, w := range r.Warnings {
		p.Warning(w)
	}
}

func featureList(o ObjectReport) string {
	var parts []string
	if o.Supports {
		parts = append(parts, fmt.Sprintf("supports (%d points)", o.SupportPoints))
	}
	if o.Pad {
		parts = append(parts, "pad")
	}
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, ", ")
}

// ProgressBar renders a static progress bar for percent in [0, 100].
func (p *Printer) ProgressBar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	if p.Mode == ModeMachine {
		return fmt.Sprintf("%d%%", percent)
	}
	filled := percent * width / 100
	bar := Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%%", bar, percent)
}
