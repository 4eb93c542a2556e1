// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// StatusMsg reports pipeline progress to a ProgressModel.
type StatusMsg struct {
	Percent int
	Message string
}

// WarningMsg adds a line under the progress bar.
type WarningMsg struct {
	Text string
}

// DoneMsg ends a ProgressModel. A nil Err means success.
type DoneMsg struct {
	Err error
}

// ProgressModel is the bubbletea model behind `slicer slice --tui`.
//
// Description:
//
//	Reads messages from a channel fed by the pipeline's event handler and
//	renders a spinner, the latest step message and a progress bar. A
//	closed channel counts as success. q or ctrl+c aborts the view; the
//	caller checks Aborted and cancels the pipeline.
//
// Thread Safety: Single-threaded inside the bubbletea event loop.
type ProgressModel struct {
	title    string
	events   <-chan tea.Msg
	bar      progress.Model
	spin     spinner.Model
	percent  int
	message  string
	warnings []string
	done     bool
	aborted  bool
	err      error
}

// NewProgressModel creates a model reading from events.
func NewProgressModel(title string, events <-chan tea.Msg) ProgressModel {
	return ProgressModel{
		title:  title,
		events: events,
		bar: progress.New(
			progress.WithGradient(string(ColorTealDeep), string(ColorTealBright)),
			progress.WithWidth(48),
		),
		spin: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(Styles.Highlight),
		),
		message: "starting",
	}
}

// waitFor turns the next channel message into a tea.Msg.
func waitFor(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return DoneMsg{}
		}
		return msg
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitFor(m.events))
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-4, 80))
		return m, nil

	case StatusMsg:
		m.percent = min(max(msg.Percent, 0), 100)
		if msg.Message != "" {
			m.message = msg.Message
		}
		return m, waitFor(m.events)

	case WarningMsg:
		m.warnings = append(m.warnings, msg.Text)
		return m, waitFor(m.events)

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		if msg.Err == nil {
			m.percent = 100
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(Styles.Title.Render(m.title))
	b.WriteString("\n")

	switch {
	case m.aborted:
		fmt.Fprintf(&b, "%s %s\n", IconError.Render(), Styles.Muted.Render("aborted"))
	case m.done && m.err != nil:
		fmt.Fprintf(&b, "%s %s\n", IconError.Render(), Styles.Error.Render(m.err.Error()))
	case m.done:
		fmt.Fprintf(&b, "%s %s\n", IconSuccess.Render(), Styles.Success.Render("done"))
	default:
		fmt.Fprintf(&b, "%s %s\n", m.spin.View(), m.message)
	}
	b.WriteString(m.bar.ViewAs(float64(m.percent) / 100))
	b.WriteString("\n")
	for _, w := range m.warnings {
		fmt.Fprintf(&b, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(w))
	}
	return b.String()
}

// Percent returns the last reported progress.
func (m ProgressModel) Percent() int { return m.percent }

// Aborted reports whether the user quit the view.
func (m ProgressModel) Aborted() bool { return m.aborted }

// Err returns the error from DoneMsg.
func (m ProgressModel) Err() error { return m.err }
