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
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"full", ModeFull},
		{"", ModeFull},
		{"bogus", ModeFull},
		{"Minimal", ModeMinimal},
		{"quiet", ModeMinimal},
		{"machine", ModeMachine},
		{" plain ", ModeMachine},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMode(tt.in))
		})
	}
}

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconBullet} {
		assert.Contains(t, icon.Render(), string(icon))
	}
}

func newTestPrinter(mode Mode) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errw bytes.Buffer
	return NewPrinter(&out, &errw, mode), &out, &errw
}

func TestPrinter_Machine(t *testing.T) {
	p, out, errw := newTestPrinter(ModeMachine)
	p.Title("ignored")
	p.Success("sliced")
	p.Info("plain")
	p.Warning("careful")
	p.Error("broken")

	assert.Equal(t, "OK: sliced\nplain\n", out.String())
	assert.Equal(t, "WARN: careful\nERROR: broken\n", errw.String())
}

func TestPrinter_Minimal(t *testing.T) {
	p, out, errw := newTestPrinter(ModeMinimal)
	p.Title("Scene")
	p.Success("sliced")
	p.Warning("careful")

	assert.Equal(t, "Scene\n✓ sliced\n⚠ careful\n", out.String())
	assert.Empty(t, errw.String())
}

func TestPrinter_Full(t *testing.T) {
	p, out, _ := newTestPrinter(ModeFull)
	p.Success("sliced")
	p.Error("broken")
	assert.Contains(t, out.String(), "sliced")
	assert.Contains(t, out.String(), "broken")
}

func sampleReport() Report {
	return Report{
		Objects: []ObjectReport{
			{Name: "cube", Instances: 2, Layers: 10, Height: 10, Supports: true, SupportPoints: 4, Pad: true},
			{Name: "pin", Instances: 1, Layers: 5, Height: 5},
		},
		Layers:   10,
		Height:   10,
		Area:     200,
		Warnings: []string{"instance of \"pin\" is not inside the print volume (partly_outside)"},
		Elapsed:  1500 * time.Millisecond,
	}
}

func TestPrinter_ReportMachine(t *testing.T) {
	p, out, errw := newTestPrinter(ModeMachine)
	p.Report(sampleReport())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "OBJECT\tcube\tinstances=2\tlayers=10\theight=10.000\tpoints=4\tsupports=true\tpad=true", lines[0])
	assert.Equal(t, "SUMMARY\tobjects=2\tlayers=10\theight=10.000\tarea=200.000\telapsed_ms=1500", lines[2])
	assert.Contains(t, errw.String(), "WARN: instance of \"pin\"")
}

func TestPrinter_ReportMinimal(t *testing.T) {
	p, out, _ := newTestPrinter(ModeMinimal)
	p.Report(sampleReport())

	s := out.String()
	assert.Contains(t, s, "cube  10 layers, 10.00 mm, 2 instance(s), supports (4 points), pad")
	assert.Contains(t, s, "pin  5 layers, 5.00 mm, 1 instance(s)\n")
	assert.Contains(t, s, "10 printer layers")
	assert.Contains(t, s, "⚠ instance of")
}

func TestPrinter_ProgressBar(t *testing.T) {
	p, _, _ := newTestPrinter(ModeMachine)
	assert.Equal(t, "40%", p.ProgressBar(40, 10))
	assert.Equal(t, "100%", p.ProgressBar(140, 10))

	p.Mode = ModeMinimal
	bar := p.ProgressBar(50, 10)
	assert.Equal(t, 5, strings.Count(bar, "█"))
	assert.Equal(t, 5, strings.Count(bar, "░"))
	assert.True(t, strings.HasSuffix(bar, " 50%"))
}

func TestProgressModel_Flow(t *testing.T) {
	events := make(chan tea.Msg, 4)
	m := NewProgressModel("Slicing", events)
	require.NotNil(t, m.Init())

	next, cmd := m.Update(StatusMsg{Percent: 45, Message: "support_tree"})
	m = next.(ProgressModel)
	assert.Equal(t, 45, m.Percent())
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "support_tree")

	next, _ = m.Update(WarningMsg{Text: "too tall"})
	m = next.(ProgressModel)
	assert.Contains(t, m.View(), "too tall")

	next, cmd = m.Update(DoneMsg{})
	m = next.(ProgressModel)
	assert.Equal(t, 100, m.Percent())
	assert.NoError(t, m.Err())
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "done")
}

func TestProgressModel_Failure(t *testing.T) {
	m := NewProgressModel("Slicing", nil)
	next, _ := m.Update(StatusMsg{Percent: 30})
	next, _ = next.Update(DoneMsg{Err: errors.New("mesh is empty")})
	m = next.(ProgressModel)
	assert.Equal(t, 30, m.Percent())
	assert.EqualError(t, m.Err(), "mesh is empty")
	assert.Contains(t, m.View(), "mesh is empty")
}

func TestProgressModel_Abort(t *testing.T) {
	m := NewProgressModel("Slicing", nil)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(ProgressModel)
	assert.True(t, m.Aborted())
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "aborted")
}

func TestWaitFor_ClosedChannel(t *testing.T) {
	events := make(chan tea.Msg)
	close(events)
	assert.Equal(t, DoneMsg{}, waitFor(events)())

	open := make(chan tea.Msg, 1)
	open <- StatusMsg{Percent: 5}
	assert.Equal(t, StatusMsg{Percent: 5}, waitFor(open)())
}
