// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSlice/pkg/telemetry"
	"github.com/AleutianAI/AleutianSlice/pkg/ux"
	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
	"github.com/AleutianAI/AleutianSlice/services/slicer/sla"
)

type sliceOptions struct {
	sets      []string
	layersOut string
	tui       bool
	timeout   time.Duration
}

func newSliceCmd(a *app) *cobra.Command {
	var opts sliceOptions
	cmd := &cobra.Command{
		Use:   "slice SCENE",
		Short: "Process a scene once and print a summary",
		Example: `  slicer slice scene.yaml
  slicer slice scene.yaml --set layer_height=0.025 --layers-out layers.jsonl
  slicer slice scene.yaml --tui`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSlice(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "override an option, key=value (repeatable)")
	cmd.Flags().StringVar(&opts.layersOut, "layers-out", "", "write one JSON record per printer layer to this file")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show an interactive progress view")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort processing after this long (0 = no limit)")
	return cmd
}

func (a *app) runSlice(ctx context.Context, path string, opts sliceOptions) (err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "cli.slice")
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetSpanOK(span)
		}
		span.End()
	}()
	logger := telemetry.LoggerWithTrace(ctx, a.logger.Slog())

	sc, bundle, err := loadScene(path, opts.sets)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("slicer.objects", sc.Model.ObjectsCount()))

	if opts.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, opts.timeout)
		defer cancelTimeout()
	}

	var events chan tea.Msg
	printOpts := []sla.Option{sla.WithLogger(logger)}
	if opts.layersOut != "" {
		printOpts = append(printOpts, sla.WithRasterizer(layerWriter(opts.layersOut)))
	}
	if opts.tui {
		events = make(chan tea.Msg, 64)
		printOpts = append(printOpts, sla.WithStatus(func(s cancel.Status) {
			select {
			case events <- ux.StatusMsg{Percent: s.Percent, Message: s.Message}:
			default:
			}
		}))
	} else {
		printOpts = append(printOpts, sla.WithStatus(func(s cancel.Status) {
			logger.Debug("progress", "percent", s.Percent, "message", s.Message)
		}))
	}

	start := time.Now()
	p := sla.New(printOpts...)
	status, err := p.Apply(sc.Model, bundle)
	if err != nil {
		return err
	}
	logger.Info("scene applied", "scene", sc.Path, "objects", sc.Model.ObjectsCount(), "apply", status.String())

	if opts.tui {
		err = a.processWithProgress(ctx, p, sc.Path, events)
	} else {
		err = p.Process(ctx)
	}
	if err != nil {
		return fmt.Errorf("process %s: %w", path, err)
	}

	a.printer.Report(buildReport(p, time.Since(start)))
	if opts.layersOut != "" {
		a.printer.Success(fmt.Sprintf("wrote %d layers to %s", len(p.PrinterInput()), opts.layersOut))
	}
	return nil
}

// processWithProgress runs Process behind the bubbletea progress view.
// Quitting the view cancels the round.
func (a *app) processWithProgress(ctx context.Context, p *sla.Print, title string, events chan tea.Msg) error {
	result := make(chan error, 1)
	viewDone := make(chan struct{})
	go func() {
		err := p.Process(ctx)
		result <- err
		select {
		case events <- ux.DoneMsg{Err: err}:
		case <-viewDone:
		}
	}()

	prog := tea.NewProgram(ux.NewProgressModel("Slicing "+title, events),
		tea.WithContext(ctx),
		tea.WithOutput(a.out),
	)
	final, runErr := prog.Run()
	close(viewDone)
	if m, ok := final.(ux.ProgressModel); ok && m.Aborted() {
		p.Cancel(cancel.CancelReason{Type: cancel.CancelUser, Message: "progress view closed"})
	}
	err := <-result
	if err == nil && runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("progress view: %w", runErr)
	}
	return err
}
