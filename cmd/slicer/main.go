// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command slicer runs the SLA processing pipeline on scene files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSlice/pkg/logging"
	"github.com/AleutianAI/AleutianSlice/pkg/telemetry"
	"github.com/AleutianAI/AleutianSlice/pkg/ux"
)

const (
	serviceName = "aleutian-slicer"
	tracerName  = "aleutian.slicer.cli"
)

// app carries the state every subcommand shares, set up by the root
// command's pre-run hook.
type app struct {
	out    io.Writer
	errOut io.Writer

	logLevel       string
	logFormat      string
	logDir         string
	output         string
	traceExporter  string
	metricExporter string
	otlpEndpoint   string

	logger   *logging.Logger
	printer  *ux.Printer
	shutdown func(context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	if terr := a.teardown(ctx); terr != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", terr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree writing to out and errOut. The
// caller runs app.teardown once the command returns.
func newRootCmd(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, errOut: errOut}
	defaults := telemetry.DefaultConfig()

	root := &cobra.Command{
		Use:   "slicer",
		Short: "Slice SLA scenes: supports, pad and printer layers",
		Long: `slicer builds support trees and printer layers for the objects in a
scene file. Use "slice" for a one-shot run and "watch" to reprocess on
every edit.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&a.logFormat, "log-format", string(logging.FormatAuto), "log format: auto, text, json")
	f.StringVar(&a.logDir, "log-dir", "", "also write JSON logs to this directory")
	f.StringVarP(&a.output, "output", "o", "", "output style: full, minimal, machine (default: full on a terminal, machine otherwise)")
	f.StringVar(&a.traceExporter, "trace-exporter", defaults.TraceExporter, "trace exporter: otlp, stdout, none")
	f.StringVar(&a.metricExporter, "metric-exporter", defaults.MetricExporter, "metric exporter: prometheus, stdout, none")
	f.StringVar(&a.otlpEndpoint, "otlp-endpoint", defaults.OTLPEndpoint, "OTLP gRPC endpoint for traces")

	root.AddCommand(
		newSliceCmd(a),
		newWatchCmd(a),
		newInspectCmd(a),
		newVersionCmd(a),
	)
	return root, a
}

// setup builds the logger, printer and telemetry providers.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir,
		Service: "slicer",
		Format:  logging.Format(a.logFormat),
		Output:  a.errOut,
	})

	mode := ux.ParseMode(a.output)
	if a.output == "" {
		mode = ux.ModeMachine
		if f, ok := a.out.(*os.File); ok && logging.IsTerminal(f) {
			mode = ux.ModeFull
		}
	}
	a.printer = ux.NewPrinter(a.out, a.errOut, mode)

	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.TraceExporter = a.traceExporter
	cfg.MetricExporter = a.metricExporter
	cfg.OTLPEndpoint = a.otlpEndpoint
	shutdown, err := telemetry.Init(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown
	a.logger.Debug("command starting", "command", cmd.Name(), "trace_exporter", cfg.TraceExporter)
	return nil
}

// teardown flushes telemetry and closes the log file. Safe to call when
// setup never ran.
func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.WithoutCancel(ctx)))
		a.shutdown = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}
