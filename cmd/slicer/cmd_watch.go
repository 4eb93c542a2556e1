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
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSlice/services/slicer/background"
	"github.com/AleutianAI/AleutianSlice/services/slicer/server"
	"github.com/AleutianAI/AleutianSlice/services/slicer/sla"
)

type watchOptions struct {
	sets     []string
	listen   string
	debounce time.Duration
}

func newWatchCmd(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch SCENE",
		Short: "Reprocess a scene whenever it or its profile changes",
		Long: `watch keeps a background processor running on the scene. Every save of
the scene file or its profile hands a fresh snapshot to the processor,
which cancels the round in progress and reprocesses only what changed.`,
		Example: `  slicer watch scene.yaml
  slicer watch scene.yaml --listen 127.0.0.1:8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "override an option, key=value (repeatable)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "serve /status, /events, /metrics and /healthz on this address")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 200*time.Millisecond, "wait this long after the last file event before reloading")
	return cmd
}

// eventPrinter turns processor events into log lines and summaries. It
// runs on processor and step goroutines.
type eventPrinter struct {
	a      *app
	logger *slog.Logger
	proc   func() *sla.Print
	srv    *server.Server

	mu      sync.Mutex
	started time.Time
}

func (ep *eventPrinter) handle(e background.Event) {
	if ep.srv != nil {
		ep.srv.Publish(e)
	}
	switch e.Kind {
	case background.EventStatus:
		ep.logger.Debug("progress", "round", e.Round, "percent", e.Percent, "message", e.Message)
		return
	case background.EventApplied:
		ep.logger.Info("snapshot applied", "round", e.Round, "apply", e.Apply.String())
		ep.mu.Lock()
		ep.started = e.Time
		ep.mu.Unlock()
		return
	case background.EventCanceled:
		ep.logger.Info("round canceled", "round", e.Round, "error", e.Err)
		return
	}

	ep.mu.Lock()
	defer ep.mu.Unlock()
	switch e.Kind {
	case background.EventFinished:
		ep.a.printer.Report(buildReport(ep.proc(), e.Time.Sub(ep.started)))
	case background.EventFailed:
		ep.a.printer.Error(fmt.Sprintf("round %s failed: %v", e.Round, e.Err))
	}
}

func (ep *eventPrinter) warn(msg string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.a.printer.Warning(msg)
}

func (a *app) runWatch(ctx context.Context, path string, opts watchOptions) error {
	logger := a.logger.Slog()
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	var proc *background.Processor
	ep := &eventPrinter{a: a, logger: logger, proc: func() *sla.Print { return proc.Print() }}
	proc = background.New(background.DefaultConfig(),
		[]sla.Option{sla.WithLogger(logger)},
		background.WithLogger(logger),
		background.WithEventHandler(ep.handle),
	)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var serveErr chan error
	if opts.listen != "" {
		ep.srv = server.New(proc, serviceName, server.WithLogger(logger))
		serveErr = make(chan error, 1)
		go func() { serveErr <- ep.srv.Run(ctx, opts.listen) }()
	}

	if err := proc.Start(ctx); err != nil {
		return err
	}
	defer proc.Stop()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	w := &sceneWatcher{
		path:   abs,
		sets:   opts.sets,
		proc:   proc,
		logger: logger,
		fs:     fsw,
		dirs:   map[string]bool{},
		warn:   ep.warn,
	}
	if err := w.reload(); err != nil {
		return err
	}
	a.printer.Info(fmt.Sprintf("watching %s (Ctrl+C to stop)", abs))

	return w.run(ctx, opts.debounce, serveErr)
}

// sceneWatcher reloads a scene when any file it was built from changes.
// Directories are watched instead of files so editors that replace a
// file on save keep being tracked.
type sceneWatcher struct {
	path   string
	sets   []string
	proc   *background.Processor
	logger *slog.Logger
	fs     *fsnotify.Watcher
	warn   func(string)

	files map[string]bool
	dirs  map[string]bool
}

// reload loads the scene and hands it to the processor. It also
// refreshes the watched file set, which follows the scene's profile.
func (w *sceneWatcher) reload() error {
	sc, bundle, err := loadScene(w.path, w.sets)
	if err != nil {
		return err
	}
	w.files = make(map[string]bool, len(sc.Files))
	for _, f := range sc.Files {
		w.files[f] = true
		dir := filepath.Dir(f)
		if w.dirs[dir] {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	return w.proc.Apply(sc.Model, bundle)
}

// run waits for file events until ctx is done or the status server
// fails. Bursts of events are collapsed into one reload after the
// debounce interval. A reload that fails keeps the last good snapshot in
// the processor.
func (w *sceneWatcher) run(ctx context.Context, debounce time.Duration, serveErr <-chan error) error {
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			if err == nil {
				return nil
			}
			return fmt.Errorf("status server: %w", err)
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.files[filepath.Clean(ev.Name)] || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			w.logger.Debug("scene file changed", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		case <-timer.C:
			if err := w.reload(); err != nil {
				if errors.Is(err, background.ErrNotRunning) {
					return err
				}
				w.warn(fmt.Sprintf("reload failed, keeping previous scene: %v", err))
			}
		}
	}
}
