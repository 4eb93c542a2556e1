// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes a running background processor over HTTP.
//
// Routes:
//
//	GET /healthz  liveness and processor state
//	GET /status   current print state: objects, steps, warnings
//	GET /metrics  prometheus metrics
//	GET /events   websocket stream of processor events
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianSlice/pkg/telemetry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/background"
	"github.com/AleutianAI/AleutianSlice/services/slicer/sla"
)

// Source is the processor state the server reports on.
// *background.Processor implements it.
type Source interface {
	Print() *sla.Print
	Running() bool
}

// EventView is the JSON form of a background.Event.
type EventView struct {
	Round   string    `json:"round,omitempty"`
	Kind    string    `json:"kind"`
	Percent int       `json:"percent"`
	Message string    `json:"message,omitempty"`
	Apply   string    `json:"apply,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// NewEventView converts an event.
func NewEventView(e background.Event) EventView {
	v := EventView{
		Round:   e.Round,
		Kind:    e.Kind.String(),
		Percent: e.Percent,
		Message: e.Message,
		Time:    e.Time,
	}
	if e.Kind == background.EventApplied {
		v.Apply = e.Apply.String()
	}
	if e.Err != nil {
		v.Error = e.Err.Error()
	}
	return v
}

// ObjectStatus describes one print object.
type ObjectStatus struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	Instances int             `json:"instances"`
	Elevation float64         `json:"elevation"`
	Layers    int             `json:"layers"`
	Points    int             `json:"support_points"`
	Steps     map[string]bool `json:"steps"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Running       bool           `json:"running"`
	UpToDate      bool           `json:"up_to_date"`
	Finished      bool           `json:"finished"`
	PrinterLayers int            `json:"printer_layers"`
	Objects       []ObjectStatus `json:"objects"`
	Warnings      []string       `json:"warnings"`
	LastEvent     *EventView     `json:"last_event,omitempty"`
}

// Server serves processor state and events.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	source Source
	logger *slog.Logger
	hub    *hub
	router *gin.Engine

	mu   sync.RWMutex
	last *EventView
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server for source. serviceName labels the HTTP spans.
func New(source Source, serviceName string, opts ...Option) *Server {
	s := &Server{source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName))
	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	router.GET("/events", s.handleEvents)
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Publish records e as the latest event and streams it to every client.
// Use it as, or call it from, the processor's event handler.
func (s *Server) Publish(e background.Event) {
	v := NewEventView(e)
	msg, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("event encode failed", "error", err)
		return
	}
	s.mu.Lock()
	s.last = &v
	s.mu.Unlock()
	s.hub.broadcast(msg)
}

// Close disconnects every event client.
func (s *Server) Close() {
	s.hub.close()
}

// Run serves on addr until ctx is done, then shuts down gracefully.
//
// Outputs:
//
//	error - The listen error, or nil after a clean shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("status server listening", "addr", addr)

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": s.source.Running(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Status())
}

// Status builds the GET /status body.
func (s *Server) Status() StatusResponse {
	p := s.source.Print()
	resp := StatusResponse{
		Running:       s.source.Running(),
		UpToDate:      p.UpToDate(),
		Finished:      p.Finished(),
		PrinterLayers: len(p.PrinterInput()),
		Objects:       []ObjectStatus{},
		Warnings:      []string{},
	}
	for _, po := range p.Objects() {
		st := ObjectStatus{
			ID:        uint64(po.ID()),
			Name:      po.Name(),
			Instances: len(po.Instances()),
			Elevation: po.Elevation(),
			Layers:    len(po.ModelSlices().Slices),
			Points:    len(po.SupportPoints()),
			Steps:     make(map[string]bool),
		}
		for _, step := range sla.ObjectSteps() {
			st.Steps[step.String()] = po.IsStepDone(step)
		}
		resp.Objects = append(resp.Objects, st)
	}
	for _, w := range p.Warnings() {
		resp.Warnings = append(resp.Warnings, w.Message)
	}
	s.mu.RLock()
	if s.last != nil {
		v := *s.last
		resp.LastEvent = &v
	}
	s.mu.RUnlock()
	return resp
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("event stream upgrade failed", "error", err)
		return
	}
	s.hub.serve(conn)
}
