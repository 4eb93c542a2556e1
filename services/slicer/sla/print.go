// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sla is the SLA print pipeline: it reconciles edited model
// snapshots against retained per-object state, runs the outstanding steps
// and assembles the per-layer printer input.
package sla

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
	"github.com/AleutianAI/AleutianSlice/services/slicer/step"
)

var tracer = otel.Tracer("aleutian.slicer.sla")

// ApplyStatus summarises what Apply did to the pipeline state.
type ApplyStatus int

const (
	// ApplyUnchanged means the snapshot matched the retained one.
	ApplyUnchanged ApplyStatus = iota

	// ApplyChanged means inputs changed but no completed step was lost.
	ApplyChanged

	// ApplyInvalidated means at least one completed step was invalidated.
	ApplyInvalidated
)

// String returns the status name.
func (s ApplyStatus) String() string {
	switch s {
	case ApplyUnchanged:
		return "unchanged"
	case ApplyChanged:
		return "changed"
	case ApplyInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Warning is a non-fatal problem found by the Validate step.
type Warning struct {
	ObjectID   identity.ID
	InstanceID identity.ID
	Message    string
}

// Option configures a Print.
type Option func(*Print)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Print) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRasterizer hands the assembled layers to r at the end of each
// Rasterize step.
func WithRasterizer(r Rasterizer) Option {
	return func(p *Print) { p.rasterizer = r }
}

// WithStatus receives progress reports from Process rounds.
func WithStatus(fn cancel.StatusFunc) Option {
	return func(p *Print) { p.status = fn }
}

// Print is the retained pipeline state of one SLA print.
//
// Description:
//
//	Apply and Process serialize on an internal lock: Apply first cancels
//	the running round, then waits for it to release that lock, so the
//	snapshot never changes under a computation. The accessors take a read
//	lock and never compute.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Print struct {
	logger      *slog.Logger
	rasterizer  Rasterizer
	status      cancel.StatusFunc
	objRunner   *step.Runner[ObjectStep]
	printRunner *step.Runner[PrintStep]

	// procMu is held by Process for a whole round and by Apply while it
	// rewrites the inputs.
	procMu sync.Mutex

	// ctlMu guards the running round's controller and the count of Apply
	// calls waiting for procMu.
	ctlMu          sync.Mutex
	ctl            *cancel.Controller
	pendingApplies int

	mu           sync.RWMutex
	model        *model.Model
	bundle       config.Bundle
	printCfg     config.PrintConfig
	objects      []*PrintObject
	state        *step.State[PrintStep]
	printerInput []PrinterLayer
	warnings     []Warning
}

// New creates an empty print.
func New(opts ...Option) *Print {
	p := &Print{
		logger: slog.Default(),
		model:  model.New(),
		state:  step.NewState(printSteps),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.objRunner = step.NewRunner[ObjectStep](p.logger)
	p.printRunner = step.NewRunner[PrintStep](p.logger)
	p.printCfg, _ = config.ResolvePrint(nil)
	return p
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Objects returns the print objects in model order.
func (p *Print) Objects() []*PrintObject {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.objects)
}

// Object returns the print object of a model object.
func (p *Print) Object(id identity.ID) (*PrintObject, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, po := range p.objects {
		if po.ID() == id {
			return po, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
}

// Model returns the retained snapshot. Callers must not modify it.
func (p *Print) Model() *model.Model {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// Config returns the resolved print options.
func (p *Print) Config() config.PrintConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.printCfg
}

// Empty reports whether the print holds no objects.
func (p *Print) Empty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.objects) == 0
}

// IsStepDone reports whether s is done for every object. An empty print
// has nothing done.
func (p *Print) IsStepDone(s ObjectStep) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.objects) == 0 {
		return false
	}
	for _, po := range p.objects {
		if !po.state.IsDone(s) {
			return false
		}
	}
	return true
}

// IsPrintStepDone reports whether the print-wide step s is done.
func (p *Print) IsPrintStepDone(s PrintStep) bool {
	return p.state.IsDone(s)
}

// Finished reports whether every object is fully indexed.
func (p *Print) Finished() bool {
	return p.IsStepDone(IndexSlices)
}

// UpToDate reports whether no step of the print or of any object is
// outstanding. An empty print is up to date once its print steps ran.
func (p *Print) UpToDate() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, po := range p.objects {
		if !po.state.AllDone() {
			return false
		}
	}
	return p.state.AllDone()
}

// PrinterInput returns the layers assembled by the last Rasterize step.
func (p *Print) PrinterInput() []PrinterLayer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.printerInput)
}

// Warnings returns the findings of the last Validate step.
func (p *Print) Warnings() []Warning {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.warnings)
}

// -----------------------------------------------------------------------------
// Cancellation
// -----------------------------------------------------------------------------

// Cancel stops the running Process round, if any. It does not wait.
func (p *Print) Cancel(reason cancel.CancelReason) {
	p.ctlMu.Lock()
	ctl := p.ctl
	p.ctlMu.Unlock()
	if ctl != nil {
		ctl.Cancel(reason)
	}
}

// supersedeReason is what a round canceled by Apply reports.
var supersedeReason = cancel.CancelReason{Type: cancel.CancelSuperseded, Message: "new snapshot applied"}

// beginRound publishes the controller of a new round. A round starting
// while an Apply waits for procMu is canceled at once, so the Apply is
// never stuck behind a whole round. Callers hold procMu.
func (p *Print) beginRound(ctx context.Context) *cancel.Controller {
	ctl := cancel.NewController(ctx, cancel.WithStatus(p.status))
	p.ctlMu.Lock()
	p.ctl = ctl
	pending := p.pendingApplies
	p.ctlMu.Unlock()
	if pending > 0 {
		ctl.Cancel(supersedeReason)
	}
	return ctl
}

// endRound retracts the controller published by beginRound.
func (p *Print) endRound(ctl *cancel.Controller) {
	p.ctlMu.Lock()
	p.ctl = nil
	p.ctlMu.Unlock()
	ctl.Release()
}

// supersede cancels the running round and registers the caller as waiting
// for procMu. The returned func unregisters it once procMu is held.
func (p *Print) supersede() (acquired func()) {
	p.ctlMu.Lock()
	p.pendingApplies++
	ctl := p.ctl
	p.ctlMu.Unlock()
	if ctl != nil {
		ctl.Cancel(supersedeReason)
	}
	return func() {
		p.ctlMu.Lock()
		p.pendingApplies--
		p.ctlMu.Unlock()
	}
}

// -----------------------------------------------------------------------------
// Apply
// -----------------------------------------------------------------------------

// Apply reconciles the pipeline with a model snapshot and option bundle.
//
// Description:
//
//	A running Process round is canceled and awaited first. The bundle is
//	validated before anything changes. Changed print options, the object
//	list and every kept object's options, trafo, volumes, support points
//	and placements are then compared against the retained snapshot, and
//	only the affected steps are invalidated. A clone of m keeping its IDs
//	is retained, so later edits to m cannot reach the pipeline.
//
// Inputs:
//   - m: The edited model. Not retained.
//   - bundle: The global option bundle. Not retained.
//
// Outputs:
//   - ApplyStatus: What happened to the retained state.
//   - error: ErrNilModel, or a *ValidationError for a bad bundle.
//
// Thread Safety: Safe for concurrent use. Blocks while a round unwinds.
func (p *Print) Apply(m *model.Model, bundle config.Bundle) (ApplyStatus, error) {
	if m == nil {
		applyTotal.WithLabelValues("error").Inc()
		return ApplyUnchanged, ErrNilModel
	}

	_, span := tracer.Start(context.Background(), "sla.Print.Apply",
		trace.WithAttributes(attribute.Int("slicer.objects", m.ObjectsCount())),
	)
	defer span.End()

	acquired := p.supersede()
	p.procMu.Lock()
	acquired()
	defer p.procMu.Unlock()

	printCfg, err := config.ResolvePrint(bundle)
	if err != nil {
		return p.applyFailed(span, &ValidationError{Scope: "print", Err: err})
	}
	snap := m.CloneWithIdentity()
	objs := snap.Objects()
	objCfgs := make([]config.ObjectConfig, len(objs))
	for i, o := range objs {
		c, err := config.ResolveObject(bundle, o.Config)
		if err != nil {
			return p.applyFailed(span, &ValidationError{Scope: fmt.Sprintf("object %q", o.Name), Err: err})
		}
		objCfgs[i] = c
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	a := applier{p: p}
	a.printOptions(config.Diff(config.PrintBundle(p.bundle), config.PrintBundle(bundle)))
	a.reconcile(objs, bundle, objCfgs)

	p.model = snap
	p.bundle = bundle.Clone()
	p.printCfg = printCfg
	printObjects.Set(float64(len(p.objects)))

	status := a.status()
	applyTotal.WithLabelValues(status.String()).Inc()
	span.SetAttributes(attribute.String("slicer.apply_status", status.String()))
	span.SetStatus(codes.Ok, "")
	p.logger.Debug("snapshot applied",
		slog.String("status", status.String()),
		slog.Int("objects", len(p.objects)),
	)
	return status, nil
}

func (p *Print) applyFailed(span trace.Span, err error) (ApplyStatus, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	applyTotal.WithLabelValues("error").Inc()
	p.logger.Warn("snapshot rejected", slog.String("error", err.Error()))
	return ApplyUnchanged, err
}

// applier accumulates the outcome of one Apply. The print write lock is
// held for its whole life.
type applier struct {
	p           *Print
	changed     bool
	invalidated bool
}

func (a *applier) status() ApplyStatus {
	switch {
	case a.invalidated:
		return ApplyInvalidated
	case a.changed:
		return ApplyChanged
	default:
		return ApplyUnchanged
	}
}

func (a *applier) note(invalidated bool) {
	a.changed = true
	if invalidated {
		a.invalidated = true
	}
}

func (a *applier) printOptions(keys []string) {
	if len(keys) == 0 {
		return
	}
	a.changed = true
	for _, key := range keys {
		switch printRule(key) {
		case printRasterize:
			a.note(a.p.state.Invalidate(Rasterize))
		case printValidate:
			a.note(a.p.state.Invalidate(Validate))
		case printObjectSlice:
			for _, po := range a.p.objects {
				a.note(po.state.Invalidate(ObjectSlice))
			}
		case printEverything:
			a.note(a.p.state.InvalidateAll())
			for _, po := range a.p.objects {
				a.note(po.state.InvalidateAll())
			}
		}
	}
}

// reconcile rebuilds the object list against the snapshot objects.
func (a *applier) reconcile(objs []*model.Object, bundle config.Bundle, cfgs []config.ObjectConfig) {
	old := a.p.objects
	sameIDs := len(old) == len(objs)
	extended := len(objs) > len(old)
	for i, po := range old {
		if i >= len(objs) || objs[i].ID() != po.ID() {
			sameIDs, extended = false, false
			break
		}
	}

	next := make([]*PrintObject, len(objs))
	switch {
	case sameIDs:
		copy(next, old)
	case extended:
		copy(next, old)
		a.note(a.p.state.Invalidate(Validate))
	default:
		byID := make(map[identity.ID]*PrintObject, len(old))
		for _, po := range old {
			byID[po.ID()] = po
		}
		for i, o := range objs {
			next[i] = byID[o.ID()]
		}
		a.note(a.p.state.Invalidate(Validate))
	}

	for i, o := range objs {
		ob := config.ObjectBundle(bundle, o.Config)
		po := next[i]
		if po == nil {
			next[i] = a.p.newObject(o, ob, cfgs[i])
			a.changed = true
			continue
		}
		a.object(po, o, ob, cfgs[i])
	}
	a.p.objects = next
}

// object routes the differences of one kept object and adopts the new
// snapshot object.
func (a *applier) object(po *PrintObject, o *model.Object, ob config.Bundle, cfg config.ObjectConfig) {
	st := po.state
	for _, key := range config.Diff(po.bundle, ob) {
		a.changed = true
		if s, ok := objectRule(key); ok {
			a.note(st.Invalidate(s))
		} else {
			a.note(st.InvalidateAll())
		}
	}

	trafo := objectTrafo(o)
	if !geometry.MatrixNear(po.trafo, trafo) || modelPartsChanged(po.object, o) {
		a.note(st.InvalidateAll())
	}
	if !slices.Equal(po.object.LayerHeightProfile, o.LayerHeightProfile) {
		a.note(st.Invalidate(ObjectSlice))
	}
	if supportVolumesChanged(po.object, o) {
		a.note(st.Invalidate(SupportIslands))
	}
	if !slices.Equal(po.object.SupportPoints, o.SupportPoints) {
		a.note(st.Invalidate(SupportPoints))
	}
	placements := objectPlacements(o)
	if !slices.Equal(po.placements, placements) {
		a.note(a.p.state.Invalidate(Rasterize))
	}

	po.object = o
	po.bundle = ob
	po.cfg = cfg
	po.trafo = trafo
	po.placements = placements
}

func (p *Print) newObject(o *model.Object, ob config.Bundle, cfg config.ObjectConfig) *PrintObject {
	po := newPrintObject(o, ob, cfg)
	po.state.OnInvalidate(func([]ObjectStep) {
		p.state.Invalidate(Rasterize)
	})
	return po
}

