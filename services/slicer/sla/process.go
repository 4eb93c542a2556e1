// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sla

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"cogentcore.org/core/math32"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/layers"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
	"github.com/AleutianAI/AleutianSlice/services/slicer/support"
)

// rasterCheckInterval is how many layers Rasterize assembles between
// cancellation polls.
const rasterCheckInterval = 32

// Process runs every outstanding step.
//
// Description:
//
//	Objects are processed in parallel, bounded by GOMAXPROCS; the steps of
//	one object run in order. The print steps follow once every object is
//	done. A round is canceled by ctx, by Cancel, or by a concurrent Apply.
//	Completed steps stay done across a cancellation; the interrupted step
//	stays undone and reruns next time.
//
// Inputs:
//   - ctx: Parent context of the round.
//
// Outputs:
//   - error: nil when finished; an error satisfying cancel.IsCanceled when
//     canceled; otherwise the first *step.StepError.
//
// Thread Safety: Safe for concurrent use. Rounds do not overlap.
func (p *Print) Process(ctx context.Context) error {
	p.procMu.Lock()
	defer p.procMu.Unlock()

	ctl := p.beginRound(ctx)
	defer p.endRound(ctl)

	objects := p.Objects()
	ctx, span := tracer.Start(ctl.Context(), "sla.Print.Process",
		trace.WithAttributes(attribute.Int("slicer.objects", len(objects))),
	)
	defer span.End()
	start := time.Now()

	err := p.process(ctx, ctl, objects)
	outcome := "done"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		ctl.Status(100, "done")
	case cancel.IsCanceled(err):
		outcome = "canceled"
		span.SetStatus(codes.Error, "canceled")
	default:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	processDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	p.logger.Info("process round ended",
		slog.String("outcome", outcome),
		slog.Int("objects", len(objects)),
		slog.Duration("duration", time.Since(start)),
	)
	return err
}

func (p *Print) process(ctx context.Context, ctl *cancel.Controller, objects []*PrintObject) error {
	first := p.Config().InitialLayerHeight

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, po := range objects {
		g.Go(func() error {
			eng := &objectEngine{po: po, ctl: ctl, first: first}
			return p.objRunner.Run(gctx, po.ID().String(), po.state, eng)
		})
	}
	if err := g.Wait(); err != nil {
		// A sibling failure cancels gctx; report the round cancellation
		// only when ctl itself was canceled.
		if cancel.IsCanceled(err) {
			if cerr := ctl.Check(); cerr != nil {
				return cerr
			}
		}
		return err
	}

	return p.printRunner.Run(ctx, "print", p.state, &printEngine{p: p, ctl: ctl})
}

// -----------------------------------------------------------------------------
// Object steps
// -----------------------------------------------------------------------------

// objectEngine computes the steps of one object for one round.
type objectEngine struct {
	po    *PrintObject
	ctl   *cancel.Controller
	first float64
}

// Applicable skips the support steps when supports are off and the pad
// steps when the pad is off.
func (e *objectEngine) Applicable(s ObjectStep) bool {
	c := e.po.cfg
	switch s {
	case SupportIslands, SupportPoints, SupportTree:
		return c.SupportsEnable
	case BasePool:
		return c.PadEnable
	case SliceSupports:
		return c.SupportsEnable || c.PadEnable
	default:
		return true
	}
}

// Compute runs step s.
func (e *objectEngine) Compute(ctx context.Context, s ObjectStep) error {
	e.ctl.Status(int(s)*90/objectSteps.Len(), fmt.Sprintf("%s: %s", e.po.Name(), s))
	if err := e.ctl.Check(); err != nil {
		return err
	}

	switch s {
	case ObjectSlice:
		return e.sliceObject()
	case SupportIslands:
		return e.findIslands()
	case SupportPoints:
		return e.supportPoints(ctx)
	case SupportTree:
		return e.supportTree(ctx)
	case BasePool:
		return e.basePool(ctx)
	case SliceSupports:
		return e.sliceSupports()
	case IndexSlices:
		return e.indexSlices()
	default:
		return fmt.Errorf("unknown object step %d", int(s))
	}
}

// sliceObject places the model in the support frame, with its bottom at the
// elevation, and slices it on the print grid. Every later output is reset,
// so steps skipped under the new options leave nothing stale behind.
func (e *objectEngine) sliceObject() error {
	po := e.po
	mesh := po.object.RawMesh()
	if mesh.Empty() {
		return fmt.Errorf("%w: %q", model.ErrEmptyMesh, po.Name())
	}
	mesh.Transform(po.trafo)
	bb := mesh.BoundingBox()
	shift := po.Elevation() - float64(bb.Min.Z)
	mesh.Translate(math32.Vec3(0, 0, float32(shift)))
	top := float64(bb.Max.Z) + shift

	stack, err := layers.SliceStack(mesh, 0, top, e.first, po.cfg.LayerHeight, layerProfile(po.object.LayerHeightProfile, shift))
	if err != nil {
		return err
	}

	po.mu.Lock()
	defer po.mu.Unlock()
	po.mesh = mesh
	po.zShift = shift
	po.modelStack = stack
	po.islands = nil
	po.points = nil
	po.tree = nil
	po.supportStack = layers.Stack{}
	po.index = nil
	return nil
}

func layerProfile(flat []float64, shift float64) []layers.ProfilePoint {
	if len(flat) < 2 {
		return nil
	}
	out := make([]layers.ProfilePoint, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out = append(out, layers.ProfilePoint{Z: flat[i] + shift, Height: flat[i+1]})
	}
	return out
}

// frameMatrix maps object coordinates into the support frame.
func (e *objectEngine) frameMatrix() math32.Matrix4 {
	return geometry.MulMatrix(geometry.TranslationMatrix(math32.Vec3(0, 0, float32(e.po.zShift))), e.po.trafo)
}

// blockerBoxes returns the support blocker volumes boxed in the support
// frame.
func (e *objectEngine) blockerBoxes() []math32.Box3 {
	frame := e.frameMatrix()
	var out []math32.Box3
	for _, v := range e.po.object.Volumes() {
		if v.Type() != model.SupportBlocker {
			continue
		}
		m := geometry.MulMatrix(frame, v.Matrix())
		out = append(out, v.Mesh().TransformedBoundingBox(&m))
	}
	return out
}

func blocked(boxes []math32.Box3, p math32.Vector3) bool {
	for _, b := range boxes {
		if b.ContainsPoint(p) {
			return true
		}
	}
	return false
}

// findIslands locates unsupported regions, dropping those whose centroid
// lies inside a support blocker.
func (e *objectEngine) findIslands() error {
	po := e.po
	stack := po.ModelSlices()
	planes := layers.SlicePlanes(0, stack.Tops)
	boxes := e.blockerBoxes()

	var kept []layers.Island
	for _, isl := range layers.FindIslands(stack.Slices) {
		c := isl.Shape.Contour.Centroid()
		p := math32.Vec3(float32(layers.Unscale(c.X)), float32(layers.Unscale(c.Y)), float32(planes[isl.Layer]))
		if blocked(boxes, p) {
			continue
		}
		kept = append(kept, isl)
	}

	po.mu.Lock()
	po.islands = kept
	po.mu.Unlock()
	return nil
}

// supportPoints takes the user points, moved into the support frame, or
// samples new ones when there are none.
func (e *objectEngine) supportPoints(ctx context.Context) error {
	po := e.po
	var pts []math32.Vector3
	if len(po.object.SupportPoints) > 0 {
		frame := e.frameMatrix()
		pts = make([]math32.Vector3, len(po.object.SupportPoints))
		for i, p := range po.object.SupportPoints {
			pts[i] = geometry.TransformPoint(&frame, p)
		}
	} else {
		stack := po.ModelSlices()
		skip := math.Inf(-1)
		if po.cfg.SupportObjectElevation == 0 {
			// Resting on the ground: the bottom needs no heads.
			skip = po.Elevation() + geometry.Epsilon
		}
		pcfg := support.PointConfig{
			MinimalDistance: po.cfg.SupportPointsMinimalDistance,
			DensityRelative: po.cfg.SupportPointsDensityRelative,
			CriticalAngle:   po.cfg.SupportCriticalAngle * math.Pi / 180,
			SkipBelow:       skip,
		}
		sampled, err := support.SamplePoints(ctx, po.Mesh(), po.Islands(), layers.SlicePlanes(0, stack.Tops), pcfg, e.ctl)
		if err != nil {
			return err
		}
		boxes := e.blockerBoxes()
		for _, p := range sampled {
			if !blocked(boxes, p) {
				pts = append(pts, p)
			}
		}
	}

	po.mu.Lock()
	po.points = pts
	po.mu.Unlock()
	return nil
}

func (e *objectEngine) supportTree(ctx context.Context) error {
	po := e.po
	im := support.NewIndexedMesh(po.Mesh(), po.cfg.SupportObjectElevation)
	tree, err := support.Generate(ctx, po.SupportPoints(), im, support.ConfigFromObject(po.cfg), e.ctl)
	if err != nil {
		return err
	}
	po.mu.Lock()
	po.tree = tree
	po.mu.Unlock()
	return nil
}

// basePool adds the pad. An object resting on the pad contributes its
// bottom footprint; an elevated one only its pillar bases. The padded tree
// replaces the committed one; the tree SupportTree produced is not changed.
func (e *objectEngine) basePool(ctx context.Context) error {
	po := e.po
	tree := po.SupportTree()
	if tree == nil {
		supElev := 0.0
		if po.cfg.SupportsEnable {
			supElev = po.cfg.SupportObjectElevation
		}
		im := support.NewIndexedMesh(po.Mesh(), supElev)
		t, err := support.Generate(ctx, nil, im, support.ConfigFromObject(po.cfg), e.ctl)
		if err != nil {
			return err
		}
		tree = t
	}

	var baseplate []layers.ExPolygon
	if !po.cfg.SupportsEnable || po.cfg.SupportObjectElevation == 0 {
		for _, sl := range po.ModelSlices().Slices {
			if len(sl) > 0 {
				baseplate = sl
				break
			}
		}
	}

	padded, err := tree.WithPad(baseplate, support.PadConfigFromObject(po.cfg))
	if err != nil {
		return err
	}
	po.mu.Lock()
	po.tree = padded
	po.mu.Unlock()
	return nil
}

// sliceSupports cuts the tree and the pad on the object's grid and merges
// the pad into the support layers.
func (e *objectEngine) sliceSupports() error {
	po := e.po
	tree := po.SupportTree()
	if tree == nil {
		return nil
	}
	first := e.first
	stack, err := tree.Slice(po.cfg.LayerHeight, first)
	if err != nil {
		return err
	}
	if tree.HasPad() {
		pad, err := tree.SlicePad(po.cfg.LayerHeight, first)
		if err != nil {
			return err
		}
		for i := range min(len(stack.Slices), len(pad.Slices)) {
			stack.Slices[i] = append(stack.Slices[i], pad.Slices[i]...)
		}
	}

	po.mu.Lock()
	po.supportStack = stack
	po.mu.Unlock()
	return nil
}

func (e *objectEngine) indexSlices() error {
	po := e.po
	idx := layers.BuildIndex(po.ModelSlices().Levels(), po.SupportSlices().Levels())
	po.mu.Lock()
	po.index = idx
	po.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------
// Print steps
// -----------------------------------------------------------------------------

type printEngine struct {
	p   *Print
	ctl *cancel.Controller
}

func (e *printEngine) Applicable(PrintStep) bool { return true }

func (e *printEngine) Compute(ctx context.Context, s PrintStep) error {
	if err := e.ctl.Check(); err != nil {
		return err
	}
	switch s {
	case Validate:
		e.ctl.Status(90, "validating")
		e.p.validate()
		return nil
	case Rasterize:
		e.ctl.Status(95, "assembling layers")
		return e.p.rasterize(ctx, e.ctl)
	default:
		return fmt.Errorf("unknown print step %d", int(s))
	}
}

// PrintVolume returns the printable box for c: the bed from the origin up
// to the maximum print height, padded by geometry.Epsilon.
func PrintVolume(c config.PrintConfig) math32.Box3 {
	return math32.Box3{
		Min: math32.Vec3(-geometry.Epsilon, -geometry.Epsilon, -geometry.Epsilon),
		Max: math32.Vec3(float32(c.BedSizeX)+geometry.Epsilon, float32(c.BedSizeY)+geometry.Epsilon, float32(c.MaxPrintHeight)+geometry.Epsilon),
	}
}

// validate classifies every instance against the print volume and records
// the findings as warnings.
func (p *Print) validate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.model.UpdatePrintVolumeState(PrintVolume(p.printCfg))

	var warnings []Warning
	for _, po := range p.objects {
		for _, inst := range po.object.Instances() {
			if st := inst.PrintVolumeState(); st != model.PrintVolumeInside {
				warnings = append(warnings, Warning{
					ObjectID:   po.ID(),
					InstanceID: inst.ID(),
					Message:    fmt.Sprintf("instance of %q is not inside the print volume (%s)", po.Name(), st),
				})
			}
		}
		if stack := po.ModelSlices(); len(stack.Tops) > 0 && stack.Tops[len(stack.Tops)-1] > p.printCfg.MaxPrintHeight {
			warnings = append(warnings, Warning{
				ObjectID: po.ID(),
				Message:  fmt.Sprintf("%q is taller than the maximum print height with its elevation", po.Name()),
			})
		}
	}
	p.warnings = warnings
	for _, w := range warnings {
		p.logger.Warn("print validation", slog.String("object", w.ObjectID.String()), slog.String("message", w.Message))
	}
}

// rasterize merges the per-object indices into printer layers and hands
// them to the rasterizer.
func (p *Print) rasterize(ctx context.Context, ctl *cancel.Controller) error {
	objects := p.Objects()
	type source struct {
		index   layers.SliceIndex
		model   layers.Stack
		support layers.Stack
		copies  []Placement
	}
	srcs := make([]source, len(objects))
	levels := make([][]layers.LevelID, len(objects))
	for i, po := range objects {
		srcs[i] = source{po.SliceIndex(), po.ModelSlices(), po.SupportSlices(), po.Instances()}
		levels[i] = srcs[i].index.Levels()
	}

	global := layers.MergeIndex(levels...)
	out := make([]PrinterLayer, 0, len(global))
	for n, rec := range global {
		if n%rasterCheckInterval == 0 {
			if err := ctl.Check(); err != nil {
				return err
			}
		}
		layer := PrinterLayer{Level: rec.Level, Height: rec.Level.Height()}
		for i, pos := range rec.Refs {
			if pos == layers.None {
				continue
			}
			src := srcs[i]
			r := src.index[pos]
			ref := LayerRef{ObjectID: objects[i].ID(), Copies: src.copies}
			if r.ModelIdx != layers.None {
				ref.ModelSlices = src.model.Slices[r.ModelIdx]
			}
			if r.SupportIdx != layers.None {
				ref.SupportSlices = src.support.Slices[r.SupportIdx]
			}
			if len(ref.ModelSlices) == 0 && len(ref.SupportSlices) == 0 {
				continue
			}
			layer.Refs = append(layer.Refs, ref)
		}
		out = append(out, layer)
	}

	p.mu.Lock()
	p.printerInput = out
	cfg := p.printCfg
	p.mu.Unlock()
	printerLayers.Set(float64(len(out)))

	if p.rasterizer == nil {
		return nil
	}
	return p.rasterizer.Rasterize(ctx, cfg, out)
}
