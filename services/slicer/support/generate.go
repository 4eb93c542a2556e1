// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package support

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"cogentcore.org/core/math32"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSlice/services/slicer/cancel"
)

var tracer = otel.Tracer("aleutian.slicer.support")

// checkInterval is how many loop iterations pass between cancellation
// polls.
const checkInterval = 64

var down = math32.Vec3(0, 0, -1)

func vec(x, y, z float64) math32.Vector3 {
	return math32.Vec3(float32(x), float32(y), float32(z))
}

func horizontalDist(a, b math32.Vector3) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// Generate builds a support tree for points on mesh.
//
// Description:
//
//	Every point is validated against the surface first. Heads are oriented
//	along the surface normal, clamped to within cfg.Tilt of straight down.
//	A head whose junction sees the model straight below gets a pillar
//	ending on the model. The rest are clustered: each cluster has one
//	pillar under its lowest junction and bridges from the other heads.
//	Neighbouring ground pillars get cross bridges and every ground pillar
//	gets a flared base.
//
// Inputs:
//   - ctx: Used for tracing and as a second cancellation source.
//   - points: Support points in the mesh frame.
//   - mesh: The model surface and ground level.
//   - cfg: Tree sizing. Validated before use.
//   - ctl: Polled between phases and every 64 iterations. May be nil.
//
// Outputs:
//   - *Tree: The finished tree. Empty, with no error, for no points.
//   - error: *PointError, ErrInvalidConfig, or a cancellation error. No
//     tree is returned alongside an error.
//
// Thread Safety: Safe for concurrent use; inputs are only read.
func Generate(ctx context.Context, points []math32.Vector3, mesh IndexedMesh, cfg Config, ctl *cancel.Controller) (*Tree, error) {
	ctx, span := tracer.Start(ctx, "support.Generate",
		trace.WithAttributes(attribute.Int("support.points", len(points))),
	)
	defer span.End()
	start := time.Now()

	tree, err := generate(ctx, points, mesh, cfg, ctl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	generationDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("support.heads", len(tree.heads)),
		attribute.Int("support.pillars", len(tree.pillars)),
		attribute.Int("support.bridges", len(tree.bridges)),
	)
	span.SetStatus(codes.Ok, "")
	slog.Debug("support tree generated",
		slog.Int("points", len(points)),
		slog.Int("heads", len(tree.heads)),
		slog.Int("pillars", len(tree.pillars)),
		slog.Int("bridges", len(tree.bridges)),
		slog.Duration("duration", time.Since(start)),
	)
	return tree, nil
}

func generate(ctx context.Context, points []math32.Vector3, im IndexedMesh, cfg Config, ctl *cancel.Controller) (*Tree, error) {
	check := func(i int) error {
		if i%checkInterval != 0 {
			return nil
		}
		if err := ctl.Check(); err != nil {
			return err
		}
		return cancel.FromContext(ctx)
	}
	if err := check(0); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tree{cfg: cfg, ground: im.GroundLevel, top: im.GroundLevel}
	if im.Mesh != nil && !im.Mesh.Empty() {
		t.top = float64(im.Mesh.BoundingBox().Max.Z)
	}
	if len(points) == 0 {
		return t, t.buildMesh(func(int) error { return nil })
	}

	hits, err := validatePoints(points, im, cfg, check)
	if err != nil {
		return nil, err
	}
	if err := check(0); err != nil {
		return nil, err
	}

	for i, hit := range hits {
		t.heads = append(t.heads, makeHead(i, points[i], im.Mesh.FaceNormal(hit), cfg))
		if err := check(i + 1); err != nil {
			return nil, err
		}
	}
	if err := check(0); err != nil {
		return nil, err
	}

	if err := t.routePillars(im, check); err != nil {
		return nil, err
	}
	if err := check(0); err != nil {
		return nil, err
	}
	if err := t.crossBridges(im, check); err != nil {
		return nil, err
	}
	if err := check(0); err != nil {
		return nil, err
	}
	if err := t.buildMesh(check); err != nil {
		return nil, err
	}

	elementsTotal.WithLabelValues("head").Add(float64(len(t.heads)))
	elementsTotal.WithLabelValues("pillar").Add(float64(len(t.pillars)))
	for _, b := range t.bridges {
		if b.Cross {
			elementsTotal.WithLabelValues("cross_bridge").Inc()
		} else {
			elementsTotal.WithLabelValues("bridge").Inc()
		}
	}
	for _, p := range t.pillars {
		if p.HasBase {
			elementsTotal.WithLabelValues("base").Inc()
		}
	}
	return t, nil
}

// validatePoints returns the face each point lies on.
func validatePoints(points []math32.Vector3, im IndexedMesh, cfg Config, check func(int) error) ([]int, error) {
	faces := make([]int, len(points))
	for i, p := range points {
		if im.Mesh == nil || im.Mesh.Empty() {
			return nil, &PointError{Index: i, Point: p, Distance: -1, Err: ErrPointOffSurface}
		}
		hit, ok := im.Mesh.ClosestPoint(p)
		if !ok || float64(hit.Distance) > cfg.SurfaceTolerance {
			return nil, &PointError{Index: i, Point: p, Distance: float64(hit.Distance), Err: ErrPointOffSurface}
		}
		faces[i] = hit.Face
		if err := check(i + 1); err != nil {
			return nil, err
		}
	}
	return faces, nil
}

// headDirection clamps the surface normal to within tilt of straight down.
func headDirection(n math32.Vector3, tilt float64) math32.Vector3 {
	polar := math.Acos(math.Max(-1, math.Min(1, float64(n.Z))))
	azimuth := math.Atan2(float64(n.Y), float64(n.X))
	polar = math.Max(polar, math.Pi-tilt)
	s, c := math.Sincos(polar)
	return vec(s*math.Cos(azimuth), s*math.Sin(azimuth), c)
}

func makeHead(id int, p, normal math32.Vector3, cfg Config) Head {
	dir := headDirection(normal, cfg.Tilt)
	length := cfg.HeadFrontRadius + cfg.HeadWidth + cfg.HeadBackRadius
	return Head{
		ID:          id,
		Tip:         p.Sub(dir.MulScalar(float32(cfg.HeadPenetration))),
		Junction:    p.Add(dir.MulScalar(float32(length))),
		Dir:         dir,
		FrontRadius: cfg.HeadFrontRadius,
		BackRadius:  cfg.HeadBackRadius,
		PillarID:    -1,
	}
}

// cluster is a set of heads sharing one ground pillar.
type cluster struct {
	anchor  int
	members []int
}

// routePillars gives every head a pillar, either onto the model or, via
// clustering, onto the ground.
func (t *Tree) routePillars(im IndexedMesh, check func(int) error) error {
	cfg := t.cfg
	var free []int
	for i, h := range t.heads {
		if err := check(i + 1); err != nil {
			return err
		}
		if float64(h.Junction.Z) <= t.ground {
			continue
		}
		hit, ok := im.Mesh.Raycast(h.Junction, down, float32(cfg.HeadBackRadius))
		if !ok {
			free = append(free, i)
			continue
		}
		t.pillars = append(t.pillars, Pillar{
			ID:      len(t.pillars),
			Top:     h.Junction,
			Bottom:  hit.Point,
			Radius:  cfg.HeadBackRadius,
			HeadIDs: []int{i},
			OnModel: true,
		})
		t.heads[i].PillarID = len(t.pillars) - 1
	}

	sort.SliceStable(free, func(a, b int) bool {
		return t.heads[free[a]].Junction.Z < t.heads[free[b]].Junction.Z
	})

	var clusters []*cluster
	for k, hi := range free {
		if err := check(k + 1); err != nil {
			return err
		}
		joined := false
		for _, c := range clusters {
			if t.canBridge(im, t.heads[hi].Junction, t.heads[c.anchor].Junction) {
				c.members = append(c.members, hi)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, &cluster{anchor: hi, members: []int{hi}})
		}
	}

	for _, c := range clusters {
		anchor := t.heads[c.anchor].Junction
		k := float64(len(c.members))
		radius := cfg.HeadBackRadius * (1 + cfg.PillarWideningFactor*(k-1)/k)
		id := len(t.pillars)
		t.pillars = append(t.pillars, Pillar{
			ID:      id,
			Top:     anchor,
			Bottom:  math32.Vec3(anchor.X, anchor.Y, float32(t.ground)),
			Radius:  radius,
			HeadIDs: c.members,
			HasBase: true,
		})
		for _, hi := range c.members {
			t.heads[hi].PillarID = id
			if hi == c.anchor {
				continue
			}
			from := t.heads[hi].Junction
			t.bridges = append(t.bridges, Bridge{
				From:   from,
				To:     bridgeEnd(from, anchor, cfg.Tilt),
				Radius: cfg.HeadBackRadius,
			})
		}
	}
	return nil
}

// bridgeEnd is where a strut from `from` descending at the tilt limit meets
// the vertical through `target`.
func bridgeEnd(from, target math32.Vector3, tilt float64) math32.Vector3 {
	d := horizontalDist(from, target)
	return vec(float64(target.X), float64(target.Y), float64(from.Z)-d/math.Tan(tilt))
}

// canBridge checks the bridge constraints from a junction into the pillar
// under anchor.
func (t *Tree) canBridge(im IndexedMesh, from, anchor math32.Vector3) bool {
	cfg := t.cfg
	if cfg.Tilt <= 0 || cfg.MaxBridgeLength <= 0 {
		return false
	}
	d := horizontalDist(from, anchor)
	if d > cfg.MaxBridgeLength {
		return false
	}
	end := bridgeEnd(from, anchor, cfg.Tilt)
	if float64(end.Z) > float64(anchor.Z) || float64(end.Z) < t.ground+cfg.BaseHeight {
		return false
	}
	if float64(end.Sub(from).Length()) > cfg.MaxBridgeLength {
		return false
	}
	return !segmentHitsMesh(im, from, end)
}

func segmentHitsMesh(im IndexedMesh, from, to math32.Vector3) bool {
	hit, ok := im.Mesh.Raycast(from, to.Sub(from), 1e-3)
	return ok && hit.Distance < 1
}

// crossBridges links each ground pillar to its nearest ground neighbour
// within reach.
func (t *Tree) crossBridges(im IndexedMesh, check func(int) error) error {
	cfg := t.cfg
	if cfg.Tilt <= 0 || cfg.MaxBridgeLength <= 0 {
		return nil
	}
	type pair struct{ a, b int }
	seen := make(map[pair]bool)

	for i, p := range t.pillars {
		if err := check(i + 1); err != nil {
			return err
		}
		if p.OnModel {
			continue
		}
		nearest, best := -1, math.Inf(1)
		for j, q := range t.pillars {
			if j == i || q.OnModel {
				continue
			}
			if d := horizontalDist(p.Top, q.Top); d < best {
				nearest, best = j, d
			}
		}
		if nearest < 0 || best > cfg.MaxBridgeLength {
			continue
		}
		key := pair{min(i, nearest), max(i, nearest)}
		if seen[key] {
			continue
		}
		seen[key] = true

		q := t.pillars[nearest]
		startZ := math.Min(float64(p.Top.Z), float64(q.Top.Z)) - cfg.HeadBackRadius
		from := vec(float64(p.Top.X), float64(p.Top.Y), startZ)
		to := bridgeEnd(from, q.Top, cfg.Tilt)
		if float64(to.Z) < t.ground+cfg.BaseHeight || float64(to.Sub(from).Length()) > cfg.MaxBridgeLength {
			continue
		}
		if segmentHitsMesh(im, from, to) {
			continue
		}
		t.bridges = append(t.bridges, Bridge{From: from, To: to, Radius: cfg.HeadlessPillarRadius, Cross: true})
	}
	return nil
}
