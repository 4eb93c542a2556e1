// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scene

import (
	"os"
	"path/filepath"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
)

const basicScene = `
options:
  layer_height: 0.1
  supports_enable: false
objects:
  - name: block
    shape: cube
    size: [10, 20, 5]
    instances:
      - offset: [30, 40, 7]
      - offset: [60, 40]
        rotation: 90
        scale: 2
    options:
      pad_enable: false
    support_points:
      - [5, 5, 0]
    layer_height_profile: [0, 0.05, 2, 0.1]
  - name: pin
    shape: cylinder
    size: [2, 8]
    segments: 12
  - name: ball
    shape: sphere
    size: [3]
`

func TestParse_Basic(t *testing.T) {
	sc, err := Parse([]byte(basicScene), t.TempDir())
	require.NoError(t, err)

	v, ok := sc.Config.Float("layer_height")
	require.True(t, ok)
	assert.InDelta(t, 0.1, v, 1e-9)

	objs := sc.Model.Objects()
	require.Len(t, objs, 3)

	block := objs[0]
	assert.Equal(t, "block", block.Name)
	assert.Equal(t, 2, block.InstancesCount())
	assert.Equal(t, false, block.Config["pad_enable"])
	assert.Equal(t, []math32.Vector3{math32.Vec3(5, 5, 0)}, block.SupportPoints)
	assert.Equal(t, []float64{0, 0.05, 2, 0.1}, block.LayerHeightProfile)

	inst, err := block.Instance(1)
	require.NoError(t, err)
	tr := inst.Transformation()
	assert.InDelta(t, math32.Pi/2, tr.Rotation().Z, 1e-5)
	assert.InDelta(t, 2, tr.ScalingFactor().X, 1e-6)

	// Every instance rests on the bed, the lifted one included.
	for _, o := range objs {
		for i := range o.InstancesCount() {
			z, err := o.InstanceMinZ(i)
			require.NoError(t, err)
			assert.InDelta(t, 0, z, 1e-4, "%s instance %d", o.Name, i)
		}
	}
	assert.Equal(t, 1, objs[1].InstancesCount(), "default instance added")
	assert.Empty(t, sc.Files)
}

func TestLoad_WithProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "profiles"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profiles", "resin.toml"),
		[]byte("layer_height = 0.025\nexposure_time = 8.0\n"), 0o644))
	scenePath := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(scenePath, []byte(`
config: profiles/resin.toml
options:
  exposure_time: 6.5
objects:
  - name: cube
    shape: cube
    size: [10, 10, 10]
`), 0o644))

	sc, err := Load(scenePath)
	require.NoError(t, err)
	assert.Equal(t, scenePath, sc.Path)
	assert.Equal(t, []string{scenePath, filepath.Join(dir, "profiles", "resin.toml")}, sc.Files)

	lh, _ := sc.Config.Float("layer_height")
	assert.InDelta(t, 0.025, lh, 1e-9)
	exp, _ := sc.Config.Float("exposure_time")
	assert.InDelta(t, 6.5, exp, 1e-9, "inline options override the profile")

	pc, err := config.ResolvePrint(sc.Config)
	require.NoError(t, err)
	assert.InDelta(t, 6.5, pc.ExposureTime, 1e-9)
}

func TestParse_Arrange(t *testing.T) {
	sc, err := Parse([]byte(`
objects:
  - name: cube
    shape: cube
    size: [10, 10, 10]
arrange:
  grid: [2, 3]
  distance: 2
  center: [60, 34]
`), t.TempDir())
	require.NoError(t, err)

	o := sc.Model.Objects()[0]
	assert.Equal(t, 6, o.InstancesCount())
	box := sc.Model.BoundingBox()
	c := box.Center()
	assert.InDelta(t, 60, c.X, 1e-3)
	assert.InDelta(t, 34, c.Y, 1e-3)
	assert.InDelta(t, 22, box.Size().X, 1e-3)
	assert.InDelta(t, 34, box.Size().Y, 1e-3)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		scene string
	}{
		{"not yaml", "objects: [unclosed"},
		{"no objects", "objects: []"},
		{"unknown shape", "objects:\n  - {name: a, shape: torus, size: [1]}"},
		{"cube arity", "objects:\n  - {name: a, shape: cube, size: [1, 2]}"},
		{"negative size", "objects:\n  - {name: a, shape: sphere, size: [-1]}"},
		{"bad name", "objects:\n  - {name: ../a, shape: sphere, size: [1]}"},
		{"duplicate name", "objects:\n  - {name: a, shape: sphere, size: [1]}\n  - {name: a, shape: sphere, size: [1]}"},
		{"odd profile", "objects:\n  - {name: a, shape: sphere, size: [1], layer_height_profile: [0, 0.1, 2]}"},
		{"short point", "objects:\n  - {name: a, shape: sphere, size: [1], support_points: [[1, 2]]}"},
		{"escaping config", "config: ../x.yaml\nobjects:\n  - {name: a, shape: sphere, size: [1]}"},
		{"grid with two objects", "objects:\n  - {name: a, shape: sphere, size: [1]}\n  - {name: b, shape: sphere, size: [1]}\narrange: {grid: [2, 2]}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.scene), t.TempDir())
			assert.ErrorIs(t, err, ErrInvalidScene)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("config: missing.toml\nobjects:\n  - {name: a, shape: sphere, size: [1]}\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestParse_LoadedModelIsPrintable(t *testing.T) {
	sc, err := Parse([]byte(basicScene), t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, model.ValidateLoaded(sc.Model))
}
