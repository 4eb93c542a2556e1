// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scene loads the YAML scene files the slicer CLI works on.
//
// A scene names a profile, inline option overrides and a list of objects
// built from primitive shapes:
//
//	config: profiles/resin.toml
//	options:
//	  layer_height: 0.05
//	objects:
//	  - name: bracket
//	    shape: cube
//	    size: [20, 10, 5]
//	    instances:
//	      - offset: [30, 20, 0]
//	        rotation: 90
//	    options:
//	      pad_enable: false
//	arrange:
//	  center: [60, 34]
//
// Mesh file formats are out of scope; shapes are generated in memory.
package scene

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"cogentcore.org/core/math32"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSlice/pkg/validation"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/geometry"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
)

// ErrInvalidScene wraps every structural problem in a scene file.
var ErrInvalidScene = errors.New("invalid scene")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// File is the on-disk scene document.
type File struct {
	// Config is an optional profile path relative to the scene file.
	Config string `yaml:"config"`

	// Options override the profile for the whole scene.
	Options map[string]any `yaml:"options"`

	Objects []ObjectSpec `yaml:"objects" validate:"required,min=1,dive"`

	Arrange *Arrange `yaml:"arrange"`
}

// ObjectSpec describes one object.
type ObjectSpec struct {
	Name  string `yaml:"name" validate:"required"`
	Shape string `yaml:"shape" validate:"oneof=cube cylinder sphere"`

	// Size is [x, y, z] for a cube, [radius, height] for a cylinder and
	// [radius] for a sphere.
	Size []float64 `yaml:"size" validate:"required,min=1,max=3,dive,gt=0"`

	// Segments is the facet count around round shapes. 0 means 32.
	Segments int `yaml:"segments" validate:"omitempty,gte=3,lte=256"`

	Instances []InstanceSpec `yaml:"instances" validate:"dive"`

	// Options is the per-object overlay.
	Options map[string]any `yaml:"options"`

	// SupportPoints are user anchors in the object frame.
	SupportPoints [][]float64 `yaml:"support_points" validate:"dive,len=3"`

	// LayerHeightProfile is a flat list of (z, height) pairs.
	LayerHeightProfile []float64 `yaml:"layer_height_profile"`
}

// InstanceSpec places one copy of an object.
type InstanceSpec struct {
	Offset []float64 `yaml:"offset" validate:"omitempty,min=2,max=3"`

	// Rotation is about Z, in degrees.
	Rotation float64 `yaml:"rotation"`

	// Scale is uniform. 0 means 1.
	Scale float64 `yaml:"scale" validate:"gte=0"`
}

// Arrange holds whole-scene placement helpers.
type Arrange struct {
	// Grid duplicates the single object of the scene into columns × rows.
	Grid []int `yaml:"grid" validate:"omitempty,len=2,dive,gte=1"`

	// Distance is the gap between grid cells. 0 means 5 mm.
	Distance float64 `yaml:"distance" validate:"gte=0"`

	// Center moves the instances' center to this bed point.
	Center []float64 `yaml:"center" validate:"omitempty,len=2"`
}

// Scene is a loaded scene.
type Scene struct {
	// Path is the absolute scene file path.
	Path string

	// Model holds the generated objects, every instance resting on the bed.
	Model *model.Model

	// Config is the profile with the inline options on top.
	Config config.Bundle

	// Files lists every file the scene was built from, the scene first.
	Files []string
}

// Load reads and builds a scene file.
//
// Description:
//
//	Parses the YAML document, validates it, loads the referenced profile
//	relative to the scene directory and builds the model. Objects without
//	instances get one at the origin. Every object is then dropped onto
//	the bed and the arrange helpers run last.
//
// Inputs:
//
//	path - Scene file path.
//
// Outputs:
//
//	*Scene - The loaded scene.
//	error - ErrInvalidScene for structural problems, or the read error.
func Load(path string) (*Scene, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve scene path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	sc, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	sc.Path = abs
	sc.Files = append([]string{abs}, sc.Files...)
	return sc, nil
}

// Parse builds a scene from YAML. dir resolves the profile path.
func Parse(data []byte, dir string) (*Scene, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	if err := validatorInstance().Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	names := make([]string, len(f.Objects))
	for i, o := range f.Objects {
		names[i] = o.Name
	}
	if err := validation.ValidateObjectNames(names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}

	sc := &Scene{Config: config.Bundle{}}
	if f.Config != "" {
		full, err := validation.ResolveScenePath(dir, f.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: config: %v", ErrInvalidScene, err)
		}
		profile, err := config.LoadFile(full)
		if err != nil {
			return nil, err
		}
		sc.Config = profile
		sc.Files = append(sc.Files, full)
	}
	for k, v := range f.Options {
		sc.Config.Set(k, v)
	}

	m := model.New()
	for _, spec := range f.Objects {
		if err := addObject(m, spec); err != nil {
			return nil, fmt.Errorf("%w: object %q: %v", ErrInvalidScene, spec.Name, err)
		}
	}
	m.AddDefaultInstances()
	for _, o := range m.Objects() {
		o.EnsureOnBed()
	}
	if err := arrange(m, f.Arrange); err != nil {
		return nil, fmt.Errorf("%w: arrange: %v", ErrInvalidScene, err)
	}
	sc.Model = m
	return sc, nil
}

func addObject(m *model.Model, spec ObjectSpec) error {
	mesh, err := buildShape(spec)
	if err != nil {
		return err
	}
	if len(spec.LayerHeightProfile)%2 != 0 {
		return fmt.Errorf("layer_height_profile needs (z, height) pairs, got %d values", len(spec.LayerHeightProfile))
	}

	o := m.AddObjectFromMesh(spec.Name, "", mesh)
	for k, v := range spec.Options {
		o.Config.Set(k, v)
	}
	for _, p := range spec.SupportPoints {
		o.SupportPoints = append(o.SupportPoints, math32.Vec3(float32(p[0]), float32(p[1]), float32(p[2])))
	}
	o.LayerHeightProfile = append(o.LayerHeightProfile, spec.LayerHeightProfile...)

	for _, inst := range spec.Instances {
		o.AddInstance()
		idx := o.InstancesCount() - 1
		err := o.UpdateInstanceTransformation(idx, func(t *geometry.Transformation) {
			t.SetOffset(vec3(inst.Offset))
			t.SetRotationAxis(geometry.AxisZ, float32(inst.Rotation*math.Pi/180))
			if inst.Scale > 0 {
				s := float32(inst.Scale)
				t.SetScalingFactor(math32.Vec3(s, s, s))
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func buildShape(spec ObjectSpec) (*geometry.TriangleMesh, error) {
	segs := spec.Segments
	if segs == 0 {
		segs = 32
	}
	s := spec.Size
	switch spec.Shape {
	case "cube":
		if len(s) != 3 {
			return nil, fmt.Errorf("cube size needs [x, y, z], got %d values", len(s))
		}
		return geometry.MakeCube(float32(s[0]), float32(s[1]), float32(s[2])), nil
	case "cylinder":
		if len(s) != 2 {
			return nil, fmt.Errorf("cylinder size needs [radius, height], got %d values", len(s))
		}
		return geometry.MakeCylinder(float32(s[0]), float32(s[1]), segs), nil
	default:
		if len(s) != 1 {
			return nil, fmt.Errorf("sphere size needs [radius], got %d values", len(s))
		}
		return geometry.MakeSphere(math32.Vec3(0, 0, 0), float32(s[0]), segs), nil
	}
}

func arrange(m *model.Model, a *Arrange) error {
	if a == nil {
		return nil
	}
	if len(a.Grid) == 2 {
		dist := a.Distance
		if dist == 0 {
			dist = 5
		}
		if err := m.DuplicateObjectsGrid(a.Grid[0], a.Grid[1], float32(dist)); err != nil {
			return err
		}
	}
	if len(a.Center) == 2 {
		m.CenterInstancesAroundPoint(math32.Vec2(float32(a.Center[0]), float32(a.Center[1])))
	}
	return nil
}

func vec3(v []float64) math32.Vector3 {
	var out [3]float32
	for i := 0; i < len(v) && i < 3; i++ {
		out[i] = float32(v[i])
	}
	return math32.Vec3(out[0], out[1], out[2])
}
