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
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
)

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

// Config sizes the support tree. Lengths are in millimetres, angles in
// radians.
type Config struct {
	// HeadFrontRadius is the radius of the sphere touching the model.
	HeadFrontRadius float64 `validate:"gt=0"`

	// HeadPenetration is how far the head tip reaches into the model.
	HeadPenetration float64 `validate:"gte=0"`

	// HeadBackRadius is the radius of the sphere joining the pillar.
	HeadBackRadius float64 `validate:"gt=0"`

	// HeadWidth is the frustum length between the two head spheres.
	HeadWidth float64 `validate:"gte=0"`

	// HeadlessPillarRadius sizes cross bridges between pillars.
	HeadlessPillarRadius float64 `validate:"gt=0"`

	// PillarWideningFactor grows a pillar per bridged head, 0 to 1.
	PillarWideningFactor float64 `validate:"gte=0,lte=1"`

	// BaseRadius is the radius of a pillar base at the ground.
	BaseRadius float64 `validate:"gt=0"`

	// BaseHeight is the height of a pillar base.
	BaseHeight float64 `validate:"gte=0"`

	// Tilt bounds the head and bridge angle away from straight down.
	Tilt float64 `validate:"gte=0,lte=1.5707963267948966"`

	// MaxBridgeLength bounds bridges and clustering reach.
	MaxBridgeLength float64 `validate:"gte=0"`

	// ObjectElevation lifts the object above the ground.
	ObjectElevation float64 `validate:"gte=0"`

	// SurfaceTolerance is the largest allowed distance between a support
	// point and the model surface.
	SurfaceTolerance float64 `validate:"gt=0"`

	// Segments is the facet count of round primitives.
	Segments int `validate:"gte=3"`
}

// DefaultConfig returns the stock support sizing.
func DefaultConfig() Config {
	return Config{
		HeadFrontRadius:      0.2,
		HeadPenetration:      0.5,
		HeadBackRadius:       0.5,
		HeadWidth:            1.0,
		HeadlessPillarRadius: 0.4,
		PillarWideningFactor: 0.5,
		BaseRadius:           2.0,
		BaseHeight:           1.0,
		Tilt:                 math.Pi / 4,
		MaxBridgeLength:      15,
		ObjectElevation:      10,
		SurfaceTolerance:     0.1,
		Segments:             12,
	}
}

// ApplyDefaults fills the fields that have no meaningful zero value.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.SurfaceTolerance == 0 {
		c.SurfaceTolerance = d.SurfaceTolerance
	}
	if c.Segments == 0 {
		c.Segments = d.Segments
	}
}

// Validate checks the field constraints.
func (c Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ConfigFromObject converts the per-object options into tree sizing.
// Diameters become radii and the critical angle becomes the tilt.
func ConfigFromObject(oc config.ObjectConfig) Config {
	c := DefaultConfig()
	c.HeadFrontRadius = oc.SupportHeadFrontDiameter / 2
	c.HeadPenetration = oc.SupportHeadPenetration
	c.HeadBackRadius = oc.SupportPillarDiameter / 2
	c.HeadWidth = oc.SupportHeadWidth
	c.HeadlessPillarRadius = oc.SupportHeadlessPillarDiameter / 2
	c.PillarWideningFactor = oc.SupportPillarWideningFactor
	c.BaseRadius = oc.SupportBaseDiameter / 2
	c.BaseHeight = oc.SupportBaseHeight
	c.Tilt = oc.SupportCriticalAngle * math.Pi / 180
	c.MaxBridgeLength = oc.SupportMaxBridgeLength
	c.ObjectElevation = oc.SupportObjectElevation
	return c
}

// PadConfig sizes the base pad.
type PadConfig struct {
	// WallThickness is the pad thickness and its outward margin.
	WallThickness float64 `validate:"gt=0"`

	// WallHeight is the height of the pad rim.
	WallHeight float64 `validate:"gte=0"`

	// MaxMergeDistance bounds the gap between footprints that still share
	// one pad.
	MaxMergeDistance float64 `validate:"gte=0"`

	// EdgeRadius chamfers the pad's top edge.
	EdgeRadius float64 `validate:"gte=0"`
}

// DefaultPadConfig returns the stock pad sizing.
func DefaultPadConfig() PadConfig {
	return PadConfig{
		WallThickness:    2,
		WallHeight:       5,
		MaxMergeDistance: 50,
		EdgeRadius:       1,
	}
}

// Validate checks the field constraints.
func (c PadConfig) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// PadConfigFromObject converts the per-object pad options.
func PadConfigFromObject(oc config.ObjectConfig) PadConfig {
	return PadConfig{
		WallThickness:    oc.PadWallThickness,
		WallHeight:       oc.PadWallHeight,
		MaxMergeDistance: oc.PadMaxMergeDistance,
		EdgeRadius:       oc.PadEdgeRadius,
	}
}
