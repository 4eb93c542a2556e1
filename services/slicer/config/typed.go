// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
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

// PrintConfig is the print-wide option set: printer, material and bed.
type PrintConfig struct {
	DisplayWidth        float64 `yaml:"display_width" validate:"gt=0"`
	DisplayHeight       float64 `yaml:"display_height" validate:"gt=0"`
	DisplayPixelsX      int     `yaml:"display_pixels_x" validate:"gt=0"`
	DisplayPixelsY      int     `yaml:"display_pixels_y" validate:"gt=0"`
	ExposureTime        float64 `yaml:"exposure_time" validate:"gt=0"`
	InitialExposureTime float64 `yaml:"initial_exposure_time" validate:"gt=0"`
	InitialLayerHeight  float64 `yaml:"initial_layer_height" validate:"gt=0"`
	PrinterCorrection   float64 `yaml:"printer_correction" validate:"gt=0"`
	BedSizeX            float64 `yaml:"bed_size_x" validate:"gt=0"`
	BedSizeY            float64 `yaml:"bed_size_y" validate:"gt=0"`
	MaxPrintHeight      float64 `yaml:"max_print_height" validate:"gt=0"`
	MaxExtruders        int     `yaml:"max_extruders" validate:"gte=1"`
}

// ObjectConfig is the per-object option set, resolved from the global
// bundle overlaid with the object's own.
type ObjectConfig struct {
	LayerHeight float64 `yaml:"layer_height" validate:"gt=0"`

	SupportsEnable                bool    `yaml:"supports_enable"`
	SupportHeadFrontDiameter      float64 `yaml:"support_head_front_diameter" validate:"gt=0"`
	SupportHeadPenetration        float64 `yaml:"support_head_penetration" validate:"gte=0"`
	SupportHeadWidth              float64 `yaml:"support_head_width" validate:"gte=0"`
	SupportPillarDiameter         float64 `yaml:"support_pillar_diameter" validate:"gt=0"`
	SupportHeadlessPillarDiameter float64 `yaml:"support_headless_pillar_diameter" validate:"gt=0"`
	SupportPillarWideningFactor   float64 `yaml:"support_pillar_widening_factor" validate:"gte=0,lte=1"`
	SupportBaseDiameter           float64 `yaml:"support_base_diameter" validate:"gt=0"`
	SupportBaseHeight             float64 `yaml:"support_base_height" validate:"gte=0"`
	SupportCriticalAngle          float64 `yaml:"support_critical_angle" validate:"gte=0,lte=90"`
	SupportMaxBridgeLength        float64 `yaml:"support_max_bridge_length" validate:"gte=0"`
	SupportObjectElevation        float64 `yaml:"support_object_elevation" validate:"gte=0"`
	SupportPointsDensityRelative  int     `yaml:"support_points_density_relative" validate:"gte=0"`
	SupportPointsMinimalDistance  float64 `yaml:"support_points_minimal_distance" validate:"gt=0"`

	PadEnable           bool    `yaml:"pad_enable"`
	PadWallThickness    float64 `yaml:"pad_wall_thickness" validate:"gt=0"`
	PadWallHeight       float64 `yaml:"pad_wall_height" validate:"gte=0"`
	PadMaxMergeDistance float64 `yaml:"pad_max_merge_distance" validate:"gte=0"`
	PadEdgeRadius       float64 `yaml:"pad_edge_radius" validate:"gte=0"`
}

// DefaultPrintBundle returns the print options of a stock SLA profile.
func DefaultPrintBundle() Bundle {
	return Bundle{
		"display_width":         120.96,
		"display_height":        68.04,
		"display_pixels_x":      2560,
		"display_pixels_y":      1440,
		"exposure_time":         10.0,
		"initial_exposure_time": 15.0,
		"initial_layer_height":  0.3,
		"printer_correction":    1.0,
		"bed_size_x":            120.96,
		"bed_size_y":            68.04,
		"max_print_height":      150.0,
		"max_extruders":         1,
	}
}

// DefaultObjectBundle returns the per-object options of a stock SLA profile.
func DefaultObjectBundle() Bundle {
	return Bundle{
		"layer_height": 0.05,

		"supports_enable":                  true,
		"support_head_front_diameter":      0.4,
		"support_head_penetration":         0.5,
		"support_head_width":               1.0,
		"support_pillar_diameter":          1.0,
		"support_headless_pillar_diameter": 0.8,
		"support_pillar_widening_factor":   0.5,
		"support_base_diameter":            4.0,
		"support_base_height":              1.0,
		"support_critical_angle":           45.0,
		"support_max_bridge_length":        15.0,
		"support_object_elevation":         10.0,
		"support_points_density_relative":  100,
		"support_points_minimal_distance":  1.0,

		"pad_enable":             true,
		"pad_wall_thickness":     2.0,
		"pad_wall_height":        5.0,
		"pad_max_merge_distance": 50.0,
		"pad_edge_radius":        1.0,
	}
}

// Defaults returns every known option with its default value.
func Defaults() Bundle {
	return Merge(DefaultPrintBundle(), DefaultObjectBundle())
}

// Validate checks the field constraints.
func (c PrintConfig) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the field constraints.
func (c ObjectConfig) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ResolvePrint overlays b on the defaults and decodes the print options.
func ResolvePrint(b Bundle) (PrintConfig, error) {
	var c PrintConfig
	if err := decode(PrintBundle(b), &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// ResolveObject overlays the layers on the defaults and decodes the object
// options. Typical layers are the global bundle and the object overlay.
func ResolveObject(layers ...Bundle) (ObjectConfig, error) {
	var c ObjectConfig
	if err := decode(ObjectBundle(layers...), &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// ObjectBundle layers the bundles over the object defaults and drops the
// print-level keys. Everything else, including keys this engine does not
// know, counts as an object option, so diffing two of these yields the
// object options that changed.
func ObjectBundle(layers ...Bundle) Bundle {
	merged := Merge(append([]Bundle{DefaultObjectBundle()}, layers...)...)
	for k := range DefaultPrintBundle() {
		delete(merged, k)
	}
	return merged
}

// PrintBundle is the print-level subset of b over the print defaults.
func PrintBundle(b Bundle) Bundle {
	defaults := DefaultPrintBundle()
	out := defaults.Clone()
	for k, v := range b {
		if defaults.Has(k) {
			out[k] = v
		}
	}
	return out
}

// IsPrintKey reports whether key is a print-level option.
func IsPrintKey(key string) bool {
	return DefaultPrintBundle().Has(key)
}

// decode converts a bundle into a tagged struct through a YAML node, which
// applies the usual scalar conversions (int to float, and so on).
func decode(b Bundle, out any) error {
	var node yaml.Node
	if err := node.Encode(map[string]any(b)); err != nil {
		return fmt.Errorf("%w: encode: %v", ErrInvalidConfig, err)
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	return nil
}
