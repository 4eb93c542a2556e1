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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSlice/pkg/ux"
	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/model"
	"github.com/AleutianAI/AleutianSlice/services/slicer/scene"
	"github.com/AleutianAI/AleutianSlice/services/slicer/sla"
)

// parseSets turns repeated key=value flags into a bundle. Values are YAML
// scalars, so "0.05", "true" and "10" decode to their natural types.
func parseSets(sets []string) (config.Bundle, error) {
	b := config.Bundle{}
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", s)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		if v == nil {
			v = raw
		}
		b.Set(key, v)
	}
	return b, nil
}

// loadScene loads a scene, overlays the --set options and rejects models
// that cannot be printed.
func loadScene(path string, sets []string) (*scene.Scene, config.Bundle, error) {
	sc, err := scene.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := model.ValidateLoaded(sc.Model); err != nil {
		return nil, nil, fmt.Errorf("scene %s: %w", path, err)
	}
	over, err := parseSets(sets)
	if err != nil {
		return nil, nil, err
	}
	return sc, config.Merge(sc.Config, over), nil
}

// buildReport summarizes a processed print.
func buildReport(p *sla.Print, elapsed time.Duration) ux.Report {
	r := ux.Report{Elapsed: elapsed}
	for _, po := range p.Objects() {
		cfg := po.Config()
		stack := po.ModelSlices()
		height := 0.0
		if n := len(stack.Tops); n > 0 {
			height = stack.Tops[n-1]
		}
		r.Objects = append(r.Objects, ux.ObjectReport{
			Name:          po.Name(),
			Instances:     len(po.Instances()),
			Layers:        len(stack.Slices),
			Height:        height,
			SupportPoints: len(po.SupportPoints()),
			Supports:      cfg.SupportsEnable,
			Pad:           cfg.PadEnable,
		})
	}
	layers := p.PrinterInput()
	r.Layers = len(layers)
	if n := len(layers); n > 0 {
		r.Height = layers[n-1].Height
	}
	for _, l := range layers {
		r.Area += l.Area()
	}
	for _, w := range p.Warnings() {
		r.Warnings = append(r.Warnings, w.Message)
	}
	return r
}

// layerRecord is one line of the --layers-out file.
type layerRecord struct {
	Index    int     `json:"index"`
	Height   float64 `json:"height"`
	Objects  int     `json:"objects"`
	Area     float64 `json:"area"`
	Exposure float64 `json:"exposure"`
}

// layerWriter returns a rasterizer that writes one JSON record per printer
// layer to path. The first layer gets the initial exposure time.
func layerWriter(path string) sla.Rasterizer {
	return sla.RasterizerFunc(func(ctx context.Context, cfg config.PrintConfig, layers []sla.PrinterLayer) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create layer file: %w", err)
		}
		enc := json.NewEncoder(f)
		for i, l := range layers {
			if err := ctx.Err(); err != nil {
				f.Close()
				return err
			}
			exposure := cfg.ExposureTime
			if i == 0 {
				exposure = cfg.InitialExposureTime
			}
			rec := layerRecord{Index: i, Height: l.Height, Objects: len(l.Refs), Area: l.Area(), Exposure: exposure}
			if err := enc.Encode(rec); err != nil {
				f.Close()
				return fmt.Errorf("write layer %d: %w", i, err)
			}
		}
		return f.Close()
	})
}
