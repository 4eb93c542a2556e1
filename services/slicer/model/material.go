// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"maps"

	"github.com/AleutianAI/AleutianSlice/services/slicer/config"
	"github.com/AleutianAI/AleutianSlice/services/slicer/identity"
)

// Material is a named resin or filament referenced by volumes through its
// key in the model's material map.
type Material struct {
	identity.Base

	modelID identity.ID

	// Attributes carries free-form metadata from the source file.
	Attributes map[string]string

	// Config is the material's option overlay.
	Config config.Bundle
}

func newMaterial(modelID identity.ID) *Material {
	m := &Material{
		modelID:    modelID,
		Attributes: make(map[string]string),
		Config:     config.Bundle{},
	}
	m.Init()
	return m
}

// ModelID returns the ID of the owning model.
func (m *Material) ModelID() identity.ID { return m.modelID }

func (m *Material) clone(modelID identity.ID, keepID bool) *Material {
	out := &Material{
		modelID:    modelID,
		Attributes: maps.Clone(m.Attributes),
		Config:     m.Config.Clone(),
	}
	if out.Attributes == nil {
		out.Attributes = make(map[string]string)
	}
	if keepID {
		out.CopyID(&m.Base)
	} else {
		out.Init()
	}
	return out
}
