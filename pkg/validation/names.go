// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided scene inputs before they reach
// the file system or the pipeline.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrPathEscapes reports a mesh path that resolves outside the scene
// directory.
var ErrPathEscapes = errors.New("path escapes the scene directory")

// namePattern matches object names: a letter or digit followed by up to 63
// letters, digits, dots, dashes, underscores or spaces.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\- ]{0,63}$`)

// ValidateObjectName checks an object name from a scene file.
//
// Example:
//
//	if err := validation.ValidateObjectName(obj.Name); err != nil {
//	    return fmt.Errorf("object %d: %w", i, err)
//	}
func ValidateObjectName(name string) error {
	if name == "" {
		return fmt.Errorf("object name cannot be empty")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid object name: %q (1-64 letters, digits, dots, dashes, underscores or spaces)", name)
	}
	return nil
}

// ValidateObjectNames validates every name and rejects duplicates.
// Returns an error listing all offending names.
func ValidateObjectNames(names []string) error {
	seen := make(map[string]bool, len(names))
	var invalid, dup []string
	for _, n := range names {
		if err := ValidateObjectName(n); err != nil {
			invalid = append(invalid, n)
			continue
		}
		if seen[n] {
			dup = append(dup, n)
		}
		seen[n] = true
	}
	var errs []error
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid object names: %q", invalid))
	}
	if len(dup) > 0 {
		errs = append(errs, fmt.Errorf("duplicate object names: %q", dup))
	}
	return errors.Join(errs...)
}

// ResolveScenePath joins a scene-relative path onto base and rejects
// absolute paths and any path that climbs out of base.
//
// Use this for every file a scene refers to:
//
//	full, err := validation.ResolveScenePath(sceneDir, obj.Mesh)
//	if err != nil {
//	    return err
//	}
func ResolveScenePath(base, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q is absolute", ErrPathEscapes, rel)
	}
	full := filepath.Join(base, rel)
	r, err := filepath.Rel(base, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, rel)
	}
	return full, nil
}
