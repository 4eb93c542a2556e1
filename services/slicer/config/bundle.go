// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds key/value option bundles and their typed views.
//
// A Bundle is what the configuration collaborator hands the core: a flat
// map of option keys to scalar values. Bundles layer (global, then
// per-object, then per-volume), diff into changed-key lists, and resolve
// into validated typed structs the pipeline consumes.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

var (
	// ErrInvalidConfig indicates a bundle that failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedFormat indicates a config file with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// Bundle is a flat set of option values keyed by option name.
//
// Values are scalars (bool, integer, float, string) or slices of them.
// A nil Bundle reads as empty.
type Bundle map[string]any

// Clone returns an independent copy.
func (b Bundle) Clone() Bundle {
	if b == nil {
		return nil
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		if s, ok := v.([]any); ok {
			v = append([]any(nil), s...)
		}
		out[k] = v
	}
	return out
}

// Set assigns key. Setting on a nil Bundle panics like any nil map.
func (b Bundle) Set(key string, v any) {
	b[key] = v
}

// Has reports whether key is present.
func (b Bundle) Has(key string) bool {
	_, ok := b[key]
	return ok
}

// Keys returns the option names in sorted order.
func (b Bundle) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float reads a numeric option.
func (b Bundle) Float(key string) (float64, bool) {
	v, ok := b[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Int reads an integral option. Floats are truncated.
func (b Bundle) Int(key string) (int, bool) {
	f, ok := b.Float(key)
	return int(f), ok
}

// Bool reads a boolean option. The strings "1", "true" and "yes" count as
// true, like the legacy profile format.
func (b Bundle) Bool(key string) (bool, bool) {
	v, ok := b[key]
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch t {
		case "1", "true", "yes":
			return true, true
		case "0", "false", "no", "":
			return false, true
		}
	}
	if f, ok := toFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

// String reads an option as text.
func (b Bundle) String(key string) (string, bool) {
	v, ok := b[key]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Merge layers bundles left to right; later values win. The result is a
// fresh bundle and never aliases the inputs.
func Merge(layers ...Bundle) Bundle {
	out := make(Bundle)
	for _, l := range layers {
		for k, v := range l.Clone() {
			out[k] = v
		}
	}
	return out
}

// Diff returns the sorted keys whose values differ between a and b,
// including keys present in only one of them. Numbers compare by value, so
// 1 and 1.0 are equal.
func Diff(a, b Bundle) []string {
	var keys []string
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !valueEqual(av, bv) {
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether Diff(a, b) is empty.
func Equal(a, b Bundle) bool {
	return len(Diff(a, b)) == 0
}

func valueEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			_, aStr := a.(string)
			_, bStr := b.(string)
			if !aStr && !bStr {
				return af == bf
			}
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
