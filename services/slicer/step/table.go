// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package step implements the dependency-tracked step state machine that
// drives incremental processing.
//
// A Table declares the steps of one level (object or print) and their
// direct dependencies. A State tracks which steps are done for one owner.
// Invalidating a step clears it and everything downstream of it, never
// anything upstream. A Runner walks the outstanding steps of a State in
// declared order and calls into an Engine to compute each one.
package step

import (
	"fmt"
	"slices"
	"strconv"
)

// Def declares one step.
type Def[S ~int] struct {
	// Step is the step value.
	Step S

	// Name is used in logs, spans and metrics.
	Name string

	// DependsOn lists the direct dependencies. Each must be declared
	// earlier in the table.
	DependsOn []S
}

// Table is an immutable, validated set of step definitions.
//
// Thread Safety: Safe for concurrent use after construction.
type Table[S ~int] struct {
	name       string
	defs       []Def[S]
	index      map[S]int
	dependents map[S][]S
}

// NewTable validates defs and builds a Table.
//
// Description:
//
//	Rejects duplicate definitions, unknown dependencies, cycles and
//	dependencies declared after their dependent. Transitive dependents are
//	precomputed in declared order.
//
// Inputs:
//   - name: Table name used in errors, logs and metrics.
//   - defs: Step definitions in execution order.
//
// Outputs:
//   - *Table[S]: The validated table.
//   - error: *DefError, *CycleError or ErrEmptyTable.
func NewTable[S ~int](name string, defs []Def[S]) (*Table[S], error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("step table %s: %w", name, ErrEmptyTable)
	}

	t := &Table[S]{
		name:       name,
		defs:       make([]Def[S], len(defs)),
		index:      make(map[S]int, len(defs)),
		dependents: make(map[S][]S, len(defs)),
	}
	for i, d := range defs {
		if d.Name == "" {
			d.Name = strconv.Itoa(int(d.Step))
		}
		d.DependsOn = slices.Clone(d.DependsOn)
		if _, exists := t.index[d.Step]; exists {
			return nil, &DefError{Table: name, Step: d.Name, Err: ErrDuplicateStep}
		}
		t.index[d.Step] = i
		t.defs[i] = d
	}

	for _, d := range t.defs {
		for _, dep := range d.DependsOn {
			if _, ok := t.index[dep]; !ok {
				return nil, &DefError{Table: name, Step: d.Name, Err: ErrUnknownStep}
			}
		}
	}

	if err := t.detectCycles(); err != nil {
		return nil, err
	}

	for i, d := range t.defs {
		for _, dep := range d.DependsOn {
			if t.index[dep] >= i {
				return nil, &DefError{Table: name, Step: d.Name, Err: ErrDeclarationOrder}
			}
		}
	}

	// Declared order is a topological order, so one forward pass per step
	// collects its transitive dependents.
	for i, d := range t.defs {
		reached := map[S]bool{d.Step: true}
		var out []S
		for _, later := range t.defs[i+1:] {
			for _, dep := range later.DependsOn {
				if reached[dep] {
					reached[later.Step] = true
					out = append(out, later.Step)
					break
				}
			}
		}
		t.dependents[d.Step] = out
	}
	return t, nil
}

// MustTable is NewTable for package-level tables; it panics on error.
func MustTable[S ~int](name string, defs []Def[S]) *Table[S] {
	t, err := NewTable(name, defs)
	if err != nil {
		panic(err)
	}
	return t
}

// detectCycles uses DFS to detect cycles in the dependency graph.
func (t *Table[S]) detectCycles() error {
	visited := make(map[S]bool)
	recStack := make(map[S]bool)
	path := make([]S, 0)

	var dfs func(s S) error
	dfs = func(s S) error {
		visited[s] = true
		recStack[s] = true
		path = append(path, s)

		for _, dep := range t.defs[t.index[s]].DependsOn {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				start := slices.Index(path, dep)
				names := make([]string, 0, len(path)-start+1)
				for _, p := range path[start:] {
					names = append(names, t.StepName(p))
				}
				names = append(names, t.StepName(dep))
				return &CycleError{Path: names}
			}
		}

		path = path[:len(path)-1]
		recStack[s] = false
		return nil
	}

	for _, d := range t.defs {
		if !visited[d.Step] {
			if err := dfs(d.Step); err != nil {
				return err
			}
		}
	}
	return nil
}

// Name returns the table name.
func (t *Table[S]) Name() string {
	return t.name
}

// Len returns the number of steps.
func (t *Table[S]) Len() int {
	return len(t.defs)
}

// Steps returns the steps in declared order.
func (t *Table[S]) Steps() []S {
	out := make([]S, len(t.defs))
	for i, d := range t.defs {
		out[i] = d.Step
	}
	return out
}

// Has reports whether s is defined.
func (t *Table[S]) Has(s S) bool {
	_, ok := t.index[s]
	return ok
}

// StepName returns the declared name of s.
func (t *Table[S]) StepName(s S) string {
	if i, ok := t.index[s]; ok {
		return t.defs[i].Name
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// DependsOn returns the direct dependencies of s.
func (t *Table[S]) DependsOn(s S) []S {
	if i, ok := t.index[s]; ok {
		return slices.Clone(t.defs[i].DependsOn)
	}
	return nil
}

// Dependents returns every step that transitively depends on s, in
// declared order.
func (t *Table[S]) Dependents(s S) []S {
	return slices.Clone(t.dependents[s])
}

func (t *Table[S]) position(s S) int {
	i, ok := t.index[s]
	if !ok {
		return -1
	}
	return i
}
