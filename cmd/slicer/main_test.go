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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScene = `
options:
  layer_height: 0.1
  supports_enable: false
  pad_enable: false
objects:
  - name: block
    shape: cube
    size: [10, 10, 5]
    instances:
      - offset: [30, 30]
`

const offBedScene = `
objects:
  - name: far
    shape: cube
    size: [10, 10, 5]
    instances:
      - offset: [500, 500]
  - name: near
    shape: cube
    size: [10, 10, 5]
    instances:
      - offset: [20, 20]
`

func writeScene(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// runCLI executes the command tree with telemetry disabled and returns
// stdout, stderr and the command error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root, a := newRootCmd(&out, &errOut)
	root.SetArgs(append(args,
		"--trace-exporter", "none",
		"--metric-exporter", "none",
		"--log-format", "text",
	))
	err := root.ExecuteContext(context.Background())
	require.NoError(t, a.teardown(context.Background()))
	return out.String(), errOut.String(), err
}

func readLayers(t *testing.T, path string) []layerRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var recs []layerRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec layerRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		recs = append(recs, rec)
	}
	require.NoError(t, sc.Err())
	return recs
}

func TestVersionCmd(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "slicer "+version)
	assert.Contains(t, out, "commit "+commit)
}

func TestSliceCmd_Machine(t *testing.T) {
	scene := writeScene(t, testScene)
	layersOut := filepath.Join(t.TempDir(), "layers.jsonl")

	out, _, err := runCLI(t, "slice", scene, "-o", "machine", "--layers-out", layersOut)
	require.NoError(t, err)
	assert.Contains(t, out, "OBJECT\tblock")
	assert.Contains(t, out, "SUMMARY\tobjects=1")

	recs := readLayers(t, layersOut)
	require.NotEmpty(t, recs)
	assert.Equal(t, 0, recs[0].Index)
	assert.InDelta(t, 15.0, recs[0].Exposure, 1e-9)
	assert.Equal(t, 1, recs[0].Objects)
	total := 0.0
	for _, rec := range recs {
		assert.InDelta(t, 100.0, rec.Area, 1e-6, "layer %d of a 10x10 mm block", rec.Index)
		total += rec.Area
	}
	assert.Contains(t, out, fmt.Sprintf("area=%.3f", total))
	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i].Height, recs[i-1].Height)
		assert.InDelta(t, 10.0, recs[i].Exposure, 1e-9)
	}
	assert.InDelta(t, 5.0, recs[len(recs)-1].Height, 0.1)
}

func TestSliceCmd_SetOverridesScene(t *testing.T) {
	scene := writeScene(t, testScene)
	coarse := filepath.Join(t.TempDir(), "coarse.jsonl")
	fine := filepath.Join(t.TempDir(), "fine.jsonl")

	_, _, err := runCLI(t, "slice", scene, "-o", "machine", "--layers-out", coarse)
	require.NoError(t, err)
	_, _, err = runCLI(t, "slice", scene, "-o", "machine", "--layers-out", fine, "--set", "layer_height=0.05")
	require.NoError(t, err)

	assert.Greater(t, len(readLayers(t, fine)), len(readLayers(t, coarse)))
}

func TestSliceCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing scene", []string{"slice", filepath.Join(t.TempDir(), "nope.yaml")}, "nope.yaml"},
		{"bad set", []string{"slice", writeScene(t, testScene), "--set", "layer_height"}, "key=value"},
		{"invalid option", []string{"slice", writeScene(t, testScene), "--set", "layer_height=-1"}, "layerheight"},
		{"no args", []string{"slice"}, "arg"},
		{"bad log level", []string{"version", "--log-level", "loud"}, "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, strings.ToLower(err.Error()), tt.want)
		})
	}
}

func TestInspectCmd_Machine(t *testing.T) {
	scene := writeScene(t, offBedScene)

	out, _, err := runCLI(t, "inspect", scene, "-o", "machine", "--set", "layer_height=0.025")
	require.NoError(t, err)
	assert.Contains(t, out, "OBJECT\tfar\tvolumes=1\tinstances=1\tfacets=12\tsize=10.000x10.000x5.000\tvolume_state=fully_outside")
	assert.Contains(t, out, "OBJECT\tnear\tvolumes=1\tinstances=1\tfacets=12\tsize=10.000x10.000x5.000\tvolume_state=inside")
	assert.Contains(t, out, "OPTION\tlayer_height=0.025")
	assert.Contains(t, out, "SCENE\tobjects=2\tmultipart=")
}

func TestInspectCmd_Minimal(t *testing.T) {
	scene := writeScene(t, offBedScene)

	out, _, err := runCLI(t, "inspect", scene, "-o", "minimal")
	require.NoError(t, err)
	assert.Contains(t, out, "far: 1 volume(s), 1 instance(s), 12 facets")
	assert.Contains(t, out, "far has an instance fully outside the print volume")
	assert.NotContains(t, out, "options:")
}

func TestParseSets(t *testing.T) {
	b, err := parseSets([]string{"layer_height=0.05", "pad_enable=false", "support_points_density_relative=80", "name= block"})
	require.NoError(t, err)
	assert.Equal(t, 0.05, b["layer_height"])
	assert.Equal(t, false, b["pad_enable"])
	assert.Equal(t, 80, b["support_points_density_relative"])
	assert.Equal(t, "block", b["name"])

	_, err = parseSets([]string{"=1"})
	assert.Error(t, err)

	b, err = parseSets([]string{"empty="})
	require.NoError(t, err)
	assert.Equal(t, "", b["empty"])
}
