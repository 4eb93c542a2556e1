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
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// moduleRoot walks up from the test's directory to the go.mod.
func moduleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, dir, parent, "go.mod not found")
		dir = parent
	}
}

// Every source file carries the license header, separated from the
// package clause so godoc does not take it for package documentation.
func TestSourceFiles_LicenseHeaderIsNotPackageDoc(t *testing.T) {
	root := moduleRoot(t)
	var checked int
	for _, top := range []string{"cmd", "pkg", "services"} {
		err := filepath.WalkDir(filepath.Join(root, top), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
				return err
			}
			f, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.ParseComments|parser.PackageClauseOnly)
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			require.NotEmpty(t, f.Comments, rel)
			assert.Contains(t, f.Comments[0].Text(), "GNU Affero General Public License", rel)
			if f.Doc != nil {
				assert.NotContains(t, f.Doc.Text(), "GNU Affero", rel)
			}
			checked++
			return nil
		})
		require.NoError(t, err)
	}
	assert.Greater(t, checked, 0)
}
