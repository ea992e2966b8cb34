// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/chunkstore/internal/store"
	"github.com/sigil-dev/chunkstore/internal/store/sqlite"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	idx, catalog, err := store.Open("sqlite", dir, 3)
	require.NoError(t, err)
	defer func() {
		_ = idx.Close()
		_ = catalog.Close()
	}()

	assert.FileExists(t, filepath.Join(dir, sqlite.VectorsFile))
	assert.FileExists(t, filepath.Join(dir, sqlite.CatalogFile))
	assert.Contains(t, store.Backends(), "sqlite")
}

func TestOpen_PartialFailure(t *testing.T) {
	tests := []struct {
		name     string
		blockOn  string
		wantCode chunkerr.Code
	}{
		{name: "vector index fails", blockOn: sqlite.VectorsFile, wantCode: chunkerr.CodeIndexFailure},
		{name: "catalog fails", blockOn: sqlite.CatalogFile, wantCode: chunkerr.CodeStoreCatalogFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			// A directory where the database file should be makes sqlite fail.
			require.NoError(t, os.Mkdir(filepath.Join(dir, tt.blockOn), 0o755))

			_, _, err := store.Open("sqlite", dir, 3)
			require.Error(t, err)
			assert.True(t, chunkerr.HasCode(err, tt.wantCode), "got %v", chunkerr.CodeOf(err))
		})
	}
}
