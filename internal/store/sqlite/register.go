// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/chunkstore/internal/store"
)

// File names created inside the data directory.
const (
	VectorsFile = "vectors.db"
	CatalogFile = "catalog.db"
)

func init() {
	store.RegisterBackend("sqlite", newVectorIndex, newCatalog)
}

func newVectorIndex(dataDir string, dims int) (store.VectorIndex, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return NewVectorIndex(filepath.Join(dataDir, VectorsFile), dims)
}

func newCatalog(dataDir string) (store.Catalog, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return NewCatalog(filepath.Join(dataDir, CatalogFile))
}
