// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sort"
	"sync"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// IndexFactory creates a vector index rooted at dataDir.
type IndexFactory func(dataDir string, dims int) (VectorIndex, error)

// CatalogFactory creates a catalog rooted at dataDir.
type CatalogFactory func(dataDir string) (Catalog, error)

type backend struct {
	index   IndexFactory
	catalog CatalogFactory
}

var (
	backends   = map[string]backend{}
	backendsMu sync.RWMutex
)

// RegisterBackend registers factory functions for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, index IndexFactory, catalog CatalogFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = backend{index: index, catalog: catalog}
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates the vector index and catalog of the named backend. An empty
// name selects "sqlite".
func Open(name, dataDir string, dims int) (VectorIndex, Catalog, error) {
	if name == "" {
		name = "sqlite"
	}

	backendsMu.RLock()
	b, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, nil, chunkerr.New(chunkerr.CodeStoreBackendUnsupported,
			"unsupported storage backend", chunkerr.FieldBackend(name))
	}

	index, err := b.index(dataDir, dims)
	if err != nil {
		return nil, nil, chunkerr.Wrap(err, chunkerr.CodeIndexFailure, "opening vector index", chunkerr.FieldBackend(name))
	}

	catalog, err := b.catalog(dataDir)
	if err != nil {
		_ = index.Close()
		return nil, nil, chunkerr.Wrap(err, chunkerr.CodeStoreCatalogFailure, "opening catalog", chunkerr.FieldBackend(name))
	}

	return index, catalog, nil
}
