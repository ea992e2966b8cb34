// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package memory

import "github.com/sigil-dev/chunkstore/internal/store"

func init() {
	store.RegisterBackend("memory",
		func(_ string, dims int) (store.VectorIndex, error) { return NewVectorIndex(dims) },
		func(_ string) (store.Catalog, error) { return NewCatalog(), nil },
	)
}
