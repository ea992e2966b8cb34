// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// Catalog persists documents and their chunks. Put writes a document with
// all of its chunks and removes the evicted documents in one atomic step;
// Load returns documents ordered by Seq.
type Catalog interface {
	Load(ctx context.Context) ([]Document, error)
	Chunks(ctx context.Context, documentID string) ([]Chunk, error)
	Put(ctx context.Context, doc Document, chunks []Chunk, evict ...string) error
	Delete(ctx context.Context, documentID string) error
	Clear(ctx context.Context) error
	Close() error
}
