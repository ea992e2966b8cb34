// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/sigil-dev/chunkstore/internal/store"
)

// Compile-time interface check.
var _ store.Catalog = (*Catalog)(nil)

// Catalog keeps documents and chunks in maps.
type Catalog struct {
	mu     sync.RWMutex
	docs   map[string]store.Document
	chunks map[string][]store.Chunk
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		docs:   map[string]store.Document{},
		chunks: map[string][]store.Chunk{},
	}
}

func cloneDocument(d store.Document) store.Document {
	d.ChunkIDs = slices.Clone(d.ChunkIDs)
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

func (c *Catalog) Load(_ context.Context) ([]store.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs := make([]store.Document, 0, len(c.docs))
	for _, d := range c.docs {
		docs = append(docs, cloneDocument(d))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Seq < docs[j].Seq })
	return docs, nil
}

func (c *Catalog) Chunks(_ context.Context, documentID string) ([]store.Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.docs[documentID]; !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	return slices.Clone(c.chunks[documentID]), nil
}

func (c *Catalog) Put(_ context.Context, doc store.Document, chunks []store.Chunk, evict ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[doc.ID]; ok && !slices.Contains(evict, doc.ID) {
		return fmt.Errorf("document %s: %w", doc.ID, store.ErrConflict)
	}
	for _, id := range evict {
		delete(c.docs, id)
		delete(c.chunks, id)
	}
	c.docs[doc.ID] = cloneDocument(doc)
	if len(chunks) > 0 {
		c.chunks[doc.ID] = slices.Clone(chunks)
	}
	return nil
}

func (c *Catalog) Delete(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, documentID)
	delete(c.chunks, documentID)
	return nil
}

func (c *Catalog) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.docs)
	clear(c.chunks)
	return nil
}

func (c *Catalog) Close() error { return nil }
