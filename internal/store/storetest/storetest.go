// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package storetest holds behaviour tests shared by every storage backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sigil-dev/chunkstore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// IndexFactory opens a fresh 3-dimensional index for one subtest.
type IndexFactory func(t *testing.T) store.VectorIndex

// CatalogFactory opens a fresh catalog for one subtest.
type CatalogFactory func(t *testing.T) store.Catalog

func payload(doc string, idx int) store.Payload {
	return store.Payload{
		DocumentID:   doc,
		DocumentName: doc + ".txt",
		ChunkIndex:   idx,
		Content:      fmt.Sprintf("%s chunk %d", doc, idx),
	}
}

// RunVectorIndexTests exercises the store.VectorIndex contract.
func RunVectorIndexTests(t *testing.T, open IndexFactory) {
	ctx := context.Background()

	t.Run("upsert and query", func(t *testing.T) {
		idx := open(t)
		require.NoError(t, idx.Upsert(ctx, "v1", []float32{1, 0, 0}, payload("a", 0)))
		require.NoError(t, idx.Upsert(ctx, "v2", []float32{0, 1, 0}, payload("a", 1)))
		require.NoError(t, idx.Upsert(ctx, "v3", []float32{0.9, 0.1, 0}, payload("b", 0)))

		hits, err := idx.Query(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "v1", hits[0].ID)
		assert.InDelta(t, 0, hits[0].Distance, 1e-6)
		assert.Equal(t, "v3", hits[1].ID)
		assert.InDelta(t, math.Sqrt(0.02), hits[1].Distance, 1e-5)
		assert.Equal(t, payload("b", 0), hits[1].Payload)
	})

	t.Run("known distances ascending", func(t *testing.T) {
		idx := open(t)
		require.NoError(t, idx.Upsert(ctx, "far", []float32{0, 0, 3}, payload("d", 2)))
		require.NoError(t, idx.Upsert(ctx, "near", []float32{0, 0, 1}, payload("d", 0)))
		require.NoError(t, idx.Upsert(ctx, "mid", []float32{0, 0, 2}, payload("d", 1)))

		hits, err := idx.Query(ctx, []float32{0, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []string{"near", "mid", "far"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
		assert.InDelta(t, 1.0, hits[0].Distance, 1e-6)
		assert.InDelta(t, 2.0, hits[1].Distance, 1e-6)
		assert.InDelta(t, 3.0, hits[2].Distance, 1e-6)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		idx := open(t)
		require.NoError(t, idx.Upsert(ctx, "v1", []float32{1, 0, 0}, payload("a", 0)))
		updated := payload("a", 0)
		updated.Content = "replaced"
		require.NoError(t, idx.Upsert(ctx, "v1", []float32{0, 1, 0}, updated))

		hits, err := idx.Query(ctx, []float32{0, 1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "replaced", hits[0].Payload.Content)
		assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	})

	t.Run("payload round trip", func(t *testing.T) {
		idx := open(t)
		p := store.Payload{
			DocumentID:   "doc",
			DocumentName: "notes",
			ChunkIndex:   4,
			Content:      "c2VhbGVk",
			Encrypted:    true,
			Metadata:     map[string]string{"source": "cli"},
		}
		require.NoError(t, idx.Upsert(ctx, "x", []float32{1, 1, 1}, p))

		hits, err := idx.Query(ctx, []float32{1, 1, 1}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, p, hits[0].Payload)
	})

	t.Run("delete", func(t *testing.T) {
		idx := open(t)
		for _, id := range []string{"v1", "v2", "v3"} {
			require.NoError(t, idx.Upsert(ctx, id, []float32{1, 0, 0}, payload(id, 0)))
		}

		require.NoError(t, idx.Delete(ctx, []string{"v1", "v3", "unknown"}))
		require.NoError(t, idx.Delete(ctx, nil))

		hits, err := idx.Query(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "v2", hits[0].ID)
	})

	t.Run("query empty index", func(t *testing.T) {
		idx := open(t)
		hits, err := idx.Query(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = idx.Query(ctx, []float32{1, 0, 0}, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("query ids ranks only the given ids", func(t *testing.T) {
		idx := open(t)
		vectors := map[string][]float32{
			"near1": {1, 0, 0},
			"near2": {1, 0.1, 0},
			"far1":  {0, 0, 5},
			"far2":  {0, 0, 3},
		}
		for id, vec := range vectors {
			require.NoError(t, idx.Upsert(ctx, id, vec, payload(id, 0)))
		}

		hits, err := idx.QueryIDs(ctx, []float32{1, 0, 0}, []string{"far1", "far2", "missing"}, 5)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "far2", hits[0].ID)
		assert.Equal(t, "far1", hits[1].ID)
		assert.Equal(t, "far2", hits[0].Payload.DocumentID)
		assert.InDelta(t, 3.1623, hits[0].Distance, 1e-3)

		hits, err = idx.QueryIDs(ctx, []float32{1, 0, 0}, []string{"far1", "far2"}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "far2", hits[0].ID)

		hits, err = idx.QueryIDs(ctx, []float32{1, 0, 0}, nil, 3)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		idx := open(t)
		err := idx.Upsert(ctx, "v", []float32{1, 0}, payload("a", 0))
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrDimensionMismatch))

		_, err = idx.Query(ctx, []float32{1, 0, 0, 0}, 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrDimensionMismatch))
	})
}

func testDocument(id string, seq int64, chunkCount int) (store.Document, []store.Chunk) {
	created := time.Date(2026, 3, 1, 12, 0, int(seq), 0, time.UTC)
	doc := store.Document{
		ID:          id,
		Name:        id + ".md",
		CreatedAt:   created,
		Seq:         seq,
		TotalTokens: chunkCount * 10,
		Metadata:    map[string]string{"origin": "test"},
		Preview:     "preview of " + id,
	}
	chunks := make([]store.Chunk, chunkCount)
	for i := range chunks {
		chunks[i] = store.Chunk{
			ID:         store.ChunkID(id, i),
			DocumentID: id,
			ChunkIndex: i,
			TokenCount: 10,
			StoredText: fmt.Sprintf("text %d of %s", i, id),
			Encrypted:  i%2 == 1,
			CreatedAt:  created,
		}
		doc.ChunkIDs = append(doc.ChunkIDs, chunks[i].ID)
	}
	return doc, chunks
}

// RunCatalogTests exercises the store.Catalog contract.
func RunCatalogTests(t *testing.T, open CatalogFactory) {
	ctx := context.Background()

	t.Run("put and load in sequence order", func(t *testing.T) {
		c := open(t)
		docB, chunksB := testDocument("b", 2, 2)
		docA, chunksA := testDocument("a", 1, 3)
		require.NoError(t, c.Put(ctx, docB, chunksB))
		require.NoError(t, c.Put(ctx, docA, chunksA))

		docs, err := c.Load(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, docA, docs[0])
		assert.Equal(t, docB, docs[1])
	})

	t.Run("chunks", func(t *testing.T) {
		c := open(t)
		doc, chunks := testDocument("a", 1, 3)
		require.NoError(t, c.Put(ctx, doc, chunks))

		got, err := c.Chunks(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, chunks, got)

		_, err = c.Chunks(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("duplicate put conflicts and keeps original", func(t *testing.T) {
		c := open(t)
		doc, chunks := testDocument("a", 1, 2)
		require.NoError(t, c.Put(ctx, doc, chunks))

		other, otherChunks := testDocument("a", 5, 1)
		err := c.Put(ctx, other, otherChunks)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrConflict))

		docs, err := c.Load(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, doc, docs[0])
	})

	t.Run("delete removes chunks", func(t *testing.T) {
		c := open(t)
		docA, chunksA := testDocument("a", 1, 2)
		docB, chunksB := testDocument("b", 2, 2)
		require.NoError(t, c.Put(ctx, docA, chunksA))
		require.NoError(t, c.Put(ctx, docB, chunksB))

		require.NoError(t, c.Delete(ctx, "a"))
		require.NoError(t, c.Delete(ctx, "unknown"))

		docs, err := c.Load(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "b", docs[0].ID)

		_, err = c.Chunks(ctx, "a")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("put evicts in the same step", func(t *testing.T) {
		c := open(t)
		docA, chunksA := testDocument("a", 1, 2)
		docB, chunksB := testDocument("b", 2, 1)
		docC, chunksC := testDocument("c", 3, 2)
		require.NoError(t, c.Put(ctx, docA, chunksA))
		require.NoError(t, c.Put(ctx, docB, chunksB))

		require.NoError(t, c.Put(ctx, docC, chunksC, "a", "unknown"))

		docs, err := c.Load(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "b", docs[0].ID)
		assert.Equal(t, "c", docs[1].ID)

		_, err = c.Chunks(ctx, "a")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("failed put keeps evicted documents", func(t *testing.T) {
		c := open(t)
		docA, chunksA := testDocument("a", 1, 2)
		docB, chunksB := testDocument("b", 2, 1)
		require.NoError(t, c.Put(ctx, docA, chunksA))
		require.NoError(t, c.Put(ctx, docB, chunksB))

		dup, dupChunks := testDocument("b", 3, 1)
		err := c.Put(ctx, dup, dupChunks, "a")
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrConflict))

		docs, err := c.Load(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, docA, docs[0])

		got, err := c.Chunks(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, chunksA, got)
	})

	t.Run("clear", func(t *testing.T) {
		c := open(t)
		doc, chunks := testDocument("a", 1, 2)
		require.NoError(t, c.Put(ctx, doc, chunks))

		require.NoError(t, c.Clear(ctx))
		docs, err := c.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, docs)

		require.NoError(t, c.Put(ctx, doc, chunks), "ids are reusable after clear")
	})

	t.Run("document without chunks", func(t *testing.T) {
		c := open(t)
		doc, _ := testDocument("empty", 1, 0)
		require.NoError(t, c.Put(ctx, doc, nil))

		docs, err := c.Load(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Empty(t, docs[0].ChunkIDs)
	})
}
