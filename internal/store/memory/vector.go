// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package memory provides process-local storage backends. Nothing survives a
// restart.
package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/sigil-dev/chunkstore/internal/store"
)

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

type entry struct {
	vector  []float32
	payload store.Payload
}

// VectorIndex is a brute-force L2 nearest-neighbor index.
type VectorIndex struct {
	mu         sync.RWMutex
	dimensions int
	entries    map[string]entry
}

// NewVectorIndex returns an empty index of the given dimensionality.
func NewVectorIndex(dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", dimensions)
	}
	return &VectorIndex{dimensions: dimensions, entries: map[string]entry{}}, nil
}

func (v *VectorIndex) Upsert(_ context.Context, id string, vector []float32, payload store.Payload) error {
	if len(vector) != v.dimensions {
		return fmt.Errorf("%w: got %d, want %d", store.ErrDimensionMismatch, len(vector), v.dimensions)
	}

	payload.Metadata = maps.Clone(payload.Metadata)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[id] = entry{vector: append([]float32(nil), vector...), payload: payload}
	return nil
}

func (v *VectorIndex) Query(_ context.Context, vector []float32, k int) ([]store.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != v.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", store.ErrDimensionMismatch, len(vector), v.dimensions)
	}

	v.mu.RLock()
	hits := make([]store.Hit, 0, len(v.entries))
	for id, e := range v.entries {
		hits = append(hits, e.hit(id, vector))
	}
	v.mu.RUnlock()

	return rank(hits, k), nil
}

func (v *VectorIndex) QueryIDs(_ context.Context, vector []float32, ids []string, k int) ([]store.Hit, error) {
	if k <= 0 || len(ids) == 0 {
		return nil, nil
	}
	if len(vector) != v.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", store.ErrDimensionMismatch, len(vector), v.dimensions)
	}

	v.mu.RLock()
	hits := make([]store.Hit, 0, len(ids))
	for _, id := range ids {
		if e, ok := v.entries[id]; ok {
			hits = append(hits, e.hit(id, vector))
		}
	}
	v.mu.RUnlock()

	return rank(hits, k), nil
}

func (e entry) hit(id string, query []float32) store.Hit {
	p := e.payload
	p.Metadata = maps.Clone(p.Metadata)
	return store.Hit{ID: id, Distance: l2(e.vector, query), Payload: p}
}

// rank orders hits by ascending distance, ties by id, and keeps the first k.
func rank(hits []store.Hit, k int) []store.Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (v *VectorIndex) Delete(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.entries, id)
	}
	return nil
}

// Len returns the number of stored vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

func (v *VectorIndex) Close() error { return nil }

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
