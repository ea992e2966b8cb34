// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// Payload is the data stored next to each chunk vector.
type Payload struct {
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	ChunkIndex   int               `json:"chunk_index"`
	Content      string            `json:"content"`
	Encrypted    bool              `json:"encrypted"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Hit is one nearest-neighbor result. Distance is L2; lower is closer.
type Hit struct {
	ID       string
	Distance float64
	Payload  Payload
}

// VectorIndex stores chunk vectors for nearest-neighbor search. Upsert
// replaces an existing id. Query returns at most k hits in ascending
// distance; QueryIDs does the same over the given ids only, skipping unknown
// ones. Deleting unknown ids is not an error.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, payload Payload) error
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	QueryIDs(ctx context.Context, vector []float32, ids []string, k int) ([]Hit, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}
