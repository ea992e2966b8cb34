// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/chunkstore/internal/store"
)

func init() {
	sqlite_vec.Auto()
}

// idBatchSize keeps IN lists under SQLite's bound parameter limit.
const idBatchSize = 500

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex backed by SQLite with sqlite-vec.
type VectorIndex struct {
	db         *sql.DB
	dimensions int
}

// NewVectorIndex opens (or creates) a SQLite database at dbPath and
// initialises the vec0 virtual table and companion payload table. Reopening
// an index with different dimensions fails.
func NewVectorIndex(dbPath string, dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", dimensions)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrateVector(db, dimensions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating vector tables: %w", err)
	}

	return &VectorIndex{db: db, dimensions: dimensions}, nil
}

func migrateVector(db *sql.DB, dimensions int) error {
	const settingsDDL = `
CREATE TABLE IF NOT EXISTS index_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := db.Exec(settingsDDL); err != nil {
		return fmt.Errorf("creating index_settings table: %w", err)
	}

	var stored string
	err := db.QueryRow(`SELECT value FROM index_settings WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec(`INSERT INTO index_settings(key, value) VALUES ('dimensions', ?)`, strconv.Itoa(dimensions)); err != nil {
			return fmt.Errorf("recording dimensions: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading dimensions: %w", err)
	case stored != strconv.Itoa(dimensions):
		return fmt.Errorf("%w: index was created with %s dimensions, configured %d",
			store.ErrDimensionMismatch, stored, dimensions)
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating vectors virtual table: %w", err)
	}

	const payloadDDL = `
CREATE TABLE IF NOT EXISTS vector_payloads (
	id      TEXT PRIMARY KEY,
	payload TEXT NOT NULL DEFAULT '{}'
)`
	if _, err := db.Exec(payloadDDL); err != nil {
		return fmt.Errorf("creating vector_payloads table: %w", err)
	}

	return nil
}

// Upsert inserts or replaces a vector and its payload.
func (v *VectorIndex) Upsert(ctx context.Context, id string, vector []float32, payload store.Payload) error {
	if len(vector) != v.dimensions {
		return fmt.Errorf("%w: got %d, want %d", store.ErrDimensionMismatch, len(vector), v.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return fmt.Errorf("serializing vector: %w", err)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting existing vector %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
		return fmt.Errorf("inserting vector %s: %w", id, err)
	}

	const payloadQ = `INSERT INTO vector_payloads(id, payload) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`
	if _, err := tx.ExecContext(ctx, payloadQ, id, string(payloadJSON)); err != nil {
		return fmt.Errorf("upserting vector payload %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing vector upsert: %w", err)
	}
	return nil
}

// Query performs a k-nearest-neighbor search ordered by ascending distance.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, k int) ([]store.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != v.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", store.ErrDimensionMismatch, len(vector), v.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serializing query vector: %w", err)
	}

	const q = `SELECT v.id, v.distance, COALESCE(p.payload, '{}')
FROM vectors v
LEFT JOIN vector_payloads p ON p.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := v.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	return scanHits(rows)
}

// QueryIDs ranks the given ids by exact L2 distance to vector, bypassing the
// KNN index so a small set is never crowded out by closer vectors elsewhere.
func (v *VectorIndex) QueryIDs(ctx context.Context, vector []float32, ids []string, k int) ([]store.Hit, error) {
	if k <= 0 || len(ids) == 0 {
		return nil, nil
	}
	if len(vector) != v.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", store.ErrDimensionMismatch, len(vector), v.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serializing query vector: %w", err)
	}

	var hits []store.Hit
	for start := 0; start < len(ids); start += idBatchSize {
		batch := ids[start:min(start+idBatchSize, len(ids))]

		placeholders := strings.Repeat("?,", len(batch))
		placeholders = placeholders[:len(placeholders)-1]

		args := make([]any, 0, len(batch)+1)
		args = append(args, blob)
		for _, id := range batch {
			args = append(args, id)
		}

		q := `SELECT v.id, vec_distance_l2(v.embedding, ?), COALESCE(p.payload, '{}')
FROM vectors v
LEFT JOIN vector_payloads p ON p.id = v.id
WHERE v.id IN (` + placeholders + `)`

		rows, err := v.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("ranking vectors: %w", err)
		}
		batchHits, err := scanHits(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, batchHits...)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// scanHits reads (id, distance, payload) rows and closes them.
func scanHits(rows *sql.Rows) ([]store.Hit, error) {
	defer func() { _ = rows.Close() }()

	var hits []store.Hit
	for rows.Next() {
		var h store.Hit
		var payloadStr string

		if err := rows.Scan(&h.ID, &h.Distance, &payloadStr); err != nil {
			return nil, fmt.Errorf("scanning vector hit: %w", err)
		}

		if err := json.Unmarshal([]byte(payloadStr), &h.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling vector payload %s: %w", h.ID, err)
		}

		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector hits: %w", err)
	}

	return hits, nil
}

// Delete removes vectors and their payloads by ID.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(ids); start += idBatchSize {
		batch := ids[start:min(start+idBatchSize, len(ids))]

		placeholders := strings.Repeat("?,", len(batch))
		placeholders = placeholders[:len(placeholders)-1]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("deleting vectors: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM vector_payloads WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("deleting vector payloads: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing vector delete: %w", err)
	}
	return nil
}

// Count returns the number of stored vectors.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_payloads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}
