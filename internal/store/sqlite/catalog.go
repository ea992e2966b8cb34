// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/chunkstore/internal/store"
)

// Compile-time interface check.
var _ store.Catalog = (*Catalog)(nil)

// Catalog implements store.Catalog with a documents table and a chunks table
// that cascades on document deletion.
type Catalog struct {
	db *sql.DB
}

// NewCatalog opens (or creates) a SQLite database at dbPath.
func NewCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrateCatalog(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating catalog tables: %w", err)
	}

	return &Catalog{db: db}, nil
}

func migrateCatalog(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	seq          INTEGER NOT NULL,
	name         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	total_tokens INTEGER NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	preview      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_documents_order ON documents(created_at, seq);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	token_count INTEGER NOT NULL,
	stored_text TEXT NOT NULL,
	encrypted   INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	UNIQUE(document_id, chunk_index)
);
`
	_, err := db.Exec(ddl)
	return err
}

// Load returns every document with its chunk ids, ordered by seq.
func (c *Catalog) Load(ctx context.Context) ([]store.Document, error) {
	const q = `SELECT id, seq, name, created_at, total_tokens, metadata, preview
FROM documents ORDER BY seq`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []store.Document
	index := map[string]int{}
	for rows.Next() {
		var d store.Document
		var created, metaJSON string
		if err := rows.Scan(&d.ID, &d.Seq, &d.Name, &created, &d.TotalTokens, &metaJSON, &d.Preview); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.CreatedAt = parseTime(created)
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &d.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling metadata of %s: %w", d.ID, err)
			}
		}
		index[d.ID] = len(docs)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	chunkRows, err := c.db.QueryContext(ctx, `SELECT id, document_id FROM chunks ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer func() { _ = chunkRows.Close() }()

	for chunkRows.Next() {
		var id, docID string
		if err := chunkRows.Scan(&id, &docID); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		if i, ok := index[docID]; ok {
			docs[i].ChunkIDs = append(docs[i].ChunkIDs, id)
		}
	}
	if err := chunkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}

	return docs, nil
}

// Chunks returns the chunks of a document in index order.
func (c *Catalog) Chunks(ctx context.Context, documentID string) ([]store.Chunk, error) {
	var exists int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up document %s: %w", documentID, err)
	}

	const q = `SELECT id, document_id, chunk_index, token_count, stored_text, encrypted, created_at
FROM chunks WHERE document_id = ? ORDER BY chunk_index`

	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []store.Chunk
	for rows.Next() {
		var ch store.Chunk
		var created string
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.TokenCount, &ch.StoredText, &ch.Encrypted, &created); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		ch.CreatedAt = parseTime(created)
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// Put deletes the evicted documents and writes a document with its chunks in
// one transaction.
func (c *Catalog) Put(ctx context.Context, doc store.Document, chunks []store.Chunk, evict ...string) error {
	metaJSON := []byte("{}")
	if len(doc.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range evict {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return fmt.Errorf("evicting document %s: %w", id, err)
		}
	}

	const docQ = `INSERT INTO documents (id, seq, name, created_at, total_tokens, metadata, preview)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, docQ,
		doc.ID, doc.Seq, doc.Name, formatTime(doc.CreatedAt), doc.TotalTokens, string(metaJSON), doc.Preview,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID, store.ErrConflict)
		}
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}

	const chunkQ = `INSERT INTO chunks (id, document_id, chunk_index, token_count, stored_text, encrypted, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, ch := range chunks {
		if _, err := tx.ExecContext(ctx, chunkQ,
			ch.ID, doc.ID, ch.ChunkIndex, ch.TokenCount, ch.StoredText, ch.Encrypted, formatTime(ch.CreatedAt),
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a document and, by cascade, its chunks. Unknown ids are ignored.
func (c *Catalog) Delete(ctx context.Context, documentID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	return nil
}

// Clear removes every document and chunk.
func (c *Catalog) Clear(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
