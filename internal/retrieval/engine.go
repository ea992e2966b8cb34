// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package retrieval ranks stored chunks by similarity to a query.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sigil-dev/chunkstore/internal/cipher"
	"github.com/sigil-dev/chunkstore/internal/embedding"
	"github.com/sigil-dev/chunkstore/internal/store"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// NoContextFound is returned by Context when no chunk matches.
const NoContextFound = "No relevant context found in stored documents."

const (
	// overFetch widens the index query so hits of evicted or in-flight
	// documents can be dropped without starving the result.
	overFetch = 3
	// maxFetch is the largest k a sqlite-vec KNN query accepts.
	maxFetch = 4096

	contextSeparator = "\n\n---\n\n"
)

// Documents resolves live documents. knowledge.Store implements it.
type Documents interface {
	Document(id string) (store.Document, bool)
	Closed() bool
}

// Scope restricts a search. The zero value searches the whole store.
type Scope struct {
	DocumentIDs []string
}

func (s Scope) allows(id string) bool {
	return len(s.DocumentIDs) == 0 || slices.Contains(s.DocumentIDs, id)
}

// Result is one ranked chunk.
type Result struct {
	ChunkID      string            `json:"chunk_id"`
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	ChunkIndex   int               `json:"chunk_index"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Distance     float64           `json:"distance"`
}

// Engine answers similarity queries against the vector index.
type Engine struct {
	docs     Documents
	embedder embedding.Gateway
	index    store.VectorIndex
	cipher   *cipher.Cipher
}

// New returns an Engine. A nil embedder makes every search return no results.
func New(docs Documents, embedder embedding.Gateway, index store.VectorIndex, c *cipher.Cipher) *Engine {
	if c == nil {
		c = cipher.Disabled()
	}
	return &Engine{docs: docs, embedder: embedder, index: index, cipher: c}
}

// Search returns up to k chunks of live documents ordered by ascending
// distance to query.
func (e *Engine) Search(ctx context.Context, query string, k int, scope Scope) ([]Result, error) {
	if e.docs.Closed() {
		return nil, chunkerr.New(chunkerr.CodeStoreClosed, "document store is shut down")
	}
	if strings.TrimSpace(query) == "" {
		return nil, chunkerr.New(chunkerr.CodeRetrievalQueryInvalid, "query is empty")
	}
	if k <= 0 {
		return nil, chunkerr.Errorf(chunkerr.CodeRetrievalQueryInvalid, "result count must be greater than 0, got %d", k)
	}
	if e.embedder == nil {
		return []Result{}, nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if chunkerr.CodeOf(err) == "" {
			err = chunkerr.Wrapf(err, chunkerr.CodeEmbeddingUpstreamFailure, "embedding query")
		}
		return nil, err
	}

	var results []Result
	if len(scope.DocumentIDs) > 0 {
		ids := e.scopedChunkIDs(scope)
		hits, err := e.index.QueryIDs(ctx, vec, ids, len(ids))
		if err != nil {
			return nil, chunkerr.Wrap(err, chunkerr.CodeIndexFailure, "querying vector index")
		}
		results = e.collect(hits, k, scope)
		slog.Debug("scoped search completed", "chunks", len(ids), "results", len(results), "k", k)
		return results, nil
	}

	// Grow the window until k live results are found or the index runs out.
	fetch := min(k*overFetch, maxFetch)
	for {
		hits, err := e.index.Query(ctx, vec, fetch)
		if err != nil {
			return nil, chunkerr.Wrap(err, chunkerr.CodeIndexFailure, "querying vector index")
		}
		results = e.collect(hits, k, scope)
		if len(results) == k || len(hits) < fetch || fetch == maxFetch {
			slog.Debug("search completed", "hits", len(hits), "results", len(results), "k", k)
			return results, nil
		}
		fetch = min(fetch*2, maxFetch)
	}
}

// scopedChunkIDs lists the chunk ids of the live documents in scope.
func (e *Engine) scopedChunkIDs(scope Scope) []string {
	var ids []string
	for _, id := range scope.DocumentIDs {
		if doc, ok := e.docs.Document(id); ok {
			ids = append(ids, doc.ChunkIDs...)
		}
	}
	return ids
}

// collect turns hits into at most k results, dropping chunks of documents
// that are not live or not in scope and chunks that cannot be decrypted.
func (e *Engine) collect(hits []store.Hit, k int, scope Scope) []Result {
	results := make([]Result, 0, min(k, len(hits)))
	for _, h := range hits {
		if len(results) == k {
			break
		}
		doc, ok := e.docs.Document(h.Payload.DocumentID)
		if !ok || !scope.allows(doc.ID) || !slices.Contains(doc.ChunkIDs, h.ID) {
			continue
		}

		content, err := e.cipher.Reveal(h.Payload.Content, h.Payload.Encrypted)
		if err != nil {
			slog.Warn("skipping undecryptable chunk", "chunk_id", h.ID, "error", err)
			continue
		}

		results = append(results, Result{
			ChunkID:      h.ID,
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			ChunkIndex:   h.Payload.ChunkIndex,
			Content:      content,
			Metadata:     doc.Metadata,
			Distance:     h.Distance,
		})
	}
	return results
}

// Context renders the best maxChunks results as a source-annotated block for
// prompt assembly.
func (e *Engine) Context(ctx context.Context, query string, maxChunks int) (string, error) {
	results, err := e.Search(ctx, query, maxChunks, Scope{})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return NoContextFound, nil
	}

	parts := make([]string, len(results))
	for i, r := range results {
		source := r.DocumentName
		if source == "" {
			source = r.DocumentID
		}
		parts[i] = fmt.Sprintf("[Source: %s, chunk %d]\n%s", source, r.ChunkIndex, r.Content)
	}
	return strings.Join(parts, contextSeparator), nil
}
