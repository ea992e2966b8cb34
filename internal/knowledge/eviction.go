// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package knowledge

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigil-dev/chunkstore/internal/store"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// planEviction picks the oldest documents whose removal makes needed tokens
// fit in the budget. Nothing is removed here: the victims are dropped in the
// same catalog transaction that commits the new document. The caller must
// hold writeMu.
func (s *Store) planEviction(needed int) ([]store.Document, error) {
	s.mu.RLock()
	current := s.currentTokens
	s.mu.RUnlock()

	if current+needed <= s.maxTokens {
		return nil, nil
	}

	var victims []store.Document
	for _, doc := range s.Documents() {
		victims = append(victims, doc)
		current -= doc.TotalTokens
		if current+needed <= s.maxTokens {
			return victims, nil
		}
	}

	return nil, chunkerr.New(chunkerr.CodeStoreCapacityExceeded, "token budget cannot be reclaimed",
		chunkerr.Field("needed_tokens", needed),
		chunkerr.Field("current_tokens", current),
		chunkerr.Field("max_tokens", s.maxTokens),
	)
}

func documentIDs(docs []store.Document) []string {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func chunkIDs(docs []store.Document) []string {
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ChunkIDs...)
	}
	return ids
}

// dropVectors deletes vectors of documents that are no longer live. A failure
// leaves orphans, which retrieval hides because their documents are gone; a
// re-added document overwrites them. It runs on a fresh context so a
// cancelled request still cleans up.
func (s *Store) dropVectors(ids []string, reason string) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.retry(ctx, func() error { return s.index.Delete(ctx, ids) }); err != nil {
		slog.Error("deleting vectors failed, orphaned vectors are hidden from search",
			"reason", reason, "chunks", len(ids), "error", err)
	}
}
