// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/chunkstore/internal/knowledge"
	"github.com/sigil-dev/chunkstore/internal/retrieval"
	"github.com/sigil-dev/chunkstore/internal/store"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// DocumentService is the write and inventory side of the store.
type DocumentService interface {
	AddDocument(ctx context.Context, content, name string, metadata map[string]string) (knowledge.AddResult, error)
	Documents() []store.Document
	ClearAll(ctx context.Context) error
	Stats() knowledge.Stats
}

// SearchService answers similarity queries.
type SearchService interface {
	Search(ctx context.Context, query string, k int, scope retrieval.Scope) ([]retrieval.Result, error)
	Context(ctx context.Context, query string, maxChunks int) (string, error)
}

// Services holds dependencies injected into route handlers.
type Services struct {
	documents DocumentService
	search    SearchService
}

// NewServices returns an error if any service is nil.
func NewServices(documents DocumentService, search SearchService) (*Services, error) {
	if documents == nil {
		return nil, chunkerr.New(chunkerr.CodeServerConfigInvalid, "document service is required")
	}
	if search == nil {
		return nil, chunkerr.New(chunkerr.CodeServerConfigInvalid, "search service is required")
	}
	return &Services{documents: documents, search: search}, nil
}

// Documents returns the document service.
func (s *Services) Documents() DocumentService {
	return s.documents
}

// Search returns the search service.
func (s *Services) Search() SearchService {
	return s.search
}
