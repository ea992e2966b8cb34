// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/chunkstore/internal/knowledge"
	"github.com/sigil-dev/chunkstore/internal/retrieval"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "add-document",
		Method:        http.MethodPost,
		Path:          "/api/v1/documents",
		Summary:       "Add a document",
		Tags:          []string{"documents"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAddDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents",
		Summary:     "List stored documents, oldest first",
		Tags:        []string{"documents"},
	}, s.handleListDocuments)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-documents",
		Method:      http.MethodDelete,
		Path:        "/api/v1/documents",
		Summary:     "Remove every document",
		Tags:        []string{"documents"},
	}, s.handleClearDocuments)

	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search chunks by similarity",
		Tags:        []string{"retrieval"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "context",
		Method:      http.MethodGet,
		Path:        "/api/v1/context",
		Summary:     "Render relevant chunks as prompt context",
		Tags:        []string{"retrieval"},
	}, s.handleContext)

	huma.Register(s.api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Store statistics",
		Tags:        []string{"system"},
	}, s.handleStats)
}

// --- Request/Response types for huma ---

type addDocumentInput struct {
	Body struct {
		Content  string            `json:"content" minLength:"1" doc:"Document text"`
		Name     string            `json:"name,omitempty" doc:"Document name, part of its identity"`
		Metadata map[string]string `json:"metadata,omitempty" doc:"Arbitrary string metadata"`
	}
}

type addDocumentOutput struct {
	Status int
	Body   knowledge.AddResult
}

// DocumentSummary describes a stored document without its content.
type DocumentSummary struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	CreatedAt   time.Time         `json:"created_at"`
	TotalTokens int               `json:"total_tokens"`
	Chunks      int               `json:"chunks"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Preview     string            `json:"preview"`
}

type listDocumentsOutput struct {
	Body struct {
		Documents []DocumentSummary `json:"documents"`
	}
}

type clearDocumentsOutput struct {
	Body struct {
		Status string `json:"status" example:"cleared"`
	}
}

type searchInput struct {
	Query       string   `query:"query" required:"true" minLength:"1" doc:"Search text"`
	K           int      `query:"k" default:"5" minimum:"1" maximum:"100" doc:"Number of results"`
	DocumentIDs []string `query:"document_id,explode" doc:"Restrict results to these documents"`
}

type searchOutput struct {
	Body struct {
		Results []retrieval.Result `json:"results"`
	}
}

type contextInput struct {
	Query     string `query:"query" required:"true" minLength:"1" doc:"Search text"`
	MaxChunks int    `query:"max_chunks" default:"5" minimum:"1" maximum:"100" doc:"Maximum chunks to include"`
}

type contextOutput struct {
	Body struct {
		Context string `json:"context"`
	}
}

type statsOutput struct {
	Body knowledge.Stats
}

// --- Handlers ---

func (s *Server) handleAddDocument(ctx context.Context, input *addDocumentInput) (*addDocumentOutput, error) {
	res, err := s.services.Documents().AddDocument(ctx, input.Body.Content, input.Body.Name, input.Body.Metadata)
	if err != nil {
		return nil, httpError("adding document", err)
	}

	out := &addDocumentOutput{Status: http.StatusCreated, Body: res}
	if res.Status == knowledge.StatusDuplicate {
		out.Status = http.StatusOK
	}
	return out, nil
}

func (s *Server) handleListDocuments(_ context.Context, _ *struct{}) (*listDocumentsOutput, error) {
	docs := s.services.Documents().Documents()

	out := &listDocumentsOutput{}
	out.Body.Documents = make([]DocumentSummary, len(docs))
	for i, d := range docs {
		out.Body.Documents[i] = DocumentSummary{
			ID:          d.ID,
			Name:        d.Name,
			CreatedAt:   d.CreatedAt,
			TotalTokens: d.TotalTokens,
			Chunks:      len(d.ChunkIDs),
			Metadata:    d.Metadata,
			Preview:     d.Preview,
		}
	}
	return out, nil
}

func (s *Server) handleClearDocuments(ctx context.Context, _ *struct{}) (*clearDocumentsOutput, error) {
	if err := s.services.Documents().ClearAll(ctx); err != nil {
		return nil, httpError("clearing documents", err)
	}
	out := &clearDocumentsOutput{}
	out.Body.Status = "cleared"
	return out, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	results, err := s.services.Search().Search(ctx, input.Query, input.K, retrieval.Scope{DocumentIDs: input.DocumentIDs})
	if err != nil {
		return nil, httpError("searching", err)
	}
	out := &searchOutput{}
	out.Body.Results = results
	return out, nil
}

func (s *Server) handleContext(ctx context.Context, input *contextInput) (*contextOutput, error) {
	text, err := s.services.Search().Context(ctx, input.Query, input.MaxChunks)
	if err != nil {
		return nil, httpError("building context", err)
	}
	out := &contextOutput{}
	out.Body.Context = text
	return out, nil
}

func (s *Server) handleStats(_ context.Context, _ *struct{}) (*statsOutput, error) {
	return &statsOutput{Body: s.services.Documents().Stats()}, nil
}

// httpError maps a coded error onto its HTTP status.
func httpError(op string, err error) error {
	status := chunkerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Warn("request failed", "op", op, "status", status, "code", chunkerr.CodeOf(err), "error", err)
	}
	return huma.NewError(status, fmt.Sprintf("%s: %v", op, err))
}
