// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/chunkstore/internal/knowledge"
	"github.com/sigil-dev/chunkstore/internal/retrieval"
	"github.com/sigil-dev/chunkstore/internal/server"
	"github.com/sigil-dev/chunkstore/internal/store"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubDocuments{}, stubSearch{})
	if err != nil {
		return nil, chunkerr.Wrapf(err, chunkerr.CodeCLISetupFailure, "creating services")
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, chunkerr.Wrapf(err, chunkerr.CodeCLISetupFailure, "creating server")
	}
	defer func() { _ = srv.Close() }()
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubDocuments struct{}

func (stubDocuments) AddDocument(context.Context, string, string, map[string]string) (knowledge.AddResult, error) {
	return knowledge.AddResult{}, nil
}
func (stubDocuments) Documents() []store.Document    { return nil }
func (stubDocuments) ClearAll(context.Context) error { return nil }
func (stubDocuments) Stats() knowledge.Stats         { return knowledge.Stats{} }

type stubSearch struct{}

func (stubSearch) Search(context.Context, string, int, retrieval.Scope) ([]retrieval.Result, error) {
	return nil, nil
}
func (stubSearch) Context(context.Context, string, int) (string, error) { return "", nil }
