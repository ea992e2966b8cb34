// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/sigil-dev/chunkstore/internal/embedding"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-004"

func init() {
	embedding.RegisterProvider("google", func(ctx context.Context, cfg embedding.Config) (embedding.Gateway, error) {
		return New(ctx, cfg)
	})
}

// Gateway implements embedding.Gateway using the Gemini EmbedContent API.
type Gateway struct {
	client     *genai.Client
	model      string
	dimensions int
}

// New creates a Google embedding gateway. Returns an error if the API key or
// dimensions are missing.
func New(ctx context.Context, cfg embedding.Config) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, chunkerr.New(chunkerr.CodeEmbeddingRequestInvalid, "google: missing api_key in config", chunkerr.FieldProvider("google"))
	}
	if cfg.Dimensions <= 0 {
		return nil, chunkerr.Errorf(chunkerr.CodeEmbeddingRequestInvalid, "google: dimensions must be positive, got %d", cfg.Dimensions)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, chunkerr.Wrapf(err, chunkerr.CodeEmbeddingUpstreamFailure, "google: creating client")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Gateway{client: client, model: model, dimensions: cfg.Dimensions}, nil
}

func (g *Gateway) Name() string    { return "google" }
func (g *Gateway) Dimensions() int { return g.dimensions }
func (g *Gateway) Close() error    { return nil }

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), buildConfig(g.dimensions))
	if err != nil {
		return nil, fmt.Errorf("google: embedding content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, chunkerr.New(chunkerr.CodeEmbeddingResponseInvalid, "google: response contained no embeddings", chunkerr.FieldProvider("google"))
	}

	return resp.Embeddings[0].Values, nil
}

func buildConfig(dimensions int) *genai.EmbedContentConfig {
	dims := int32(dimensions)
	return &genai.EmbedContentConfig{OutputDimensionality: &dims}
}
