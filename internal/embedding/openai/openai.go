// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sigil-dev/chunkstore/internal/embedding"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-3-small"

func init() {
	embedding.RegisterProvider("openai", func(_ context.Context, cfg embedding.Config) (embedding.Gateway, error) {
		return New(cfg)
	})
}

// Gateway implements embedding.Gateway with the OpenAI Embeddings API. Any
// OpenAI-compatible server works through Config.BaseURL.
type Gateway struct {
	client     openaisdk.Client
	model      string
	dimensions int
}

// New creates an OpenAI embedding gateway. Returns an error if the API key
// or dimensions are missing.
func New(cfg embedding.Config) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, chunkerr.New(chunkerr.CodeEmbeddingRequestInvalid, "openai: missing api_key in config", chunkerr.FieldProvider("openai"))
	}
	if cfg.Dimensions <= 0 {
		return nil, chunkerr.Errorf(chunkerr.CodeEmbeddingRequestInvalid, "openai: dimensions must be positive, got %d", cfg.Dimensions)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Gateway{
		client:     openaisdk.NewClient(opts...),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (g *Gateway) Name() string    { return "openai" }
func (g *Gateway) Dimensions() int { return g.dimensions }
func (g *Gateway) Close() error    { return nil }

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Embeddings.New(ctx, buildParams(g.model, g.dimensions, text))
	if err != nil {
		return nil, fmt.Errorf("openai: creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, chunkerr.New(chunkerr.CodeEmbeddingResponseInvalid, "openai: response contained no embeddings", chunkerr.FieldProvider("openai"))
	}

	return toFloat32(resp.Data[0].Embedding), nil
}

func buildParams(model string, dimensions int, text string) openaisdk.EmbeddingNewParams {
	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(text),
		},
		Model:          openaisdk.EmbeddingModel(model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	// ada-002 rejects the dimensions parameter.
	if model != string(openaisdk.EmbeddingModelTextEmbeddingAda002) {
		params.Dimensions = openaisdk.Int(int64(dimensions))
	}
	return params
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
