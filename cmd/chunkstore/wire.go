// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sigil-dev/chunkstore/internal/chunker"
	"github.com/sigil-dev/chunkstore/internal/cipher"
	"github.com/sigil-dev/chunkstore/internal/config"
	"github.com/sigil-dev/chunkstore/internal/embedding"
	_ "github.com/sigil-dev/chunkstore/internal/embedding/google" // register google provider
	_ "github.com/sigil-dev/chunkstore/internal/embedding/openai" // register openai provider
	"github.com/sigil-dev/chunkstore/internal/knowledge"
	"github.com/sigil-dev/chunkstore/internal/retrieval"
	"github.com/sigil-dev/chunkstore/internal/secrets"
	"github.com/sigil-dev/chunkstore/internal/store"
	_ "github.com/sigil-dev/chunkstore/internal/store/memory" // register memory backend
	_ "github.com/sigil-dev/chunkstore/internal/store/sqlite" // register sqlite backend
	"github.com/sigil-dev/chunkstore/internal/tokenizer"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/spf13/viper"
)

// fallbackDimensions sizes the vector index when no embedding provider is configured.
const fallbackDimensions = 1536

// openEmbedder builds the embedding gateway, or returns nil when embeddings
// are disabled or the provider cannot be built. Tests substitute a fake.
var openEmbedder = defaultOpenEmbedder

// App holds the subsystems wired for one command invocation.
type App struct {
	Config *config.Config
	Store  *knowledge.Store
	Engine *retrieval.Engine
}

// loadConfig decodes and validates the configuration resolved by initViper.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	return config.FromViper(v)
}

// openApp loads configuration from v and wires the store.
func openApp(ctx context.Context, v *viper.Viper) (*App, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	return Wire(ctx, cfg)
}

// Wire builds the tokenizer, chunker, cipher, embedding gateway, vector index,
// catalog, store and retrieval engine described by cfg.
func Wire(ctx context.Context, cfg *config.Config) (*App, error) {
	dataDir := cfg.ResolveDataDir()

	counter := tokenizer.Open(cfg.Tokenizer.Encoding)

	ch, err := chunker.New(counter, cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	c := cipher.Open(cfg.Encryption.Enabled, cipher.NewKeyStore(cfg.Encryption.KeyBackend, dataDir))

	gw := openEmbedder(ctx, cfg)

	dims := cfg.Embedding.Dimensions
	if gw != nil {
		dims = gw.Dimensions()
	}
	if dims <= 0 {
		dims = fallbackDimensions
	}

	index, catalog, err := store.Open(cfg.Storage.Backend, dataDir, dims)
	if err != nil {
		closeEmbedder(gw)
		return nil, err
	}

	ks, err := knowledge.Open(ctx, knowledge.Options{
		Counter:       counter,
		Chunker:       ch,
		Cipher:        c,
		Embedder:      gw,
		Index:         index,
		Catalog:       catalog,
		MaxTokens:     cfg.Capacity.MaxTokens,
		Concurrency:   cfg.Embedding.Concurrency,
		IndexAttempts: cfg.Index.MaxAttempts,
		IndexBackoff:  cfg.Index.RetryBackoff,
	})
	if err != nil {
		closeEmbedder(gw)
		return nil, errors.Join(err, index.Close(), catalog.Close())
	}

	slog.Debug("chunkstore wired",
		"backend", cfg.Storage.Backend,
		"data_dir", dataDir,
		"embedding", gw != nil,
		"encryption", c.Enabled(),
		"tokenizer_degraded", counter.Degraded(),
	)

	return &App{
		Config: cfg,
		Store:  ks,
		Engine: retrieval.New(ks, gw, index, c),
	}, nil
}

// Close shuts the store down, closing the embedder, index and catalog.
func (a *App) Close() error {
	return a.Store.Shutdown()
}

func defaultOpenEmbedder(ctx context.Context, cfg *config.Config) embedding.Gateway {
	if !cfg.EmbeddingEnabled() {
		slog.Warn("embedding disabled, documents are stored without vectors", "provider", cfg.Embedding.Provider)
		return nil
	}
	if secrets.IsKeyringURI(cfg.Embedding.APIKey) {
		slog.Warn("embedding API key could not be resolved from the keyring, documents are stored without vectors",
			"provider", cfg.Embedding.Provider)
		return nil
	}

	gw, err := embedding.Open(ctx, cfg.Embedding.Provider, embedding.Config{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		MaxRetries: 2,
	}, cfg.Embedding.Timeout, cfg.Embedding.Cooldown)
	if err != nil {
		slog.Warn("embedding provider unavailable, documents are stored without vectors",
			"provider", cfg.Embedding.Provider,
			"error", chunkerr.Wrap(err, chunkerr.CodeEmbeddingUnavailable, "opening embedding provider"),
		)
		return nil
	}
	return gw
}

func closeEmbedder(gw embedding.Gateway) {
	if gw == nil {
		return
	}
	if err := gw.Close(); err != nil {
		slog.Debug("closing embedding gateway", "error", err)
	}
}
