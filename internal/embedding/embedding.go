// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding defines the embedding gateway used to vectorize chunks
// and queries, plus a provider registry populated by adapter packages.
package embedding

import (
	"context"
	"sort"
	"sync"
	"time"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// Gateway turns text into a fixed-size vector.
type Gateway interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}

// Config carries the provider-independent settings passed to a Factory.
type Config struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	MaxRetries int
}

// Factory builds a Gateway for one provider.
type Factory func(ctx context.Context, cfg Config) (Gateway, error)

var (
	registryMu sync.RWMutex
	providers  = map[string]Factory{}
)

// RegisterProvider makes a provider available to Open. Adapter packages call
// it from init(). Registering the same name twice panics.
func RegisterProvider(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := providers[name]; dup {
		panic("embedding: provider registered twice: " + name)
	}
	providers[name] = factory
}

// Providers lists registered provider names in sorted order.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the named provider and wraps it with a per-call timeout and
// cooldown health tracking.
func Open(ctx context.Context, provider string, cfg Config, timeout, cooldown time.Duration) (*Tracked, error) {
	registryMu.RLock()
	factory, ok := providers[provider]
	registryMu.RUnlock()

	if !ok {
		return nil, chunkerr.New(chunkerr.CodeConfigValidateInvalidValue,
			"embedding provider not registered", chunkerr.FieldProvider(provider))
	}

	gw, err := factory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewTracked(gw, timeout, cooldown), nil
}
