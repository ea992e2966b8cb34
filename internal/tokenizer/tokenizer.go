// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tokenizer

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tiktoken "github.com/pkoukk/tiktoken-go"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// CacheDirEnv names the directory tiktoken reads BPE files from. Without a
// cached file the encoding is downloaded on first use, so offline hosts must
// pre-populate this directory.
const CacheDirEnv = "TIKTOKEN_CACHE_DIR"

// wordTokenRatio approximates tokens per whitespace word when no tokenizer is loaded.
const wordTokenRatio = 0.75

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Tiktoken adapts a tiktoken BPE encoding to Tokenizer.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, chunkerr.Wrapf(err, chunkerr.CodeTokenizerLoadFailure, "loading tiktoken encoding %s", encoding)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// CacheDir reports where BPE files are cached, following the same lookup
// order as tiktoken.
func CacheDir() string {
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		return dir
	}
	if dir := os.Getenv("DATA_GYM_CACHE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "data-gym-cache")
}

// Counter counts tokens exactly through a Tokenizer, or approximates them
// from word counts when none is available.
type Counter struct {
	tok Tokenizer
}

// NewCounter returns a Counter over tok. A nil tok puts the counter in
// degraded mode.
func NewCounter(tok Tokenizer) *Counter {
	if tok == nil {
		slog.Warn("no tokenizer available, token counts are approximated from word counts",
			"ratio", wordTokenRatio)
	}
	return &Counter{tok: tok}
}

// Open builds a Counter for the configured encoding. An empty encoding or
// "none" selects degraded mode; a load failure is logged and also degrades.
func Open(encoding string) *Counter {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "none":
		return NewCounter(nil)
	}

	tok, err := NewTiktoken(encoding)
	if err != nil {
		slog.Warn("tokenizer unavailable, BPE files are downloaded on first use unless cached",
			"encoding", encoding, "cache_dir", CacheDir(), "cache_env", CacheDirEnv, "error", err)
		return NewCounter(nil)
	}
	return NewCounter(tok)
}

// Count returns the number of tokens in text. Empty text counts as zero.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.tok == nil {
		return int(float64(len(strings.Fields(text))) * wordTokenRatio)
	}
	return len(c.tok.Encode(text))
}

// Tokenizer returns the underlying tokenizer, nil in degraded mode.
func (c *Counter) Tokenizer() Tokenizer {
	return c.tok
}

// Degraded reports whether counts are approximations.
func (c *Counter) Degraded() bool {
	return c.tok == nil
}
