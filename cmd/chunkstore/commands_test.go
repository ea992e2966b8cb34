// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigil-dev/chunkstore/internal/config"
	"github.com/sigil-dev/chunkstore/internal/embedding"
	"github.com/sigil-dev/chunkstore/internal/knowledge"
	"github.com/sigil-dev/chunkstore/internal/retrieval"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notes = "The quick brown fox jumps over the lazy dog. Foxes are small omnivorous mammals."

func TestRootCommand_Help(t *testing.T) {
	out, err := execute(t, nil, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"add", "search", "context", "documents", "stats", "clear", "serve", "init", "secret", "doctor", "version"} {
		assert.Contains(t, out, sub)
	}
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "--data-dir")
	assert.Contains(t, out, "--verbose")
}

func TestVersionCommand(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chunkstore dev")
}

func TestMissingConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := execute(t, nil, "--config", "/nonexistent/chunkstore.yaml", "stats")
	require.Error(t, err)
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeConfigLoadReadFailure))
}

func TestBootstrapsDefaultConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	_, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, ".config", "chunkstore", "chunkstore.yaml"))
}

func TestInvalidConfigIsRejected(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capacity:\n  max_tokens: 0\nchunking:\n  chunk_size: 10\n  overlap: 10\n"), 0o600))

	_, err := execute(t, nil, "--config", path, "stats")
	require.Error(t, err)
	assert.True(t, chunkerr.IsConfigError(err))
	assert.Contains(t, err.Error(), "capacity.max_tokens")
	assert.Contains(t, err.Error(), "chunking.overlap")
}

func TestAdd_StoresAndDeduplicates(t *testing.T) {
	env := newTestEnv(t, "")
	path := env.writeFile(t, "notes.txt", notes)
	id := knowledge.DocumentID(notes, "notes.txt")

	out, err := env.run(t, "add", path)
	require.NoError(t, err)
	assert.Contains(t, out, "stored notes.txt as "+id)

	out, err = env.run(t, "add", path)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt already stored as "+id)

	out, err = env.run(t, "documents")
	require.NoError(t, err)
	assert.Contains(t, out, id)
}

func TestAdd_Metadata(t *testing.T) {
	env := newTestEnv(t, "")
	path := env.writeFile(t, "notes.txt", notes)
	metaFile := env.writeFile(t, "meta.yaml", "source: wiki\nlang: en\n")

	_, err := env.run(t, "add", path, "--name", "Fox Facts", "--meta-file", metaFile, "--meta", "lang=de", "--meta", "team=docs")
	require.NoError(t, err)

	out, err := env.run(t, "documents", "--json")
	require.NoError(t, err)

	var docs []documentSummary
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Fox Facts", docs[0].Name)
	assert.Equal(t, map[string]string{"source": "wiki", "lang": "de", "team": "docs"}, docs[0].Metadata)
	assert.Positive(t, docs[0].TotalTokens)
	assert.Positive(t, docs[0].Chunks)
}

func TestAdd_Stdin(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := env.runWithInput(t, strings.NewReader(notes), "add", "-", "--name", "piped")
	require.NoError(t, err)
	assert.Contains(t, out, "stored piped as "+knowledge.DocumentID(notes, "piped"))
}

func TestAdd_InputErrors(t *testing.T) {
	env := newTestEnv(t, "")
	a := env.writeFile(t, "a.txt", "alpha")
	b := env.writeFile(t, "b.txt", "beta")
	empty := env.writeFile(t, "empty.txt", "   \n")

	tests := []struct {
		name string
		args []string
		code chunkerr.Code
	}{
		{"name with several files", []string{"add", a, b, "--name", "x"}, chunkerr.CodeCLIInputInvalid},
		{"malformed meta", []string{"add", a, "--meta", "novalue"}, chunkerr.CodeCLIInputInvalid},
		{"empty meta key", []string{"add", a, "--meta", "=v"}, chunkerr.CodeCLIInputInvalid},
		{"missing file", []string{"add", filepath.Join(t.TempDir(), "nope.txt")}, chunkerr.CodeCLIInputInvalid},
		{"missing meta file", []string{"add", a, "--meta-file", filepath.Join(t.TempDir(), "nope.yaml")}, chunkerr.CodeCLIInputInvalid},
		{"blank document", []string{"add", empty}, chunkerr.CodeStoreDocumentInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.True(t, chunkerr.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestAdd_OversizedDocument(t *testing.T) {
	env := newTestEnv(t, "")
	path := env.writeFile(t, "big.txt", strings.Repeat("word ", 3000))

	_, err := env.run(t, "add", path)
	require.Error(t, err)
	assert.True(t, chunkerr.IsCapacityExceeded(err))
}

func TestSearchAndContext(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "add", env.writeFile(t, "notes.txt", notes))
	require.NoError(t, err)

	out, err := env.run(t, "search", "quick", "brown", "fox", "--json", "-k", "3")
	require.NoError(t, err)

	var results []retrieval.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "notes.txt", results[0].DocumentName)
	assert.Contains(t, results[0].Content, "quick brown fox")

	out, err = env.run(t, "search", "quick brown fox")
	require.NoError(t, err)
	assert.Contains(t, out, "1. notes.txt (chunk 0")

	out, err = env.run(t, "context", "quick brown fox", "--max-chunks", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "[Source: notes.txt, chunk 0]")
}

func TestSearch_ScopedToOtherDocument(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "add", env.writeFile(t, "notes.txt", notes))
	require.NoError(t, err)

	out, err := env.run(t, "search", "fox", "--document", "unknown_0000000000000000")
	require.NoError(t, err)
	assert.Contains(t, out, retrieval.NoContextFound)
}

func TestSearch_InvalidK(t *testing.T) {
	env := newTestEnv(t, "")

	_, err := env.run(t, "search", "fox", "-k", "0")
	require.Error(t, err)
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeRetrievalQueryInvalid))
}

func TestSearch_WithoutEmbedder(t *testing.T) {
	env := newTestEnv(t, "")
	useEmbedder(t, func(context.Context, *config.Config) embedding.Gateway { return nil })

	out, err := env.run(t, "add", env.writeFile(t, "notes.txt", notes))
	require.NoError(t, err)
	assert.Contains(t, out, "stored notes.txt")

	out, err = env.run(t, "search", "fox")
	require.NoError(t, err)
	assert.Contains(t, out, retrieval.NoContextFound)

	out, err = env.run(t, "context", "fox")
	require.NoError(t, err)
	assert.Contains(t, out, retrieval.NoContextFound)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "add", env.writeFile(t, "notes.txt", notes))
	require.NoError(t, err)

	out, err := env.run(t, "stats", "--json")
	require.NoError(t, err)

	var stats knowledge.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1000, stats.MaxTokens)
	assert.Positive(t, stats.CurrentTokens)
	assert.True(t, stats.TokenizerDegraded)
	assert.True(t, stats.EmbeddingAvailable)

	out, err = env.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "documents")
	assert.Contains(t, out, "/ 1000")
	assert.Contains(t, out, "estimated")
}

func TestStats_EncryptionEnabled(t *testing.T) {
	env := newTestEnv(t, "encryption:\n  enabled: true\n  key_backend: file\n")

	out, err := env.run(t, "stats", "--json")
	require.NoError(t, err)

	var stats knowledge.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.True(t, stats.EncryptionEnabled)
	assert.FileExists(t, filepath.Join(env.dataDir, "chunkstore.key"))
}

func TestDataDirFlagOverridesConfig(t *testing.T) {
	env := newTestEnv(t, "")
	other := t.TempDir()

	_, err := env.run(t, "--data-dir", other, "add", env.writeFile(t, "notes.txt", notes))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(other, "catalog.db"))
	out, err := env.run(t, "documents")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents stored.")
}

func TestClear(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.run(t, "add", env.writeFile(t, "notes.txt", notes))
	require.NoError(t, err)

	_, err = env.run(t, "clear")
	require.Error(t, err)
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeCLIInputInvalid))

	out, err := env.run(t, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 documents.")

	out, err = env.run(t, "documents")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents stored.")
}

func TestKeyringAPIKeyIsResolved(t *testing.T) {
	env := newTestEnv(t, "")
	cfg := strings.Replace(mustRead(t, env.cfgPath), "api_key: test-key", "api_key: keyring://chunkstore/openai-api-key", 1)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(cfg), 0o600))

	store := newMockSecretStore()
	require.NoError(t, store.Store("chunkstore", "openai-api-key", "sk-from-keyring"))
	useSecretStore(t, store)

	var seen string
	useEmbedder(t, func(_ context.Context, cfg *config.Config) embedding.Gateway {
		seen = cfg.Embedding.APIKey
		return nil
	})

	_, err := env.run(t, "stats")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", seen)
}

func TestDoctor(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := env.run(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "Config:")
	assert.Contains(t, out, "loaded from "+env.cfgPath)
	assert.Contains(t, out, fmt.Sprintf("%-20s %s", "Tokenizer:", "disabled, estimating from word counts"))
	assert.Contains(t, out, fmt.Sprintf("%-20s %s", "Encryption:", "disabled"))
	assert.Contains(t, out, fmt.Sprintf("%-20s %s", "Embedding:", "openai (text-embedding-3-small, 8 dims)"))
	assert.Contains(t, out, "Disk Space:")
}

func TestTokenizerStatus(t *testing.T) {
	assert.Equal(t, "disabled, estimating from word counts", tokenizerStatus("none", true, ""))
	assert.Equal(t, "cl100k_base (BPE cache /var/cache/bpe)", tokenizerStatus("cl100k_base", false, "/var/cache/bpe"))

	degraded := tokenizerStatus("cl100k_base", true, "/tmp/data-gym-cache")
	assert.Contains(t, degraded, "cl100k_base unavailable")
	assert.Contains(t, degraded, "downloaded on first use")
	assert.Contains(t, degraded, "TIKTOKEN_CACHE_DIR")
	assert.Contains(t, degraded, "/tmp/data-gym-cache")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
	assert.Equal(t, "1.5 GB", formatBytes(3*1024*1024*1024/2))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t\tc", 10))
	assert.Equal(t, "abc…", snippet("abcdef", 3))
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
