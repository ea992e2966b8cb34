// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/sigil-dev/chunkstore/internal/config"
	"github.com/sigil-dev/chunkstore/internal/embedding"
	"github.com/sigil-dev/chunkstore/internal/embedding/embeddingtest"
	"github.com/sigil-dev/chunkstore/internal/secrets"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testDims = 8

// testEnv isolates HOME, writes a sqlite-backed config into a temp dir and
// swaps the embedder for a deterministic fake.
type testEnv struct {
	cfgPath string
	dataDir string
	home    string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()

	env := &testEnv{
		home:    t.TempDir(),
		dataDir: t.TempDir(),
	}
	t.Setenv("HOME", env.home)

	env.cfgPath = filepath.Join(t.TempDir(), "chunkstore.yaml")
	body := fmt.Sprintf(`data_dir: %q
storage:
  backend: sqlite
tokenizer:
  encoding: none
capacity:
  max_tokens: 1000
chunking:
  chunk_size: 100
  overlap: 20
embedding:
  provider: openai
  api_key: test-key
  dimensions: %d
index:
  retry_backoff: 1ms
%s`, env.dataDir, testDims, extra)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(body), 0o600))

	useEmbedder(t, func(context.Context, *config.Config) embedding.Gateway {
		return embeddingtest.New(testDims)
	})
	useSecretStore(t, newMockSecretStore())

	return env
}

func useEmbedder(t *testing.T, fn func(context.Context, *config.Config) embedding.Gateway) {
	t.Helper()
	prev := openEmbedder
	openEmbedder = fn
	t.Cleanup(func() { openEmbedder = prev })
}

func useSecretStore(t *testing.T, store secrets.Store) {
	t.Helper()
	prev := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }
	t.Cleanup(func() { secretStoreFactory = prev })
}

// run executes the root command with --config pointing at the env config.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runWithInput(t, nil, args...)
}

func (e *testEnv) runWithInput(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	return execute(t, stdin, append([]string{"--config", e.cfgPath}, args...)...)
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(io.Discard)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

// mockSecretStore is an in-memory secrets.Store.
type mockSecretStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMockSecretStore() *mockSecretStore {
	return &mockSecretStore{data: map[string]map[string]string{}}
}

func (m *mockSecretStore) Store(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[service] == nil {
		m.data[service] = map[string]string{}
	}
	m.data[service][key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[service][key]
	if !ok {
		return "", chunkerr.Errorf(chunkerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return val, nil
}

func (m *mockSecretStore) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[service][key]; !ok {
		return chunkerr.Errorf(chunkerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	delete(m.data[service], key)
	return nil
}

func (m *mockSecretStore) List(service string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data[service]))
	for k := range m.data[service] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func fakeGateway(t *testing.T, dims int) embedding.Gateway {
	t.Helper()
	return embeddingtest.New(dims)
}
