// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sigil-dev/chunkstore/internal/config"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfigPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config", "chunkstore.yaml")
	prev := configPathForWrite
	configPathForWrite = func() (string, error) { return path, nil }
	t.Cleanup(func() { configPathForWrite = prev })
	return path
}

func useKeyValidator(t *testing.T, fn func(ctx context.Context, provider, key string) error) {
	t.Helper()
	prev := validateEmbeddingKey
	validateEmbeddingKey = fn
	t.Cleanup(func() { validateEmbeddingKey = prev })
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds msgs to the model and returns the final model and last command.
func press(t *testing.T, m initModel, msgs ...tea.Msg) (initModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		var ok bool
		m, ok = next.(initModel)
		require.True(t, ok)
	}
	return m, cmd
}

func TestInitWizard_OpenAIFlow(t *testing.T) {
	cfgPath := useConfigPath(t)
	store := newMockSecretStore()

	var validated string
	useKeyValidator(t, func(_ context.Context, provider, key string) error {
		validated = provider + ":" + key
		return nil
	})

	m := newInitModel(store)
	assert.Contains(t, m.View(), "Embedding provider")

	m, _ = press(t, m, key("enter"))
	require.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, providerOpenAI, m.result.Provider)

	m, cmd := press(t, m, key("sk-test"), key("enter"))
	require.Equal(t, stepValidateKey, m.step)
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Validating openai API key")

	msg := validateKeyCmd(m.result.Provider, m.result.APIKey)()
	assert.Equal(t, "openai:sk-test", validated)
	m, _ = press(t, m, msg)
	require.Equal(t, stepEncryption, m.step)

	m, cmd = press(t, m, key("down"), key("enter"))
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	require.Equal(t, stepDone, m.step)
	assert.Equal(t, cfgPath, m.configPath)
	assert.Contains(t, m.View(), "Setup complete")

	secret, err := store.Retrieve("chunkstore", "openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", secret)

	raw, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "keyring://chunkstore/openai-api-key")
	assert.NotContains(t, string(raw), "sk-test")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.True(t, cfg.Encryption.Enabled)
	assert.Equal(t, "file", cfg.Encryption.KeyBackend)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestInitWizard_NoProviderSkipsKey(t *testing.T) {
	cfgPath := useConfigPath(t)
	store := newMockSecretStore()

	m := newInitModel(store)
	m, _ = press(t, m, key("down"), key("down"), key("down"), key("enter"))
	require.Equal(t, providerNone, m.result.Provider)
	require.Equal(t, stepEncryption, m.step)

	m, cmd := press(t, m, key("j"), key("j"), key("j"), key("enter"))
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	require.Equal(t, stepDone, m.step)

	keys, err := store.List("chunkstore")
	require.NoError(t, err)
	assert.Empty(t, keys)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Embedding.Provider)
	assert.True(t, cfg.Encryption.Enabled)
	assert.Equal(t, "keyring", cfg.Encryption.KeyBackend)
	assert.False(t, cfg.EmbeddingEnabled())
}

func TestInitWizard_InvalidKeyReturnsToInput(t *testing.T) {
	useConfigPath(t)

	m := newInitModel(newMockSecretStore())
	m, _ = press(t, m, key("down"), key("enter"))
	require.Equal(t, providerGoogle, m.result.Provider)

	m, _ = press(t, m, key("enter"))
	assert.Equal(t, stepAPIKey, m.step)
	assert.Equal(t, "API key must not be empty", m.validationErr)

	m, _ = press(t, m, key("bad"), key("enter"), keyInvalidMsg{err: errors.New("401 unauthorized")})
	assert.Equal(t, stepAPIKey, m.step)
	assert.Contains(t, m.View(), "401 unauthorized")

	m, _ = press(t, m, key("esc"))
	assert.Equal(t, stepProvider, m.step)
}

func TestInitWizard_ExistingConfigNeedsForce(t *testing.T) {
	cfgPath := useConfigPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfgPath), 0o700))
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  backend: memory\n"), 0o600))

	result := initResult{Provider: providerNone}

	_, err := storeSecretAndWriteConfig(result, newMockSecretStore(), false)
	require.Error(t, err)
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeConfigAlreadyExists))

	m, _ := press(t, newInitModel(newMockSecretStore()), writeConfigCmd(result, newMockSecretStore(), false)())
	assert.Equal(t, stepError, m.step)
	assert.Contains(t, m.View(), "Setup failed")

	path, err := storeSecretAndWriteConfig(result, newMockSecretStore(), true)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)
}

func TestGenerateConfigYAML_Google(t *testing.T) {
	raw, err := GenerateConfigYAML(initResult{Provider: providerGoogle, APIKey: "secret"})
	require.NoError(t, err)

	out := string(raw)
	assert.True(t, strings.HasPrefix(out, "# chunkstore configuration"))
	assert.Contains(t, out, "provider: google")
	assert.Contains(t, out, "model: text-embedding-004")
	assert.Contains(t, out, "dimensions: 768")
	assert.Contains(t, out, "api_key: keyring://chunkstore/google-api-key")
	assert.Contains(t, out, "enabled: false")
	assert.NotContains(t, out, "secret\n")
}

func TestInitCommand_RequiresTerminal(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := execute(t, strings.NewReader(""), "init")
	require.Error(t, err)
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeCLISetupFailure))
}
