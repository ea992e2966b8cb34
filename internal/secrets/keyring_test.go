// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets_test

import (
	"testing"

	"github.com/sigil-dev/chunkstore/internal/secrets"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func init() {
	keyring.MockInit()
}

var _ secrets.Store = (*secrets.KeyringStore)(nil)

func TestKeyringStore_StoreAndRetrieve(t *testing.T) {
	ks := secrets.NewKeyringStore()
	svc := "test-store-retrieve"

	require.NoError(t, ks.Store(svc, "openai-api-key", "sk-secret-123"))

	val, err := ks.Retrieve(svc, "openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-123", val)
}

func TestKeyringStore_NotFound(t *testing.T) {
	ks := secrets.NewKeyringStore()

	_, err := ks.Retrieve("no-such-service", "no-key")
	require.Error(t, err)
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeSecretNotFound), "got %v", err)

	err = ks.Delete("no-such-service", "no-key")
	require.Error(t, err)
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeSecretNotFound), "got %v", err)
}

func TestKeyringStore_Delete(t *testing.T) {
	ks := secrets.NewKeyringStore()
	svc := "test-delete"

	require.NoError(t, ks.Store(svc, "key-x", "val"))
	require.NoError(t, ks.Store(svc, "key-y", "val"))
	require.NoError(t, ks.Delete(svc, "key-x"))

	_, err := ks.Retrieve(svc, "key-x")
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeSecretNotFound))

	keys, err := ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-y"}, keys)

	require.NoError(t, ks.Delete(svc, "key-y"))
	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestKeyringStore_ListKeepsOrderWithoutDuplicates(t *testing.T) {
	ks := secrets.NewKeyringStore()
	svc := "test-list"

	keys, err := ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, ks.Store(svc, "key-a", "1"))
	require.NoError(t, ks.Store(svc, "key-b", "2"))
	require.NoError(t, ks.Store(svc, "key-a", "3"))

	keys, err = ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-a", "key-b"}, keys)

	val, err := ks.Retrieve(svc, "key-a")
	require.NoError(t, err)
	assert.Equal(t, "3", val)
}

func TestKeyringStore_RejectsEmptyReference(t *testing.T) {
	ks := secrets.NewKeyringStore()

	tests := []struct {
		name    string
		service string
		key     string
	}{
		{"empty service", "", "key"},
		{"empty key", "svc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, chunkerr.HasCode(ks.Store(tt.service, tt.key, "v"), chunkerr.CodeSecretInvalidInput))
			_, err := ks.Retrieve(tt.service, tt.key)
			assert.True(t, chunkerr.HasCode(err, chunkerr.CodeSecretInvalidInput))
			assert.True(t, chunkerr.HasCode(ks.Delete(tt.service, tt.key), chunkerr.CodeSecretInvalidInput))
		})
	}
}

func TestKeyringStore_EmptyValueAllowed(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("test-empty", "key", ""))

	val, err := ks.Retrieve("test-empty", "key")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestKeyringStore_IsolatedServices(t *testing.T) {
	ks := secrets.NewKeyringStore()

	require.NoError(t, ks.Store("svc-a", "shared", "value-a"))
	require.NoError(t, ks.Store("svc-b", "shared", "value-b"))

	valA, err := ks.Retrieve("svc-a", "shared")
	require.NoError(t, err)
	assert.Equal(t, "value-a", valA)

	valB, err := ks.Retrieve("svc-b", "shared")
	require.NoError(t, err)
	assert.Equal(t, "value-b", valB)
}
