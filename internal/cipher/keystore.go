// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cipher

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"

	"github.com/sigil-dev/chunkstore/internal/config"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/zalando/go-keyring"
)

// KeyFileName is the key file created inside the data directory.
const KeyFileName = "chunkstore.key"

// KeyStore persists the encryption key. Load returns an error coded
// cipher.key.not_found when no key has been saved yet.
type KeyStore interface {
	Load() ([]byte, error)
	Save(key []byte) error
	String() string
}

// FileKeyStore keeps the raw key bytes in a 0600 file.
type FileKeyStore struct {
	Path string
}

// NewFileKeyStore returns a FileKeyStore at <dataDir>/chunkstore.key.
func NewFileKeyStore(dataDir string) *FileKeyStore {
	return &FileKeyStore{Path: filepath.Join(dataDir, KeyFileName)}
}

func (s *FileKeyStore) Load() ([]byte, error) {
	key, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyNotFound, "key file %s not found", s.Path)
		}
		return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyUnavailable, "reading key file %s: %w", s.Path, err)
	}

	config.WarnInsecurePermissions(s.Path)

	if len(key) != KeySize {
		return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyInvalid, "key file %s holds %d bytes, want %d", s.Path, len(key), KeySize)
	}
	return key, nil
}

func (s *FileKeyStore) Save(key []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return chunkerr.Errorf(chunkerr.CodeCipherKeyUnavailable, "creating key directory: %w", err)
	}
	if err := os.WriteFile(s.Path, key, 0o600); err != nil {
		return chunkerr.Errorf(chunkerr.CodeCipherKeyUnavailable, "writing key file %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileKeyStore) String() string {
	return "file:" + s.Path
}

// KeyringKeyStore keeps the key base64-encoded in the OS keyring
// (Keychain, secret-service or Credential Manager).
type KeyringKeyStore struct {
	Service string
	User    string
}

// NewKeyringKeyStore returns a KeyringKeyStore with the default service and user.
func NewKeyringKeyStore() *KeyringKeyStore {
	return &KeyringKeyStore{Service: "chunkstore", User: "encryption-key"}
}

func (s *KeyringKeyStore) Load() ([]byte, error) {
	val, err := keyring.Get(s.Service, s.User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyNotFound, "keyring entry %s/%s not found", s.Service, s.User)
		}
		return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyUnavailable, "reading keyring entry %s/%s: %w", s.Service, s.User, err)
	}

	key, err := base64.StdEncoding.DecodeString(val)
	if err != nil {
		return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyInvalid, "decoding keyring entry %s/%s: %w", s.Service, s.User, err)
	}
	if len(key) != KeySize {
		return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyInvalid, "keyring entry %s/%s holds %d bytes, want %d", s.Service, s.User, len(key), KeySize)
	}
	return key, nil
}

func (s *KeyringKeyStore) Save(key []byte) error {
	if err := keyring.Set(s.Service, s.User, base64.StdEncoding.EncodeToString(key)); err != nil {
		return chunkerr.Errorf(chunkerr.CodeCipherKeyUnavailable, "writing keyring entry %s/%s: %w", s.Service, s.User, err)
	}
	return nil
}

func (s *KeyringKeyStore) String() string {
	return "keyring:" + s.Service + "/" + s.User
}

// NewKeyStore selects a key backend by name ("file" or "keyring").
func NewKeyStore(backend, dataDir string) KeyStore {
	if backend == "keyring" {
		return NewKeyringKeyStore()
	}
	return NewFileKeyStore(dataDir)
}
