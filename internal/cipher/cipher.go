// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package cipher encrypts chunk text at rest with XChaCha20-Poly1305.
package cipher

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size in bytes of the symmetric key.
const KeySize = chacha20poly1305.KeySize

// BlobVersion is the version byte prepended to every sealed blob. It is also
// the additional authenticated data, so tampering with it fails decryption.
const BlobVersion byte = 0x01

// BlobOverhead is 1 (version) + 24 (nonce) + 16 (Poly1305 tag).
const BlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// Cipher seals and opens chunk text. A nil or disabled Cipher passes text
// through unchanged.
type Cipher struct {
	aead cipher.AEAD
}

// New builds an enabled Cipher from a 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyInvalid, "key must be %d bytes, got %d", KeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyInvalid, "creating XChaCha20-Poly1305 cipher: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Disabled returns a pass-through Cipher.
func Disabled() *Cipher {
	return &Cipher{}
}

// Open returns an enabled Cipher keyed from keys, generating and persisting a
// key on first use. Any key failure is logged and yields a disabled Cipher.
func Open(enabled bool, keys KeyStore) *Cipher {
	if !enabled {
		return Disabled()
	}

	key, err := loadOrCreateKey(keys)
	if err == nil {
		var c *Cipher
		c, err = New(key)
		if err == nil {
			return c
		}
	}

	slog.Warn("encryption key unavailable, storing chunk text unencrypted",
		"error", chunkerr.Wrap(err, chunkerr.CodeCipherKeyUnavailable, "loading encryption key"),
	)
	return Disabled()
}

func loadOrCreateKey(keys KeyStore) ([]byte, error) {
	if keys == nil {
		return nil, chunkerr.New(chunkerr.CodeCipherKeyUnavailable, "no key store configured")
	}

	key, err := keys.Load()
	if err == nil {
		return key, nil
	}
	if !chunkerr.HasCode(err, chunkerr.CodeCipherKeyNotFound) {
		return nil, err
	}

	key = make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, chunkerr.Errorf(chunkerr.CodeCipherKeyUnavailable, "generating key: %w", err)
	}
	if err := keys.Save(key); err != nil {
		return nil, err
	}

	slog.Info("generated encryption key", "store", keys.String())
	return key, nil
}

// Enabled reports whether text is actually encrypted.
func (c *Cipher) Enabled() bool {
	return c != nil && c.aead != nil
}

// Encrypt seals plaintext into a base64 blob
// [version][24-byte nonce][ciphertext+tag].
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() {
		return plaintext, nil
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, BlobOverhead+len(plaintext))
	out[0] = BlobVersion
	nonce := out[1 : 1+chacha20poly1305.NonceSizeX]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", chunkerr.Errorf(chunkerr.CodeCipherEncryptFailure, "generating nonce: %w", err)
	}

	out = c.aead.Seal(out, nonce, []byte(plaintext), []byte{BlobVersion})
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a blob produced by Encrypt.
func (c *Cipher) Decrypt(blob string) (string, error) {
	if !c.Enabled() {
		return blob, nil
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", chunkerr.Errorf(chunkerr.CodeCipherDecryptFailure, "decoding blob: %w", err)
	}
	if len(raw) < BlobOverhead {
		return "", chunkerr.Errorf(chunkerr.CodeCipherDecryptFailure, "blob too short: %d bytes", len(raw))
	}
	if raw[0] != BlobVersion {
		return "", chunkerr.Errorf(chunkerr.CodeCipherDecryptFailure, "unsupported blob version 0x%02x", raw[0])
	}

	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := c.aead.Open(nil, nonce, raw[1+chacha20poly1305.NonceSizeX:], raw[:1])
	if err != nil {
		return "", chunkerr.Errorf(chunkerr.CodeCipherDecryptFailure, "opening blob: %w", err)
	}
	return string(plaintext), nil
}

// Reveal returns the plain text of a stored chunk. Text stored encrypted
// cannot be revealed by a disabled cipher, since the blob would otherwise be
// handed out as content.
func (c *Cipher) Reveal(stored string, encrypted bool) (string, error) {
	if !encrypted {
		return stored, nil
	}
	if !c.Enabled() {
		return "", chunkerr.New(chunkerr.CodeCipherDecryptFailure, "text is encrypted but no encryption key is loaded")
	}
	return c.Decrypt(stored)
}
