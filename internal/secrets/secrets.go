// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps credentials such as embedding API keys in the OS
// keyring and resolves keyring:// references found in configuration.
package secrets

// Service is the keyring service under which chunkstore keeps its entries.
const Service = "chunkstore"

// Store provides secret storage keyed by service and key name.
type Store interface {
	Store(service, key, value string) error

	// Retrieve returns an error coded secret.entry.not_found for unknown keys.
	Retrieve(service, key string) (string, error)

	// Delete returns an error coded secret.entry.not_found for unknown keys.
	Delete(service, key string) error

	// List returns the key names saved under service, in insertion order.
	List(service string) ([]string, error)
}

// URI returns the keyring:// reference for key under the chunkstore service.
func URI(key string) string {
	return keyringScheme + Service + "/" + key
}
