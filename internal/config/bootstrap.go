// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

//go:embed chunkstore.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/chunkstore/chunkstore.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", chunkerr.Errorf(chunkerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "chunkstore", "chunkstore.yaml"), nil
}

// BootstrapConfig writes the default commented config to the default path if
// it does not already exist. See BootstrapConfigAt.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}
	return BootstrapConfigAt(cfgPath)
}

// BootstrapConfigAt writes the default config to cfgPath. Returns the path
// written, or empty string if the file already existed or could not be
// written (logged and skipped).
func BootstrapConfigAt(cfgPath string) string {
	if _, err := os.Stat(cfgPath); err == nil {
		return ""
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return ""
	}

	if err := os.WriteFile(cfgPath, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", cfgPath, "error", err)
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}
