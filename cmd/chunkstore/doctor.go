// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sigil-dev/chunkstore/internal/cipher"
	"github.com/sigil-dev/chunkstore/internal/config"
	"github.com/sigil-dev/chunkstore/internal/secrets"
	"github.com/sigil-dev/chunkstore/internal/store/sqlite"
	"github.com/sigil-dev/chunkstore/internal/tokenizer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func newDoctorCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check configuration, storage, tokenizer, encryption key, embedding credentials and disk space.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, v)
		},
	}
}

type doctorCheck struct {
	name string
	fn   func() string
}

func runDoctor(cmd *cobra.Command, v *viper.Viper) error {
	w := cmd.OutOrStdout()

	checks := []doctorCheck{
		{"Binary", checkBinary},
		{"Config", func() string { return checkConfigFile(v) }},
	}

	cfg, err := loadConfig(v)
	if err != nil {
		checks = append(checks, doctorCheck{"Validation", func() string { return "error: " + err.Error() }})
	} else {
		dataDir := cfg.ResolveDataDir()
		checks = append(checks,
			doctorCheck{"Data Dir", func() string { return checkDataDir(dataDir) }},
			doctorCheck{"Storage", func() string { return checkStorage(cfg, dataDir) }},
			doctorCheck{"Tokenizer", func() string { return checkTokenizer(cfg) }},
			doctorCheck{"Encryption", func() string { return checkEncryption(cfg, dataDir) }},
			doctorCheck{"Embedding", func() string { return checkEmbedding(cfg) }},
			doctorCheck{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
		)
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("chunkstore %s (%s/%s, %s)", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfigFile(v *viper.Viper) string {
	if f := v.ConfigFileUsed(); f != "" {
		return "loaded from " + f
	}
	return "using defaults (no config file found)"
}

func checkDataDir(dataDir string) string {
	info, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%s (not created yet)", dataDir)
		}
		return fmt.Sprintf("error: %s", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("error: %s is not a directory", dataDir)
	}
	return dataDir
}

func checkStorage(cfg *config.Config, dataDir string) string {
	if cfg.Storage.Backend != "sqlite" {
		return cfg.Storage.Backend + " (not persisted)"
	}
	catalog := filepath.Join(dataDir, sqlite.CatalogFile)
	if _, err := os.Stat(catalog); err != nil {
		return "sqlite (empty)"
	}
	return "sqlite at " + catalog
}

func checkTokenizer(cfg *config.Config) string {
	enc := strings.ToLower(strings.TrimSpace(cfg.Tokenizer.Encoding))
	if enc == "" || enc == "none" {
		return tokenizerStatus(enc, true, "")
	}
	return tokenizerStatus(enc, tokenizer.Open(enc).Degraded(), tokenizer.CacheDir())
}

// tokenizerStatus describes the tokenizer. tiktoken fetches BPE files over
// the network unless they are already in the cache directory.
func tokenizerStatus(encoding string, degraded bool, cacheDir string) string {
	switch {
	case encoding == "" || encoding == "none":
		return "disabled, estimating from word counts"
	case degraded:
		return fmt.Sprintf("%s unavailable, estimating from word counts (BPE file is downloaded on first use; "+
			"pre-populate %s for offline hosts, currently %s)", encoding, tokenizer.CacheDirEnv, cacheDir)
	default:
		return fmt.Sprintf("%s (BPE cache %s)", encoding, cacheDir)
	}
}

func checkEncryption(cfg *config.Config, dataDir string) string {
	if !cfg.Encryption.Enabled {
		return "disabled"
	}
	keys := cipher.NewKeyStore(cfg.Encryption.KeyBackend, dataDir)
	if _, err := keys.Load(); err != nil {
		return fmt.Sprintf("enabled, key not loadable from %s: %s", keys, err)
	}
	return "enabled, key in " + keys.String()
}

func checkEmbedding(cfg *config.Config) string {
	switch {
	case cfg.Embedding.Provider == providerNone:
		return "disabled"
	case cfg.Embedding.APIKey == "":
		return fmt.Sprintf("%s: no api_key configured (run 'chunkstore init')", cfg.Embedding.Provider)
	case secrets.IsKeyringURI(cfg.Embedding.APIKey):
		return fmt.Sprintf("%s: %s not found in keyring", cfg.Embedding.Provider, cfg.Embedding.APIKey)
	}
	return fmt.Sprintf("%s (%s, %d dims)", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	return formatBytes(stat.Bavail*uint64(stat.Bsize)) + " available"
}

func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
