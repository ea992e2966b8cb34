// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level chunkstore configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Capacity   CapacityConfig   `mapstructure:"capacity"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Tokenizer  TokenizerConfig  `mapstructure:"tokenizer"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Index      IndexConfig      `mapstructure:"index"`
	Server     ServerConfig     `mapstructure:"server"`
}

// StorageConfig selects the vector index and catalog backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// CapacityConfig sets the global token budget.
type CapacityConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
}

// ChunkingConfig controls chunk window size and overlap, in tokens.
type ChunkingConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	Overlap   int `mapstructure:"overlap"`
}

// TokenizerConfig selects the tiktoken encoding. "none" forces word-count estimation.
type TokenizerConfig struct {
	Encoding string `mapstructure:"encoding"`
}

// EncryptionConfig controls at-rest encryption of chunk text.
type EncryptionConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	KeyBackend string `mapstructure:"key_backend"`
}

// EmbeddingConfig selects and configures the embedding gateway.
type EmbeddingConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Dimensions  int           `mapstructure:"dimensions"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// IndexConfig bounds retries of vector index writes.
type IndexConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen      string          `mapstructure:"listen"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per client IP. Zero requests_per_second
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("capacity.max_tokens", 100000)
	v.SetDefault("chunking.chunk_size", 512)
	v.SetDefault("chunking.overlap", 50)
	v.SetDefault("tokenizer.encoding", "cl100k_base")
	v.SetDefault("encryption.enabled", false)
	v.SetDefault("encryption.key_backend", "file")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.cooldown", "30s")
	v.SetDefault("index.max_attempts", 3)
	v.SetDefault("index.retry_backoff", "100ms")
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.requests_per_second", 0.0)
	v.SetDefault("server.rate_limit.burst", 20)
}

// SetupEnv enables CHUNKSTORE_ prefixed environment overrides
// (CHUNKSTORE_CAPACITY_MAX_TOKENS, CHUNKSTORE_EMBEDDING_API_KEY, ...).
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("CHUNKSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, chunkerr.Errorf(chunkerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
		WarnInsecurePermissions(path)
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, chunkerr.Errorf(chunkerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, chunkerr.Errorf(chunkerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// ResolveDataDir returns the configured data directory, or ~/.chunkstore.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chunkstore"
	}
	return filepath.Join(home, ".chunkstore")
}

// EmbeddingEnabled reports whether an embedding gateway should be built.
// A provider without an API key runs the store without vectors.
func (c *Config) EmbeddingEnabled() bool {
	return c.Embedding.Provider != "none" && c.Embedding.APIKey != ""
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateCapacity()...)
	errs = append(errs, c.validateEncryption()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func invalid(format string, args ...any) error {
	return chunkerr.Errorf(chunkerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, invalid("storage.backend must be one of [sqlite, memory], got %q", c.Storage.Backend))
	}

	return errs
}

func (c *Config) validateCapacity() []error {
	var errs []error

	if c.Capacity.MaxTokens <= 0 {
		errs = append(errs, invalid("capacity.max_tokens must be greater than 0, got %d", c.Capacity.MaxTokens))
	}

	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, invalid("chunking.chunk_size must be greater than 0, got %d", c.Chunking.ChunkSize))
	}

	if c.Chunking.Overlap < 0 {
		errs = append(errs, invalid("chunking.overlap must not be negative, got %d", c.Chunking.Overlap))
	} else if c.Chunking.ChunkSize > 0 && c.Chunking.Overlap >= c.Chunking.ChunkSize {
		errs = append(errs, invalid("chunking.overlap (%d) must be less than chunking.chunk_size (%d)",
			c.Chunking.Overlap, c.Chunking.ChunkSize,
		))
	}

	return errs
}

func (c *Config) validateEncryption() []error {
	var errs []error

	validBackends := map[string]bool{"file": true, "keyring": true}
	if !validBackends[c.Encryption.KeyBackend] {
		errs = append(errs, invalid("encryption.key_backend must be one of [file, keyring], got %q", c.Encryption.KeyBackend))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	validProviders := map[string]bool{"openai": true, "google": true, "none": true}
	if !validProviders[c.Embedding.Provider] {
		errs = append(errs, invalid("embedding.provider must be one of [openai, google, none], got %q", c.Embedding.Provider))
	}

	if c.Embedding.Provider == "none" {
		return errs
	}

	if c.Embedding.Model == "" {
		errs = append(errs, invalid("embedding.model must not be empty"))
	}

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, invalid("embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}

	if c.Embedding.Timeout <= 0 {
		errs = append(errs, invalid("embedding.timeout must be greater than 0, got %s", c.Embedding.Timeout))
	}

	if c.Embedding.Concurrency <= 0 {
		errs = append(errs, invalid("embedding.concurrency must be greater than 0, got %d", c.Embedding.Concurrency))
	}

	if c.Embedding.Cooldown < 0 {
		errs = append(errs, invalid("embedding.cooldown must not be negative, got %s", c.Embedding.Cooldown))
	}

	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error

	if c.Index.MaxAttempts <= 0 {
		errs = append(errs, invalid("index.max_attempts must be greater than 0, got %d", c.Index.MaxAttempts))
	}

	if c.Index.RetryBackoff < 0 {
		errs = append(errs, invalid("index.retry_backoff must not be negative, got %s", c.Index.RetryBackoff))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
	}

	rl := c.Server.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be positive when a rate is set, got %d", rl.Burst))
	}

	return errs
}
