// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package knowledge

import (
	"github.com/sigil-dev/chunkstore/pkg/health"
)

// Stats is a consistent snapshot of the store.
type Stats struct {
	Documents          int             `json:"documents"`
	Chunks             int             `json:"chunks"`
	CurrentTokens      int             `json:"current_tokens"`
	MaxTokens          int             `json:"max_tokens"`
	UsagePercent       float64         `json:"usage_percent"`
	EncryptionEnabled  bool            `json:"encryption_enabled"`
	TokenizerDegraded  bool            `json:"tokenizer_degraded"`
	EmbeddingAvailable bool            `json:"embedding_available"`
	Embedding          *health.Metrics `json:"embedding,omitempty"`
}

type healthReporter interface {
	Metrics() health.Metrics
}

// Stats returns counters taken under a single read lock.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Documents:     len(s.docs),
		Chunks:        s.chunkCount,
		CurrentTokens: s.currentTokens,
		MaxTokens:     s.maxTokens,
	}
	s.mu.RUnlock()

	st.UsagePercent = float64(st.CurrentTokens) / float64(st.MaxTokens) * 100
	st.EncryptionEnabled = s.cipher.Enabled()
	st.TokenizerDegraded = s.counter.Degraded()

	if s.embedder != nil {
		st.EmbeddingAvailable = true
		if hr, ok := s.embedder.(healthReporter); ok {
			m := hr.Metrics()
			st.Embedding = &m
			st.EmbeddingAvailable = m.Available
		}
	}
	return st
}
