// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package tokenizertest provides deterministic tokenizers for tests.
package tokenizertest

import (
	"strings"
	"sync"
)

// Words treats every whitespace-separated word as exactly one token.
// Decode joins words with single spaces, so re-encoding a decoded window
// yields the same token count.
type Words struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

// NewWords returns an empty vocabulary.
func NewWords() *Words {
	return &Words{ids: make(map[string]int)}
}

func (w *Words) Encode(text string) []int {
	fields := strings.Fields(text)

	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]int, len(fields))
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

func (w *Words) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	parts := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if id >= 0 && id < len(w.words) {
			parts = append(parts, w.words[id])
		}
	}
	return strings.Join(parts, " ")
}

// Text returns n distinct words prefixed by tag, i.e. a document of n tokens.
func Text(tag string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tag)
		b.WriteString(itoa(i))
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
