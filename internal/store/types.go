// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"strconv"
	"strings"
	"time"
)

// PreviewRunes is the length of Document.Preview.
const PreviewRunes = 200

// Document is a stored text submission. Its content lives only in its chunks.
type Document struct {
	ID          string
	Name        string
	CreatedAt   time.Time
	Seq         int64
	TotalTokens int
	ChunkIDs    []string
	Metadata    map[string]string
	Preview     string
}

// Chunk is one token window of a document. StoredText is ciphertext when
// Encrypted is set.
type Chunk struct {
	ID         string
	DocumentID string
	ChunkIndex int
	TokenCount int
	StoredText string
	Encrypted  bool
	CreatedAt  time.Time
}

// ChunkID returns the id of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return documentID + "_chunk_" + strconv.Itoa(index)
}

// Preview returns the first PreviewRunes runes of content.
func Preview(content string) string {
	n := 0
	for i := range content {
		if n == PreviewRunes {
			return strings.TrimSpace(content[:i])
		}
		n++
	}
	return strings.TrimSpace(content)
}
