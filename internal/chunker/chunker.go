// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/sigil-dev/chunkstore/internal/tokenizer"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
)

const (
	// DefaultChunkSize is the default window size in tokens.
	DefaultChunkSize = 512
	// DefaultOverlap is the default number of tokens shared by adjacent windows.
	DefaultOverlap = 50
)

// Piece is one chunk of text together with its token count.
type Piece struct {
	Text   string
	Tokens int
}

// Chunker splits text into overlapping token windows.
type Chunker struct {
	counter   *tokenizer.Counter
	chunkSize int
	overlap   int
}

// New returns a Chunker. The window advances by chunkSize-overlap tokens, so
// overlap must be strictly smaller than chunkSize.
func New(counter *tokenizer.Counter, chunkSize, overlap int) (*Chunker, error) {
	if counter == nil {
		return nil, chunkerr.New(chunkerr.CodeChunkerConfigInvalid, "chunker: token counter is required")
	}
	if chunkSize <= 0 {
		return nil, chunkerr.Errorf(chunkerr.CodeChunkerConfigInvalid,
			"chunker: chunk size must be greater than 0, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, chunkerr.Errorf(chunkerr.CodeChunkerConfigInvalid,
			"chunker: overlap must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, chunkerr.Errorf(chunkerr.CodeChunkerConfigInvalid,
			"chunker: overlap %d must be less than chunk size %d", overlap, chunkSize)
	}

	return &Chunker{counter: counter, chunkSize: chunkSize, overlap: overlap}, nil
}

func (c *Chunker) ChunkSize() int { return c.chunkSize }
func (c *Chunker) Overlap() int   { return c.overlap }

// Split tokenizes text once and decodes each window back to text. The result
// is non-empty for any text containing at least one token.
func (c *Chunker) Split(text string) []Piece {
	if tok := c.counter.Tokenizer(); tok != nil {
		tokens := tok.Encode(text)
		return c.window(len(tokens), runeBoundaries(tok, tokens), func(start, end int) string {
			return tok.Decode(tokens[start:end])
		})
	}

	// Degraded mode: words stand in for tokens.
	words := strings.Fields(text)
	return c.window(len(words), func(int) bool { return true }, func(start, end int) string {
		return strings.Join(words[start:end], " ")
	})
}

// runeBoundaries reports whether a window may start or end before token i.
// Byte-level encodings split multi-byte runes across tokens; cutting there
// would decode to invalid UTF-8.
func runeBoundaries(tok tokenizer.Tokenizer, tokens []int) func(i int) bool {
	var raw []byte
	offsets := make([]int, len(tokens)+1)
	for i := range tokens {
		raw = append(raw, tok.Decode(tokens[i:i+1])...)
		offsets[i+1] = len(raw)
	}
	return func(i int) bool {
		if i <= 0 || i >= len(tokens) || offsets[i] >= len(raw) {
			return true
		}
		return utf8.RuneStart(raw[offsets[i]])
	}
}

// window slides chunkSize-token windows with the configured overlap. Edges
// that fall inside a rune move back to the previous boundary; a window with
// no boundary inside grows to the next one.
func (c *Chunker) window(total int, boundary func(int) bool, decode func(start, end int) string) []Piece {
	if total == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap
	pieces := make([]Piece, 0, Count(total, c.chunkSize, c.overlap))

	for start := 0; ; {
		end := min(start+c.chunkSize, total)
		for end > start && !boundary(end) {
			end--
		}
		if end == start {
			end = min(start+c.chunkSize, total)
			for !boundary(end) {
				end++
			}
		}

		text := decode(start, end)
		pieces = append(pieces, Piece{Text: text, Tokens: c.counter.Count(text)})
		if end == total {
			break
		}

		next := min(start+step, end)
		for next > start && !boundary(next) {
			next--
		}
		if next == start {
			next = end
		}
		start = next
	}

	return pieces
}

// Count returns how many windows Split produces for a text of total tokens:
// ceil((total-overlap)/(chunkSize-overlap)), and 1 for any non-empty text
// that fits in a single window.
func Count(total, chunkSize, overlap int) int {
	if total <= 0 {
		return 0
	}
	if total <= chunkSize {
		return 1
	}
	step := chunkSize - overlap
	return (total - overlap + step - 1) / step
}
