// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tokenizertest

// Bytes makes every byte of the UTF-8 input one token, like the byte
// fallback of a BPE encoding. Decoding a slice that cuts through a rune
// yields invalid UTF-8.
type Bytes struct{}

func (Bytes) Encode(text string) []int {
	out := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = int(text[i])
	}
	return out
}

func (Bytes) Decode(tokens []int) string {
	buf := make([]byte, len(tokens))
	for i, t := range tokens {
		buf[i] = byte(t)
	}
	return string(buf)
}
