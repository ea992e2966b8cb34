// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package knowledge

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	maxNameBytes = 48
	hashHexChars = 16
)

// DocumentID derives the identity of a submission from its content and
// name only: sanitize(name) + "_" + the first 16 hex chars of BLAKE3(content).
// Resubmitting the same content under the same name yields the same id.
func DocumentID(content, name string) string {
	sum := blake3.Sum256([]byte(content))
	return SanitizeName(name) + "_" + hex.EncodeToString(sum[:])[:hashHexChars]
}

// SanitizeName lower-cases name and collapses every run of characters
// outside [a-z0-9._-] into a single underscore. The result is at most 48
// bytes and never empty.
func SanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if isNameRune(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	out := b.String()
	if len(out) > maxNameBytes {
		out = out[:maxNameBytes]
	}
	out = strings.Trim(out, "_")
	if out == "" {
		return "doc"
	}
	return out
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-'
}
