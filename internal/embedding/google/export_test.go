// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import "google.golang.org/genai"

// BuildConfig exposes buildConfig for white-box testing.
var BuildConfig = func(dimensions int) *genai.EmbedContentConfig {
	return buildConfig(dimensions)
}
