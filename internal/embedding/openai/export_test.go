// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import openaisdk "github.com/openai/openai-go"

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(model string, dimensions int, text string) openaisdk.EmbeddingNewParams {
	return buildParams(model, dimensions, text)
}
