// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := chunkerr.New(
		chunkerr.CodeStoreCapacityExceeded,
		"document larger than budget",
		chunkerr.FieldDocumentID("notes_abc"),
		chunkerr.Field("needed", 1200),
	)

	require.Error(t, err)
	assert.Equal(t, chunkerr.CodeStoreCapacityExceeded, chunkerr.CodeOf(err))
	assert.True(t, chunkerr.HasCode(err, chunkerr.CodeStoreCapacityExceeded))

	fields := chunkerr.FieldsOf(err)
	assert.Equal(t, "notes_abc", fields["document_id"])
	assert.Equal(t, 1200, fields["needed"])
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := chunkerr.Errorf(chunkerr.CodeChunkerConfigInvalid, "overlap %d must be less than chunk size %d", 100, 100)
	require.Error(t, err)
	assert.Equal(t, chunkerr.CodeChunkerConfigInvalid, chunkerr.CodeOf(err))
	assert.Contains(t, err.Error(), "overlap 100 must be less than chunk size 100")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := chunkerr.Errorf(chunkerr.CodeStoreCatalogFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, chunkerr.CodeStoreCatalogFailure, chunkerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("vec0 locked")
	err := chunkerr.Wrap(root, chunkerr.CodeIndexFailure, "upserting chunk", chunkerr.FieldChunkID("doc_chunk_0"))

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, chunkerr.IsIndexFailure(err))
	assert.Equal(t, "doc_chunk_0", chunkerr.FieldsOf(err)["chunk_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, chunkerr.Wrap(nil, chunkerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, chunkerr.Wrapf(nil, chunkerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, chunkerr.With(nil, chunkerr.FieldBackend("sqlite")))
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := chunkerr.New(chunkerr.CodeEmbeddingTimeout, "deadline exceeded")
	withCtx := chunkerr.With(base, chunkerr.FieldProvider("openai"))

	assert.Equal(t, chunkerr.CodeEmbeddingTimeout, chunkerr.CodeOf(withCtx))
	assert.Equal(t, "openai", chunkerr.FieldsOf(withCtx)["provider"])
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := chunkerr.With(stderrors.New("something broke"), chunkerr.FieldBackend("memory"))
	assert.Equal(t, chunkerr.CodeServerInternalFailure, chunkerr.CodeOf(enriched))
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := chunkerr.New(chunkerr.CodeEmbeddingUpstreamFailure, "429")
	outer := chunkerr.Wrap(inner, chunkerr.CodeServerInternalFailure, "handler")
	assert.Equal(t, chunkerr.CodeEmbeddingUpstreamFailure, chunkerr.CodeOf(outer))
}

func TestCodeOfPlainAndNil(t *testing.T) {
	assert.Equal(t, chunkerr.Code(""), chunkerr.CodeOf(nil))
	assert.Equal(t, chunkerr.Code(""), chunkerr.CodeOf(stderrors.New("plain")))
	assert.Nil(t, chunkerr.FieldsOf(nil))
	assert.Nil(t, chunkerr.FieldsOf(fmt.Errorf("plain")))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := chunkerr.New(chunkerr.CodeIndexFailure, "oops",
		chunkerr.Field("", "dropped"),
		chunkerr.FieldBackend("sqlite"),
	)
	fields := chunkerr.FieldsOf(err)
	assert.Equal(t, "sqlite", fields["backend"])
	assert.NotContains(t, fields, "")
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   chunkerr.Code
		status int
		check  func(error) bool
	}{
		{name: "capacity exceeded", code: chunkerr.CodeStoreCapacityExceeded, status: 413, check: chunkerr.IsCapacityExceeded},
		{name: "chunker config", code: chunkerr.CodeChunkerConfigInvalid, status: 400, check: chunkerr.IsConfigError},
		{name: "config value", code: chunkerr.CodeConfigValidateInvalidValue, status: 400, check: chunkerr.IsConfigError},
		{name: "document invalid", code: chunkerr.CodeStoreDocumentInvalid, status: 400, check: chunkerr.IsInvalidInput},
		{name: "query invalid", code: chunkerr.CodeRetrievalQueryInvalid, status: 400, check: chunkerr.IsInvalidInput},
		{name: "request invalid", code: chunkerr.CodeServerRequestInvalid, status: 400, check: chunkerr.IsInvalidInput},
		{name: "embedding unavailable", code: chunkerr.CodeEmbeddingUnavailable, status: 503, check: chunkerr.IsUnavailable},
		{name: "cipher unavailable", code: chunkerr.CodeCipherKeyUnavailable, status: 503, check: chunkerr.IsUnavailable},
		{name: "store closed", code: chunkerr.CodeStoreClosed, status: 503, check: func(err error) bool { return chunkerr.HasCode(err, chunkerr.CodeStoreClosed) }},
		{name: "embedding timeout", code: chunkerr.CodeEmbeddingTimeout, status: 504, check: chunkerr.IsTimeout},
		{name: "embedding upstream", code: chunkerr.CodeEmbeddingUpstreamFailure, status: 502, check: chunkerr.IsUpstreamFailure},
		{name: "index failure", code: chunkerr.CodeIndexFailure, status: 500, check: chunkerr.IsIndexFailure},
		{name: "internal", code: chunkerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !chunkerr.IsCapacityExceeded(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chunkerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, chunkerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain"), chunkerr.New(chunkerr.CodeStoreCatalogFailure, "db")} {
		assert.False(t, chunkerr.IsCapacityExceeded(err))
		assert.False(t, chunkerr.IsConfigError(err))
		assert.False(t, chunkerr.IsInvalidInput(err))
		assert.False(t, chunkerr.IsUnavailable(err))
		assert.False(t, chunkerr.IsTimeout(err))
		assert.False(t, chunkerr.IsUpstreamFailure(err))
		assert.False(t, chunkerr.IsIndexFailure(err))
	}
}

func TestHTTPStatusNilAndPlain(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, chunkerr.HTTPStatus(nil))
	assert.Equal(t, http.StatusInternalServerError, chunkerr.HTTPStatus(stderrors.New("oops")))
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := chunkerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, chunkerr.CodeServerInternalFailure, chunkerr.CodeOf(joined))
}

func TestJoinAllNil(t *testing.T) {
	assert.NoError(t, chunkerr.Join(nil, nil))
}

func TestCodesAreDistinct(t *testing.T) {
	codes := []chunkerr.Code{
		chunkerr.CodeChunkerConfigInvalid,
		chunkerr.CodeStoreCapacityExceeded,
		chunkerr.CodeCipherKeyUnavailable,
		chunkerr.CodeEmbeddingUnavailable,
		chunkerr.CodeEmbeddingUpstreamFailure,
		chunkerr.CodeEmbeddingTimeout,
		chunkerr.CodeIndexFailure,
		chunkerr.CodeStoreDocumentInvalid,
		chunkerr.CodeStoreCatalogFailure,
		chunkerr.CodeStoreClosed,
		chunkerr.CodeRetrievalQueryInvalid,
	}

	seen := make(map[chunkerr.Code]bool, len(codes))
	for _, c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}
