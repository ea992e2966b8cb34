// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/sigil-dev/chunkstore/pkg/health"
)

// Tracked wraps a Gateway with a per-call timeout, response validation and
// cooldown health tracking. While the gateway is cooling down after a
// failure, calls fail fast with embedding.gateway.unavailable.
type Tracked struct {
	inner   Gateway
	timeout time.Duration
	health  *HealthTracker
}

// NewTracked wraps gw. A non-positive timeout disables the per-call deadline;
// a non-positive cooldown uses DefaultHealthCooldown.
func NewTracked(gw Gateway, timeout, cooldown time.Duration) *Tracked {
	if cooldown <= 0 {
		cooldown = DefaultHealthCooldown
	}
	h, _ := NewHealthTracker(cooldown)
	return &Tracked{inner: gw, timeout: timeout, health: h}
}

func (t *Tracked) Name() string    { return t.inner.Name() }
func (t *Tracked) Dimensions() int { return t.inner.Dimensions() }
func (t *Tracked) Close() error    { return t.inner.Close() }

// Health exposes the tracker for tests and the stats endpoint.
func (t *Tracked) Health() *HealthTracker { return t.health }

// Metrics returns the gateway health snapshot.
func (t *Tracked) Metrics() health.Metrics {
	return t.health.Metrics(t.inner.Name())
}

func (t *Tracked) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, chunkerr.New(chunkerr.CodeEmbeddingRequestInvalid, "cannot embed empty text",
			chunkerr.FieldProvider(t.inner.Name()))
	}

	if !t.health.IsHealthy() {
		return nil, chunkerr.New(chunkerr.CodeEmbeddingUnavailable, "embedding gateway cooling down after failure",
			chunkerr.FieldProvider(t.inner.Name()))
	}

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	vec, err := t.inner.Embed(callCtx, text)
	if err == nil && len(vec) != t.inner.Dimensions() {
		err = chunkerr.Errorf(chunkerr.CodeEmbeddingResponseInvalid,
			"embedding has %d dimensions, want %d", len(vec), t.inner.Dimensions())
	}
	if err != nil {
		err = classify(callCtx, err)
		// Caller cancellation says nothing about the gateway's health.
		if ctx.Err() == nil {
			t.health.RecordFailure(failureOf(err))
		}
		slog.Warn("embedding request failed", "provider", t.inner.Name(),
			"failure", failureOf(err).String(), "error", err)
		return nil, chunkerr.With(err, chunkerr.FieldProvider(t.inner.Name()))
	}

	t.health.RecordSuccess()
	return vec, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return chunkerr.Wrapf(err, chunkerr.CodeEmbeddingTimeout, "embedding request timed out")
	}
	if chunkerr.CodeOf(err) != "" {
		return err
	}
	return chunkerr.Wrapf(err, chunkerr.CodeEmbeddingUpstreamFailure, "embedding request failed")
}
