// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"sync"
	"time"

	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/sigil-dev/chunkstore/pkg/health"
)

// DefaultHealthCooldown is how long the gateway is skipped after a failed
// embedding call.
const DefaultHealthCooldown = 30 * time.Second

// Failure classifies a failed embedding call for accounting.
type Failure int

const (
	// FailureUpstream is a provider error: HTTP status, transport or auth.
	FailureUpstream Failure = iota
	// FailureTimeout is a call that hit the per-request deadline.
	FailureTimeout
	// FailureInvalidResponse is a reply the store cannot use, such as a
	// vector of the wrong dimension.
	FailureInvalidResponse
)

func (f Failure) String() string {
	switch f {
	case FailureTimeout:
		return "timeout"
	case FailureInvalidResponse:
		return "invalid_response"
	default:
		return "upstream"
	}
}

// failureOf maps a classified embedding error to its accounting bucket.
func failureOf(err error) Failure {
	switch {
	case chunkerr.HasCode(err, chunkerr.CodeEmbeddingTimeout):
		return FailureTimeout
	case chunkerr.HasCode(err, chunkerr.CodeEmbeddingResponseInvalid):
		return FailureInvalidResponse
	default:
		return FailureUpstream
	}
}

// HealthTracker records the outcome of embedding calls. Any failure starts a
// cooldown during which the gateway reports unavailable; a success ends it.
type HealthTracker struct {
	mu       sync.RWMutex
	cooldown time.Duration
	nowFunc  func() time.Time // for testing

	healthy     bool
	failedAt    time.Time
	lastFailure Failure
	requests    int64
	failures    [3]int64
	consecutive int64
}

// NewHealthTracker creates a HealthTracker that starts healthy.
// Returns an error if cooldown is zero or negative.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, chunkerr.Errorf(chunkerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// isHealthyLocked requires at least h.mu.RLock.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.requests++
	h.consecutive = 0
	h.mu.Unlock()
}

// RecordFailure marks the gateway unhealthy and counts the failure under its
// kind.
func (h *HealthTracker) RecordFailure(kind Failure) {
	if kind < FailureUpstream || kind > FailureInvalidResponse {
		kind = FailureUpstream
	}
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.lastFailure = kind
	h.requests++
	h.failures[kind]++
	h.consecutive++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of the tracker's state.
func (h *HealthTracker) Metrics(gateway string) health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		Gateway:             gateway,
		Requests:            h.requests,
		UpstreamErrors:      h.failures[FailureUpstream],
		Timeouts:            h.failures[FailureTimeout],
		InvalidResponses:    h.failures[FailureInvalidResponse],
		ConsecutiveFailures: h.consecutive,
		Available:           h.isHealthyLocked(),
	}
	m.FailureCount = m.UpstreamErrors + m.Timeouts + m.InvalidResponses

	if m.FailureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
		m.LastFailure = h.lastFailure.String()
	}

	if !m.Available {
		cooldownEnd := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &cooldownEnd
	}
	return m
}
