// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health

import "time"

// Metrics exposes the current health state of the embedding gateway for
// monitoring and operator visibility. All fields are point-in-time snapshots
// safe to serialize to JSON.
//
// FailureCount is the sum of Timeouts, UpstreamErrors and InvalidResponses.
// ConsecutiveFailures resets on the first successful call.
type Metrics struct {
	Gateway             string     `json:"gateway"`
	Requests            int64      `json:"requests"`
	FailureCount        int64      `json:"failure_count"`
	Timeouts            int64      `json:"timeouts"`
	UpstreamErrors      int64      `json:"upstream_errors"`
	InvalidResponses    int64      `json:"invalid_responses"`
	ConsecutiveFailures int64      `json:"consecutive_failures"`
	LastFailure         string     `json:"last_failure,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	Available           bool       `json:"available"`
}
