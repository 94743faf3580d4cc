// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package upstream

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/cmdbsync/internal/metrics"
)

// Limiter throttles calls to one upstream system. All companies of a run
// share the same limiter, so parallel workers cannot flood the API.
type Limiter struct {
	system string
	rl     *rate.Limiter
}

// NewLimiter allows perSecond requests with the given burst. perSecond <= 0
// disables throttling.
func NewLimiter(system string, perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{system: system}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{system: system, rl: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.rl == nil {
		return nil
	}
	start := time.Now()
	if err := l.rl.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.RecordThrottleWait(l.system, waited)
	}
	return nil
}
