// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces consecutive sends at least interval apart.
// The first Wait returns immediately. A zero interval never blocks.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewPacer creates a pacer allowing one send per interval with no burst.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait blocks until the next send is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Interval returns the configured spacing.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Sleep pauses for d unless ctx is done first. A non-positive d returns at once.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
