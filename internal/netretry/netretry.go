// Copyright 2025 James Ross

// Package netretry bounds retries of transient network failures around
// storage listing calls, independent of the job engine's per-job attempt
// budget.
package netretry

import (
	"context"
	"time"

	"github.com/adaspeas/deliveryd/internal/joberr"
)

// Policy caps retry attempts and the total time spent backing off.
// The zero value performs the call once with no retries.
type Policy struct {
	Attempts int
	MaxDelay time.Duration
}

// Do invokes fn, retrying transient-class errors with exponential backoff.
// Flood-class errors sleep the carried retry-after instead. Total sleep
// across all retries never exceeds MaxDelay; any other error class is
// returned immediately.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	var slept time.Duration
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.Attempts {
			return err
		}

		var d time.Duration
		switch joberr.Classify(err) {
		case joberr.ClassTransient:
			d = backoff(attempt, 500*time.Millisecond, p.MaxDelay)
		case joberr.ClassFlood:
			d, _ = joberr.RetryAfter(err)
		default:
			return err
		}
		if slept+d > p.MaxDelay {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
		slept += d
	}
}

func backoff(retries int, base, max time.Duration) time.Duration {
	d := time.Duration(1<<uint(retries-1)) * base
	if d > max || d < 0 {
		return max
	}
	return d
}
