// Copyright 2025 James Ross

// Package breaker is a sliding-window circuit breaker. The messenger
// driver routes every outbound platform call through one so a run of
// flood-control or server errors short-circuits further sends for a
// cooldown window instead of hammering a struggling backend.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half_open"
	default:
		return "open"
	}
}

type outcome struct {
	at time.Time
	ok bool
}

// CircuitBreaker trips Open when the failure rate over the sliding window
// reaches threshold (given at least minSamples outcomes). After cooldown
// it admits a single half-open probe; the probe's outcome decides between
// Closed and another Open period.
type CircuitBreaker struct {
	mu sync.Mutex

	window     time.Duration
	cooldown   time.Duration
	threshold  float64
	minSamples int

	state       State
	since       time.Time // instant of the last state change
	outcomes    []outcome
	probeActive bool
}

func New(window, cooldown time.Duration, threshold float64, minSamples int) *CircuitBreaker {
	return &CircuitBreaker{
		window:     window,
		cooldown:   cooldown,
		threshold:  threshold,
		minSamples: minSamples,
		state:      Closed,
		since:      time.Now(),
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed right now. In HalfOpen exactly
// one caller wins the probe slot until its Record arrives.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case Closed:
		return true
	case Open:
		if time.Since(cb.since) < cb.cooldown {
			return false
		}
		cb.transition(HalfOpen)
		cb.probeActive = true
		return true
	default: // HalfOpen
		if cb.probeActive {
			return false
		}
		cb.probeActive = true
		return true
	}
}

// Record feeds a call outcome back into the window and resolves a pending
// half-open probe.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.prune(now)
	cb.outcomes = append(cb.outcomes, outcome{at: now, ok: ok})

	if cb.state == HalfOpen {
		cb.probeActive = false
		if ok {
			cb.transition(Closed)
		} else {
			cb.transition(Open)
		}
		return
	}

	if cb.state == Closed && len(cb.outcomes) >= cb.minSamples && cb.failureRate() >= cb.threshold {
		cb.transition(Open)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	cb.state = to
	cb.since = time.Now()
}

func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.window)
	kept := cb.outcomes[:0]
	for _, o := range cb.outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	cb.outcomes = kept
}

func (cb *CircuitBreaker) failureRate() float64 {
	if len(cb.outcomes) == 0 {
		return 0
	}
	fails := 0
	for _, o := range cb.outcomes {
		if !o.ok {
			fails++
		}
	}
	return float64(fails) / float64(len(cb.outcomes))
}
