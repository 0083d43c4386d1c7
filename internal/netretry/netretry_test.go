// Copyright 2025 James Ross
package netretry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adaspeas/deliveryd/internal/joberr"
)

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	p := Policy{Attempts: 3, MaxDelay: 10 * time.Second}
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return joberr.Transient(errors.New("blip"))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryableClass(t *testing.T) {
	p := Policy{Attempts: 5, MaxDelay: 10 * time.Second}
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return joberr.NotFound(errors.New("gone"))
	})
	if joberr.Classify(err) != joberr.ClassNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDoZeroPolicyCallsOnce(t *testing.T) {
	var p Policy
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return joberr.Transient(errors.New("blip"))
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single failing call, got calls=%d err=%v", calls, err)
	}
}

func TestDoBoundsTotalBackoff(t *testing.T) {
	p := Policy{Attempts: 10, MaxDelay: 1 * time.Millisecond}
	calls := 0
	start := time.Now()
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return joberr.Transient(errors.New("blip"))
	})
	if err == nil {
		t.Fatal("expected error after budget exhaustion")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("backoff exceeded ceiling: %v", elapsed)
	}
}

func TestBackoffDoubles(t *testing.T) {
	base := 100 * time.Millisecond
	max := 5 * time.Second
	for i, want := range []time.Duration{base, 2 * base, 4 * base, 8 * base} {
		if got := backoff(i+1, base, max); got != want {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, want)
		}
	}
	if got := backoff(30, base, max); got != max {
		t.Errorf("expected cap at %v, got %v", max, got)
	}
}
