// Copyright 2025 James Ross
package breaker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// In HalfOpen only a single probe may be in flight, no matter how many
// goroutines race Allow.
func TestHalfOpenAdmitsSingleProbeUnderLoad(t *testing.T) {
	cb := New(20*time.Millisecond, 50*time.Millisecond, 0.5, 2)
	cb.Record(false)
	cb.Record(false)
	if cb.State() != Open {
		t.Fatalf("expected open after 2 failures, got %v", cb.State())
	}

	time.Sleep(60 * time.Millisecond)

	const n = 100
	race := func() int32 {
		var admitted int32
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				if cb.Allow() {
					atomic.AddInt32(&admitted, 1)
				}
			}()
		}
		wg.Wait()
		return admitted
	}

	if got := race(); got != 1 {
		t.Fatalf("expected exactly 1 admitted probe, got %d", got)
	}

	// failed probe reopens; next cooldown yields one more probe slot
	cb.Record(false)
	if cb.State() != Open {
		t.Fatalf("expected open after failed probe, got %v", cb.State())
	}
	time.Sleep(60 * time.Millisecond)
	if got := race(); got != 1 {
		t.Fatalf("expected exactly 1 admitted probe in second cycle, got %d", got)
	}

	cb.Record(true)
	if cb.State() != Closed {
		t.Fatalf("expected closed after successful probe, got %v", cb.State())
	}
}
