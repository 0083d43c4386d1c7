// Copyright 2025 James Ross
package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, "deliveryd:jobs")
}

func TestPushPopRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Push(ctx, 7); err != nil {
		t.Fatal(err)
	}
	id, ok, err := q.PopBlocking(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || id != 7 {
		t.Fatalf("expected id=7 ok=true, got id=%d ok=%v", id, ok)
	}
}

func TestPopBlockingTimesOut(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, ok, err := q.PopBlocking(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected timeout with ok=false")
	}
}

func TestFIFOOrdering(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := q.Push(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []int64{1, 2, 3} {
		got, ok, err := q.PopBlocking(ctx, 100*time.Millisecond)
		if err != nil || !ok {
			t.Fatalf("pop failed: %v ok=%v", err, ok)
		}
		if got != want {
			t.Fatalf("expected %d got %d", want, got)
		}
	}
}
