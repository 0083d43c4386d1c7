// Copyright 2025 James Ross

// Package queue is the durable job queue: a single named Redis list of
// decimal job-id payloads shared by producers and the worker loop.
package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Queue struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client, key string) *Queue {
	return &Queue{rdb: rdb, key: key}
}

// Push durably enqueues id at the tail of the list.
func (q *Queue) Push(ctx context.Context, id int64) error {
	return q.rdb.RPush(ctx, q.key, strconv.FormatInt(id, 10)).Err()
}

// PopBlocking waits up to timeout for an id, returning ok=false on timeout.
func (q *Queue) PopBlocking(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	// BLPop returns [key, value]
	if len(res) != 2 {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Len reports the current queue depth, used for the QueueDepth gauge.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
