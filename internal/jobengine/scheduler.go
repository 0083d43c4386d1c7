// Copyright 2025 James Ross
package jobengine

import (
	"context"
	"fmt"

	"github.com/adaspeas/deliveryd/internal/store"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartSyncSchedule enqueues a synthetic sync_catalog job every interval,
// skipping the enqueue whenever one is already queued or running so the
// system gets single-in-flight sync semantics without an external lock.
func (e *Engine) StartSyncSchedule(rootItemID int64, interval string) (*cron.Cron, error) {
	sched := cron.New()
	_, err := sched.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx := context.Background()
		active, err := e.store.HasActiveSyncJob(ctx)
		if err != nil {
			e.log.Error("check active sync job failed", zap.Error(err))
			return
		}
		if active {
			return
		}
		id, err := e.store.InsertJob(ctx, 0, 0, rootItemID, store.KindSyncCatalog, uuid.NewString())
		if err != nil {
			if err == store.ErrDuplicateJob {
				return
			}
			e.log.Error("insert sync job failed", zap.Error(err))
			return
		}
		if err := e.queue.Push(ctx, id); err != nil {
			e.log.Error("push sync job failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sync: %w", err)
	}
	sched.Start()
	return sched, nil
}
