// Copyright 2025 James Ross
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartSweepSchedule runs SweepOnce every checkInterval on a robfig/cron
// @every schedule. When sessionTTL > 0 a second entry on the same
// scheduler evicts stale search/admin sessions.
func StartSweepSchedule(c *Controller, checkInterval string, sessionTTL time.Duration) (*cron.Cron, error) {
	sched := cron.New()
	_, err := sched.AddFunc(fmt.Sprintf("@every %s", checkInterval), func() {
		if err := c.SweepOnce(context.Background()); err != nil && c.log != nil {
			c.log.Error("access sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule access sweep: %w", err)
	}
	if sessionTTL > 0 {
		_, err = sched.AddFunc(fmt.Sprintf("@every %s", checkInterval), func() {
			n, err := c.store.CleanupSessions(context.Background(), sessionTTL)
			if err != nil {
				if c.log != nil {
					c.log.Error("session cleanup failed", zap.Error(err))
				}
				return
			}
			if n > 0 && c.log != nil {
				c.log.Debug("sessions evicted", zap.Int64("count", n))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule session cleanup: %w", err)
		}
	}
	sched.Start()
	return sched, nil
}
