// Copyright 2025 James Ross

// Package jobengine is the worker loop: pop-blocking dispatch, the job
// state machine, the retry policy matrix, terminal-failure notifications
// and the periodic sync scheduler.
package jobengine

import (
	"context"
	"fmt"
	"time"

	"github.com/adaspeas/deliveryd/internal/catalog"
	"github.com/adaspeas/deliveryd/internal/delivery"
	"github.com/adaspeas/deliveryd/internal/joberr"
	"github.com/adaspeas/deliveryd/internal/messenger"
	"github.com/adaspeas/deliveryd/internal/obs"
	"github.com/adaspeas/deliveryd/internal/queue"
	"github.com/adaspeas/deliveryd/internal/store"
	"go.uber.org/zap"
)

// Options tunes one engine instance.
type Options struct {
	AdminIDs        []int64
	AdminNotifyChat int64 // optional dedicated admin chat, 0 disables
	MaxAttempts     int
	CatalogRoot     string
	SyncMaxNodes    int
	// Flood retry-after hints are honoured inline, without burning a job
	// attempt, up to FloodRetries sleeps totalling at most FloodMaxWait.
	FloodRetries int
	FloodMaxWait time.Duration
}

type Engine struct {
	store    *store.Store
	queue    *queue.Queue
	delivery *delivery.Pipeline
	sync     *catalog.Synchronizer
	msgr     messenger.Driver
	opts     Options
	log      *zap.Logger
}

func New(s *store.Store, q *queue.Queue, d *delivery.Pipeline, sy *catalog.Synchronizer, msgr messenger.Driver, opts Options, log *zap.Logger) *Engine {
	if opts.SyncMaxNodes <= 0 {
		opts.SyncMaxNodes = 5000
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.CatalogRoot == "" {
		opts.CatalogRoot = "/"
	}
	return &Engine{store: s, queue: q, delivery: d, sync: sy, msgr: msgr, opts: opts, log: log}
}

// Run blocks popping ids off the queue until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, popTimeout time.Duration) error {
	go e.reportQueueDepth(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		id, ok, err := e.queue.PopBlocking(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warn("pop failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		e.processOne(ctx, id)
	}
}

func (e *Engine) reportQueueDepth(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.queue.Len(ctx); err == nil {
				obs.QueueDepth.Set(float64(n))
			}
		}
	}
}

func (e *Engine) processOne(ctx context.Context, jobID int64) {
	job, err := e.store.FetchJob(ctx, jobID)
	if err != nil {
		e.log.Error("fetch job failed", zap.Int64("job_id", jobID), zap.Error(err))
		return
	}
	if isTerminal(job.State) {
		return // redundant delivery of an already-finished job; no-op
	}

	if err := e.store.SetJobState(ctx, jobID, store.JobRunning, ""); err != nil {
		e.log.Error("set running failed", zap.Int64("job_id", jobID), zap.Error(err))
		return
	}
	attempt, err := e.store.BumpAttempt(ctx, jobID)
	if err != nil {
		e.log.Error("bump attempt failed", zap.Int64("job_id", jobID), zap.Error(err))
		return
	}

	spanCtx, span := obs.StartJobSpan(ctx, job.ID, job.Kind, job.ChatID, attempt)
	start := time.Now()
	obs.JobsDispatched.WithLabelValues(job.Kind).Inc()
	dispatchErr := e.dispatchWithFloodWait(spanCtx, job)
	obs.JobProcessingDuration.WithLabelValues(job.Kind).Observe(time.Since(start).Seconds())

	if dispatchErr == nil {
		obs.SetSpanSuccess(spanCtx)
		span.End()
		e.finishSuccess(ctx, job)
		return
	}
	obs.RecordError(spanCtx, dispatchErr)
	span.End()
	e.finishError(ctx, job, attempt, dispatchErr)
}

// dispatchWithFloodWait honours flood-control retry-after hints inline:
// the sleeps do not consume job attempts, so flood only counts against the
// attempt budget once the wait budget here is spent.
func (e *Engine) dispatchWithFloodWait(ctx context.Context, job *store.Job) error {
	var waited time.Duration
	for retries := 0; ; retries++ {
		err := e.dispatch(ctx, job)
		if err == nil || joberr.Classify(err) != joberr.ClassFlood || retries >= e.opts.FloodRetries {
			return err
		}
		d, ok := joberr.RetryAfter(err)
		if !ok || d <= 0 {
			d = 5 * time.Second
		}
		if e.opts.FloodMaxWait > 0 && waited+d > e.opts.FloodMaxWait {
			return err
		}
		e.log.Info("flood control, sleeping", zap.Int64("job_id", job.ID), zap.Duration("retry_after", d))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
		waited += d
	}
}

func (e *Engine) dispatch(ctx context.Context, job *store.Job) error {
	switch job.Kind {
	case store.KindDownload:
		return e.dispatchDownload(ctx, job)
	case store.KindSyncCatalog:
		return e.dispatchSync(ctx, job)
	default:
		return joberr.Invariant(fmt.Errorf("unknown job kind %q", job.Kind))
	}
}

func (e *Engine) dispatchDownload(ctx context.Context, job *store.Job) error {
	item, err := e.store.FetchCatalogItemByID(ctx, job.ItemID)
	if err != nil {
		return joberr.NotFound(fmt.Errorf("catalog item %d: %w", job.ItemID, err))
	}
	out, err := e.delivery.Deliver(ctx, job.ChatID, item)
	if err != nil {
		return err
	}
	return e.writeAuditOnce(ctx, job, store.AuditSucceeded, out.Mode, &out.Bytes, "")
}

func (e *Engine) dispatchSync(ctx context.Context, job *store.Job) error {
	// keep the underlying classification: a storage not-found fails the
	// sync terminally, anything unclassified retries
	res, err := e.sync.Sync(ctx, e.opts.CatalogRoot, e.opts.SyncMaxNodes)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	e.log.Info("catalog sync complete", zap.Int("observed", res.Observed), zap.Int64("soft_deleted", res.SoftDeleted), zap.Bool("budget_exhausted", res.BudgetExhausted))
	return nil
}

func (e *Engine) writeAuditOnce(ctx context.Context, job *store.Job, result, mode string, bytes *int64, errText string) error {
	if err := e.store.InsertDownloadAudit(ctx, job.ID, job.ChatID, job.UserID, job.ItemID, result, mode, bytes, errText); err != nil {
		e.log.Error("audit insert failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}
	return nil
}

func (e *Engine) finishSuccess(ctx context.Context, job *store.Job) {
	if err := e.store.SetJobState(ctx, job.ID, store.JobSucceeded, ""); err != nil {
		e.log.Error("set succeeded failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}
	obs.JobsSucceeded.WithLabelValues(job.Kind).Inc()
}

// finishError applies the retry policy matrix: transient errors
// retry up to the attempt budget; not-found/denied/invariant fail
// immediately. Flood was already waited out inline; if it still surfaces
// here it surrendered its wait budget and retries like any transient.
// Handle-invalid never reaches here — the delivery pipeline clears the
// handle and falls through to the cold path internally before returning.
func (e *Engine) finishError(ctx context.Context, job *store.Job, attempt int, cause error) {
	class := joberr.Classify(cause)

	if class == joberr.ClassNotFound || class == joberr.ClassDenied || class == joberr.ClassInvariant {
		e.fail(ctx, job, cause)
		return
	}

	if attempt < e.opts.MaxAttempts {
		if err := e.store.SetJobState(ctx, job.ID, store.JobQueued, cause.Error()); err != nil {
			e.log.Error("requeue transition failed", zap.Int64("job_id", job.ID), zap.Error(err))
			return
		}
		if err := e.queue.Push(ctx, job.ID); err != nil {
			e.log.Error("requeue push failed", zap.Int64("job_id", job.ID), zap.Error(err))
			return
		}
		obs.JobsRetried.WithLabelValues(job.Kind).Inc()
		return
	}
	e.fail(ctx, job, cause)
}

func (e *Engine) fail(ctx context.Context, job *store.Job, cause error) {
	if err := e.store.SetJobState(ctx, job.ID, store.JobFailed, cause.Error()); err != nil {
		e.log.Error("set failed failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}
	obs.JobsFailed.WithLabelValues(job.Kind).Inc()

	if job.Kind == store.KindDownload {
		e.writeAuditOnce(ctx, job, store.AuditFailed, "", nil, cause.Error())
	}
	e.notifyTerminalFailure(ctx, job, cause)
}

// notifyTerminalFailure fans out terminal failures: downloads notify the
// requester and every admin; syncs notify admins only. Notification
// failures never flip the job back to a non-terminal state.
func (e *Engine) notifyTerminalFailure(ctx context.Context, job *store.Job, cause error) {
	if job.Kind == store.KindDownload {
		u, err := e.store.FetchUserByID(ctx, job.UserID)
		if err == nil {
			text := fmt.Sprintf("delivery failed, job #%d: %v", job.ID, cause)
			_ = e.msgr.SendText(ctx, u.ExternalUserID, text)
		}
	}
	adminText := fmt.Sprintf("job #%d (%s) failed: chat=%d item=%d err=%v", job.ID, job.Kind, job.ChatID, job.ItemID, cause)
	for _, admin := range e.opts.AdminIDs {
		_ = e.msgr.SendText(ctx, admin, adminText)
	}
	if e.opts.AdminNotifyChat != 0 {
		_ = e.msgr.SendText(ctx, e.opts.AdminNotifyChat, adminText)
	}
}

func isTerminal(state string) bool {
	return state == store.JobSucceeded || state == store.JobFailed || state == store.JobCancelled
}
