// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	KindDownload    = "download"
	KindSyncCatalog = "sync_catalog"
	JobQueued       = "queued"
	JobRunning      = "running"
	JobSucceeded    = "succeeded"
	JobFailed       = "failed"
	JobCancelled    = "cancelled"
)

// terminal reports whether state has no further transitions.
func terminal(state string) bool {
	return state == JobSucceeded || state == JobFailed || state == JobCancelled
}

type Job struct {
	ID          int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ChatID      int64
	UserID      int64
	ItemID      int64
	Kind        string
	State       string
	Attempt     int
	LastError   sql.NullString
	Correlation string
}

const jobCols = `id, created_at, updated_at, chat_id, user_id, item_id, kind, state, attempt, last_error, correlation`

func scanJob(row interface{ Scan(dest ...any) error }) (*Job, error) {
	j := &Job{}
	if err := row.Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt, &j.ChatID, &j.UserID, &j.ItemID, &j.Kind, &j.State, &j.Attempt, &j.LastError, &j.Correlation); err != nil {
		return nil, err
	}
	return j, nil
}

// ErrDuplicateJob is returned by InsertJob when the (chat,item,correlation)
// triple already exists.
var ErrDuplicateJob = errors.New("duplicate job correlation")

// InsertJob creates a job in state=queued. It is NOT silently idempotent:
// callers that want "insert or fetch existing" should catch ErrDuplicateJob
// and re-fetch by correlation themselves, since the unique triple exists to
// surface duplicate client actions rather than hide them.
func (s *Store) InsertJob(ctx context.Context, chatID, userID, itemID int64, kind, correlation string) (int64, error) {
	n := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs(created_at, updated_at, chat_id, user_id, item_id, kind, state, attempt, correlation)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		n, n, chatID, userID, itemID, kind, JobQueued, correlation)
	if err != nil {
		if isUniqueConstraint(err) {
			return 0, ErrDuplicateJob
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) FetchJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// SetJobState transitions state, refusing to move a job out of a terminal
// state. lastError may be empty.
func (s *Store) SetJobState(ctx context.Context, id int64, state, lastError string) error {
	current, err := s.FetchJob(ctx, id)
	if err != nil {
		return err
	}
	if terminal(current.State) {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `UPDATE jobs SET state = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		state, nullString(lastError), now(), id)
	return err
}

// BumpAttempt atomically increments the attempt counter and returns the new value.
func (s *Store) BumpAttempt(ctx context.Context, id int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET attempt = attempt + 1, updated_at = ? WHERE id = ?`, now(), id); err != nil {
		return 0, err
	}
	var attempt int
	if err := tx.QueryRowContext(ctx, `SELECT attempt FROM jobs WHERE id = ?`, id).Scan(&attempt); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return attempt, nil
}

// HasActiveSyncJob reports whether a sync_catalog job is queued or running.
func (s *Store) HasActiveSyncJob(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs WHERE kind = ? AND state IN (?, ?)`,
		KindSyncCatalog, JobQueued, JobRunning).Scan(&n)
	return n > 0, err
}

func isUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
