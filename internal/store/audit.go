// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"time"
)

const (
	AuditSucceeded = "succeeded"
	AuditFailed    = "failed"

	ModeCachedHandle = "cached_handle"
	ModeUpload       = "upload"
)

type DownloadAudit struct {
	ID        int64
	CreatedAt time.Time
	JobID     int64
	ChatID    int64
	UserID    int64
	ItemID    int64
	Result    string
	Mode      sql.NullString
	Bytes     sql.NullInt64
	Error     sql.NullString
}

// InsertDownloadAudit writes the one-and-only audit row for jobID. It is
// idempotent on job id: a second call for the same job is a silent no-op,
// since the job engine only ever calls this once per terminal outcome but
// a redundant queue delivery could in principle call it twice.
func (s *Store) InsertDownloadAudit(ctx context.Context, jobID, chatID, userID, itemID int64, result, mode string, bytes *int64, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_audit(created_at, job_id, chat_id, user_id, item_id, result, mode, bytes, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING`,
		now(), jobID, chatID, userID, itemID, result, nullString(mode), nullInt64(bytes), nullString(errText))
	return err
}

func (s *Store) FetchRecentAudit(ctx context.Context, limit int) ([]*DownloadAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, job_id, chat_id, user_id, item_id, result, mode, bytes, error
		FROM download_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DownloadAudit
	for rows.Next() {
		a := &DownloadAudit{}
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.JobID, &a.ChatID, &a.UserID, &a.ItemID, &a.Result, &a.Mode, &a.Bytes, &a.Error); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAuditSince groups audit rows from the last `minutes` by result.
func (s *Store) CountAuditSince(ctx context.Context, minutes int) (map[string]int64, error) {
	since := now().Add(-time.Duration(minutes) * time.Minute)
	rows, err := s.db.QueryContext(ctx, `
		SELECT result, COUNT(*) FROM download_audit WHERE created_at >= ? GROUP BY result`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var result string
		var n int64
		if err := rows.Scan(&result, &n); err != nil {
			return nil, err
		}
		out[result] = n
	}
	return out, rows.Err()
}

// TopDownloadsSince returns the most-downloaded items (by succeeded audit
// rows) in the last `minutes`.
func (s *Store) TopDownloadsSince(ctx context.Context, minutes, limit int) (map[int64]int64, error) {
	since := now().Add(-time.Duration(minutes) * time.Minute)
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, COUNT(*) c FROM download_audit
		WHERE created_at >= ? AND result = ?
		GROUP BY item_id ORDER BY c DESC LIMIT ?`, since, AuditSucceeded, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var itemID, c int64
		if err := rows.Scan(&itemID, &c); err != nil {
			return nil, err
		}
		out[itemID] = c
	}
	return out, rows.Err()
}
