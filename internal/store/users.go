// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// User statuses, per the access-control state machine.
const (
	StatusGuest   = "guest"
	StatusPending = "pending"
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusBlocked = "blocked"
)

var ErrNotFound = errors.New("not found")

type User struct {
	ID             int64
	ExternalUserID int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Status         string
	Note           sql.NullString
	ExpiresAt      sql.NullTime
	WarnedAt       sql.NullTime
}

// UpsertUser returns the internal id for externalID, creating the row in
// guest state on first contact.
func (s *Store) UpsertUser(ctx context.Context, externalID int64) (int64, error) {
	n := now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users(external_user_id, created_at, updated_at, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(external_user_id) DO NOTHING`, externalID, n, n, StatusGuest)
	if err != nil {
		return 0, fmt.Errorf("upsert user: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE external_user_id = ?`, externalID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("fetch upserted user: %w", err)
	}
	return id, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.ExternalUserID, &u.CreatedAt, &u.UpdatedAt, &u.Status, &u.Note, &u.ExpiresAt, &u.WarnedAt); err != nil {
		return nil, err
	}
	return u, nil
}

const userCols = `id, external_user_id, created_at, updated_at, status, note, expires_at, warned_at`

// FetchUser returns a user by external (chat) id.
func (s *Store) FetchUser(ctx context.Context, externalID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE external_user_id = ?`, externalID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// FetchUserByID returns a user by internal id.
func (s *Store) FetchUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// ListUsersPage returns a page of users ordered by id, plus whether more
// rows follow.
func (s *Store) ListUsersPage(ctx context.Context, limit, offset int) ([]*User, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit+1, offset)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, u)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, rows.Err()
}

// SearchUsers matches external-id exactly/by-prefix for numeric queries,
// else does a bounded LIKE scan over status and note.
func (s *Store) SearchUsers(ctx context.Context, query string, limit, offset int) ([]*User, bool, error) {
	q := strings.TrimSpace(query)
	var rows *sql.Rows
	var err error
	if n, nerr := strconv.ParseInt(q, 10, 64); nerr == nil {
		rows, err = s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users
			WHERE external_user_id = ? OR CAST(external_user_id AS TEXT) LIKE ?
			ORDER BY id LIMIT ? OFFSET ?`, n, q+"%", limit+1, offset)
	} else {
		like := "%" + q + "%"
		rows, err = s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users
			WHERE status LIKE ? OR note LIKE ?
			ORDER BY id LIMIT ? OFFSET ?`, like, like, limit+1, offset)
	}
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, u)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, rows.Err()
}

func (s *Store) SetUserNote(ctx context.Context, userID int64, note string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET note = ?, updated_at = ? WHERE id = ?`, note, now(), userID)
	return err
}

// SetUserStatus sets status (and optional expiry), clearing warned_at as
// every status change must.
func (s *Store) SetUserStatus(ctx context.Context, userID int64, status string, expiresAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET status = ?, expires_at = ?, warned_at = NULL, updated_at = ?
		WHERE id = ?`, status, nullableTime(expiresAt), now(), userID)
	return err
}

// ActivateUser sets status=active and expiry = now + ttlDays.
func (s *Store) ActivateUser(ctx context.Context, userID int64, ttlDays int) error {
	exp := now().AddDate(0, 0, ttlDays)
	return s.SetUserStatus(ctx, userID, StatusActive, &exp)
}

// ExtendUser advances an active grant: new expiry = max(now, current) + addDays.
func (s *Store) ExtendUser(ctx context.Context, userID int64, addDays int) error {
	u, err := s.FetchUserByID(ctx, userID)
	if err != nil {
		return err
	}
	base := now()
	if u.ExpiresAt.Valid && u.ExpiresAt.Time.After(base) {
		base = u.ExpiresAt.Time
	}
	exp := base.AddDate(0, 0, addDays)
	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET status = ?, expires_at = ?, warned_at = NULL, updated_at = ?
		WHERE id = ?`, StatusActive, exp, now(), userID)
	return err
}

// MarkWarned stamps warned_at for a pre-expiry warning, without touching status.
func (s *Store) MarkWarned(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET warned_at = ?, updated_at = ? WHERE id = ?`, now(), now(), userID)
	return err
}

// ExpireUsers atomically transitions every active user whose expiry has
// passed to expired, returning the count transitioned.
func (s *Store) ExpireUsers(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET status = ?, warned_at = NULL, updated_at = ?
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		StatusExpired, now(), StatusActive, now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UsersPendingWarning returns active users whose expiry falls within
// warnBefore of now and who have not yet been warned this grant.
func (s *Store) UsersPendingWarning(ctx context.Context, warnBefore time.Duration) ([]*User, error) {
	cutoff := now().Add(warnBefore)
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ? AND warned_at IS NULL`,
		StatusActive, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
