// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newToken mints a short opaque token in the same shape as the original
// admin-session tokens (a truncated uuid4 hex).
func newToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

type SearchSession struct {
	Token     string
	CreatedAt time.Time
	UserID    int64
	ScopePath sql.NullString
	Query     sql.NullString
}

func (s *Store) CreateSearchSession(ctx context.Context, userID int64, scopePath, query string) (string, error) {
	token := newToken()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_sessions(token, created_at, user_id, scope_path, query) VALUES (?, ?, ?, ?, ?)`,
		token, now(), userID, nullString(scopePath), nullString(query))
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Store) FetchSearchSession(ctx context.Context, token string) (*SearchSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token, created_at, user_id, scope_path, query FROM search_sessions WHERE token = ?`, token)
	sess := &SearchSession{}
	err := row.Scan(&sess.Token, &sess.CreatedAt, &sess.UserID, &sess.ScopePath, &sess.Query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

type AdminSession struct {
	Token     string
	CreatedAt time.Time
	UserID    int64
	Query     sql.NullString
}

func (s *Store) CreateAdminSession(ctx context.Context, userID int64, query string) (string, error) {
	token := newToken()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_sessions(token, created_at, user_id, query) VALUES (?, ?, ?, ?)`,
		token, now(), userID, nullString(query))
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Store) FetchAdminSession(ctx context.Context, token string) (*AdminSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT token, created_at, user_id, query FROM admin_sessions WHERE token = ?`, token)
	sess := &AdminSession{}
	err := row.Scan(&sess.Token, &sess.CreatedAt, &sess.UserID, &sess.Query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// CleanupSessions evicts search and admin sessions older than ttl. This is
// the supplemented admin-session TTL sweep carried over from the original
// implementation's cleanup_admin_sessions helper, generalized to both
// session tables.
func (s *Store) CleanupSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := now().Add(-ttl)
	var total int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM search_sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	total += n
	res, err = s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return total, err
	}
	n, _ = res.RowsAffected()
	total += n
	return total, nil
}
