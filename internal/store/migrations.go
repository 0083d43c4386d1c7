// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// ensureSchema applies every migration with version greater than the
// currently stored schema_version, each inside its own transaction.
// Migrations tolerate a column or table already existing so re-running
// against a store created out-of-band does not fail.
func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return err
		}
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&current); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		current = m.version
	}
	return nil
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, ddl string) error {
	ok, err := hasColumn(ctx, tx, table, column)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, table, ddl))
	return err
}

var migrations = []migration{
	{version: 1, apply: migrateV1},
	{version: 2, apply: migrateV2},
	{version: 3, apply: migrateV3},
	{version: 4, apply: migrateV4},
	{version: 5, apply: migrateV5},
}

// migrateV1 lays down the base tables: users, catalog, jobs.
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_user_id INTEGER NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'guest',
			note TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			storage_id TEXT,
			size INTEGER,
			parent_path TEXT,
			last_seen TEXT,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_catalog_parent ON catalog_items(parent_path)`,
		`CREATE INDEX IF NOT EXISTS idx_catalog_deleted_parent ON catalog_items(is_deleted, parent_path)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'queued',
			attempt INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			correlation TEXT NOT NULL,
			UNIQUE(chat_id, item_id, correlation)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_kind_state ON jobs(kind, state)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_kind_created ON jobs(kind, created_at)`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// migrateV2 adds the cached content-handle columns to catalog_items.
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "catalog_items", "cached_handle_id", "cached_handle_id TEXT"); err != nil {
		return err
	}
	return addColumnIfMissing(ctx, tx, "catalog_items", "cached_handle_unique_id", "cached_handle_unique_id TEXT")
}

// migrateV3 adds user lifecycle columns and access-control indexes.
func migrateV3(ctx context.Context, tx *sql.Tx) error {
	for _, col := range []struct{ name, ddl string }{
		{"expires_at", "expires_at TEXT"},
		{"warned_at", "warned_at TEXT"},
	} {
		if err := addColumnIfMissing(ctx, tx, "users", col.name, col.ddl); err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_users_status_expires ON users(status, expires_at)`)
	return err
}

// migrateV4 adds download_audit and meta.
func migrateV4(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS download_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			job_id INTEGER NOT NULL UNIQUE,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			result TEXT NOT NULL,
			mode TEXT,
			bytes INTEGER,
			error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT NOT NULL UNIQUE,
			value TEXT
		)`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// migrateV5 adds the FTS5 mirror plus sync triggers, and the short-lived
// session tables. The fingerprint column is carried on catalog_items so
// upsert can detect content changes without a second round trip.
func migrateV5(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "catalog_items", "content_fingerprint", "content_fingerprint TEXT"); err != nil {
		return err
	}
	// The FTS5 mirror is best-effort: a build without the fts5 module
	// skips it and SearchCatalog serves the LIKE fallback instead.
	if _, err := tx.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS catalog_items_fts USING fts5(title, path, content='catalog_items', content_rowid='id')`); err == nil {
		triggers := []string{
			`CREATE TRIGGER IF NOT EXISTS catalog_items_ai AFTER INSERT ON catalog_items BEGIN
				INSERT INTO catalog_items_fts(rowid, title, path) VALUES (new.id, new.title, new.path);
			END`,
			`CREATE TRIGGER IF NOT EXISTS catalog_items_ad AFTER DELETE ON catalog_items BEGIN
				INSERT INTO catalog_items_fts(catalog_items_fts, rowid, title, path) VALUES('delete', old.id, old.title, old.path);
			END`,
			`CREATE TRIGGER IF NOT EXISTS catalog_items_au AFTER UPDATE ON catalog_items BEGIN
				INSERT INTO catalog_items_fts(catalog_items_fts, rowid, title, path) VALUES('delete', old.id, old.title, old.path);
				INSERT INTO catalog_items_fts(rowid, title, path) VALUES (new.id, new.title, new.path);
			END`,
		}
		for _, q := range triggers {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
	} else if !strings.Contains(err.Error(), "fts5") && !strings.Contains(err.Error(), "no such module") {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS search_sessions (
			token TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			scope_path TEXT,
			query TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS admin_sessions (
			token TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			query TEXT
		)`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
