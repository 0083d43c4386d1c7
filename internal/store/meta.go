// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"errors"
)

const (
	MetaLastCatalogSyncAt           = "last_catalog_sync_at"
	MetaLastCatalogSyncDeletedCount = "last_catalog_sync_deleted_count"
)

func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
