// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	KindFolder = "folder"
	KindFile   = "file"
)

type CatalogItem struct {
	ID                   int64
	Path                 string
	Kind                 string
	Title                string
	StorageID            sql.NullString
	Size                 sql.NullInt64
	ParentPath           sql.NullString
	CachedHandleID       sql.NullString
	CachedHandleUniqueID sql.NullString
	ContentFingerprint   sql.NullString
	LastSeen             sql.NullTime
	IsDeleted            bool
	UpdatedAt            time.Time
}

const catalogCols = `id, path, kind, title, storage_id, size, parent_path,
	cached_handle_id, cached_handle_unique_id, content_fingerprint, last_seen, is_deleted, updated_at`

func scanCatalogItem(row interface{ Scan(dest ...any) error }) (*CatalogItem, error) {
	c := &CatalogItem{}
	var deleted int
	if err := row.Scan(&c.ID, &c.Path, &c.Kind, &c.Title, &c.StorageID, &c.Size, &c.ParentPath,
		&c.CachedHandleID, &c.CachedHandleUniqueID, &c.ContentFingerprint, &c.LastSeen, &deleted, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.IsDeleted = deleted != 0
	return c, nil
}

// UpsertCatalogItemParams carries the fields the synchronizer observes for
// one directory entry.
type UpsertCatalogItemParams struct {
	Path               string
	Kind               string
	Title              string
	StorageID          string
	Size               *int64
	ParentPath         string
	ContentFingerprint string // empty means "unknown", handle is preserved
}

// UpsertCatalogItem inserts or refreshes a catalog row. On conflict by path
// it advances last_seen/updated_at, clears soft-delete, and preserves the
// cached handle unless a fresh, different content fingerprint is supplied,
// in which case the handle is cleared so the next delivery re-uploads.
func (s *Store) UpsertCatalogItem(ctx context.Context, p UpsertCatalogItemParams) (int64, error) {
	n := now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existingID int64
	var existingFingerprint sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT id, content_fingerprint FROM catalog_items WHERE path = ?`, p.Path).
		Scan(&existingID, &existingFingerprint)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, ierr := tx.ExecContext(ctx, `
			INSERT INTO catalog_items(path, kind, title, storage_id, size, parent_path, content_fingerprint, last_seen, is_deleted, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			p.Path, p.Kind, p.Title, nullString(p.StorageID), nullInt64(p.Size), nullString(p.ParentPath), nullString(p.ContentFingerprint), n, n)
		if ierr != nil {
			return 0, fmt.Errorf("insert catalog item: %w", ierr)
		}
		id, ierr := res.LastInsertId()
		if ierr != nil {
			return 0, ierr
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return id, nil
	case err != nil:
		return 0, fmt.Errorf("lookup catalog item: %w", err)
	}

	clearHandle := p.ContentFingerprint != "" && existingFingerprint.Valid && existingFingerprint.String != p.ContentFingerprint

	if clearHandle {
		_, err = tx.ExecContext(ctx, `
			UPDATE catalog_items SET kind=?, title=?, storage_id=?, size=?, parent_path=?,
				content_fingerprint=?, last_seen=?, is_deleted=0, updated_at=?,
				cached_handle_id=NULL, cached_handle_unique_id=NULL
			WHERE id = ?`,
			p.Kind, p.Title, nullString(p.StorageID), nullInt64(p.Size), nullString(p.ParentPath),
			nullString(p.ContentFingerprint), n, n, existingID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE catalog_items SET kind=?, title=?, storage_id=?, size=?, parent_path=?,
				last_seen=?, is_deleted=0, updated_at=?
			WHERE id = ?`,
			p.Kind, p.Title, nullString(p.StorageID), nullInt64(p.Size), nullString(p.ParentPath), n, n, existingID)
	}
	if err != nil {
		return 0, fmt.Errorf("update catalog item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return existingID, nil
}

// SetCachedHandle overwrites the stored content-handle pair for item,
// or clears it when handleID is empty. Used by the delivery pipeline on
// both the refresh-after-send path and the handle-invalid fallback path.
func (s *Store) SetCachedHandle(ctx context.Context, itemID int64, handleID, handleUniqueID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items SET cached_handle_id = ?, cached_handle_unique_id = ?, updated_at = ?
		WHERE id = ?`, nullString(handleID), nullString(handleUniqueID), now(), itemID)
	return err
}

func (s *Store) FetchCatalogItemByID(ctx context.Context, id int64) (*CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+catalogCols+` FROM catalog_items WHERE id = ?`, id)
	c, err := scanCatalogItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Store) FetchCatalogItemByPath(ctx context.Context, path string) (*CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+catalogCols+` FROM catalog_items WHERE path = ?`, path)
	c, err := scanCatalogItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// FetchChildren lists non-deleted direct children of parentPath, folders
// before files, then title ascending.
func (s *Store) FetchChildren(ctx context.Context, parentPath string, limit, offset int) ([]*CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+catalogCols+` FROM catalog_items
		WHERE parent_path = ? AND is_deleted = 0
		ORDER BY CASE kind WHEN 'folder' THEN 0 ELSE 1 END, title ASC
		LIMIT ? OFFSET ?`, parentPath, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CatalogItem
	for rows.Next() {
		c, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountChildren(ctx context.Context, parentPath string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_items WHERE parent_path = ? AND is_deleted = 0`, parentPath).Scan(&n)
	return n, err
}

// MarkDeletedNotSeen soft-deletes every non-deleted item under root whose
// last_seen is null or strictly before watermark. The root itself is
// never deleted.
func (s *Store) MarkDeletedNotSeen(ctx context.Context, root string, watermark time.Time) (int64, error) {
	prefix := "/"
	if root != "/" {
		prefix = root + "/"
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items SET is_deleted = 1, updated_at = ?
		WHERE is_deleted = 0
		  AND path != ?
		  AND (path = ? OR path LIKE ? ESCAPE '\')
		  AND (last_seen IS NULL OR last_seen < ?)`,
		now(), root, root, escapeLike(prefix)+"%", watermark)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func escapeLike(s string) string {
	r := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			r = append(r, '\\')
		}
		r = append(r, s[i])
	}
	return string(r)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
