// Copyright 2025 James Ross
package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSchemaForwardMonotonicity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mono.sqlite")
	s, err := Open(path)
	require.NoError(t, err)
	s.Close()

	// Re-opening against the same file must not fail even though every
	// table/column already exists.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var version int
	require.NoError(t, s2.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	require.Equal(t, migrations[len(migrations)-1].version, version)
}

func TestUpsertUserIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id1, err := s.UpsertUser(ctx, 42)
	require.NoError(t, err)
	id2, err := s.UpsertUser(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	u, err := s.FetchUser(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, StatusGuest, u.Status)
}

func TestCatalogUpsertIdempotence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := UpsertCatalogItemParams{Path: "/A/f.bin", Kind: KindFile, Title: "f.bin", StorageID: "/A/f.bin", ParentPath: "/A"}
	id1, err := s.UpsertCatalogItem(ctx, p)
	require.NoError(t, err)
	id2, err := s.UpsertCatalogItem(ctx, p)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestCatalogHandleInvalidationOnFingerprintChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{
		Path: "/f.bin", Kind: KindFile, Title: "f.bin", StorageID: "/f.bin", ParentPath: "/", ContentFingerprint: "h1",
	})
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE catalog_items SET cached_handle_id = 'id1', cached_handle_unique_id = 'u1' WHERE id = ?`, id)
	require.NoError(t, err)

	_, err = s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{
		Path: "/f.bin", Kind: KindFile, Title: "f.bin", StorageID: "/f.bin", ParentPath: "/", ContentFingerprint: "h2",
	})
	require.NoError(t, err)

	item, err := s.FetchCatalogItemByID(ctx, id)
	require.NoError(t, err)
	require.False(t, item.CachedHandleID.Valid)
	require.False(t, item.CachedHandleUniqueID.Valid)
}

func TestMarkDeletedNotSeen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/", Kind: KindFolder, Title: "/", ParentPath: ""})
	require.NoError(t, err)
	_, err = s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/X", Kind: KindFolder, Title: "X", ParentPath: "/"})
	require.NoError(t, err)
	_, err = s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/X/a", Kind: KindFile, Title: "a", ParentPath: "/X"})
	require.NoError(t, err)
	idB, err := s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/X/b", Kind: KindFile, Title: "b", ParentPath: "/X"})
	require.NoError(t, err)

	watermark := time.Now().UTC().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	// re-observe everything except /X/b
	_, err = s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/X", Kind: KindFolder, Title: "X", ParentPath: "/"})
	require.NoError(t, err)
	_, err = s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/X/a", Kind: KindFile, Title: "a", ParentPath: "/X"})
	require.NoError(t, err)

	n, err := s.MarkDeletedNotSeen(ctx, "/", watermark)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	b, err := s.FetchCatalogItemByID(ctx, idB)
	require.NoError(t, err)
	require.True(t, b.IsDeleted)

	root, err := s.FetchCatalogItemByPath(ctx, "/")
	require.NoError(t, err)
	require.False(t, root.IsDeleted)
}

func TestJobStateStickiness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	itemID, err := s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/f", Kind: KindFile, Title: "f", ParentPath: "/"})
	require.NoError(t, err)
	jobID, err := s.InsertJob(ctx, 1, 1, itemID, KindDownload, "r1")
	require.NoError(t, err)

	require.NoError(t, s.SetJobState(ctx, jobID, JobSucceeded, ""))
	require.NoError(t, s.SetJobState(ctx, jobID, JobRunning, ""))

	j, err := s.FetchJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, JobSucceeded, j.State)
}

func TestInsertJobDuplicateCorrelation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	itemID, err := s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/f", Kind: KindFile, Title: "f", ParentPath: "/"})
	require.NoError(t, err)
	_, err = s.InsertJob(ctx, 1, 1, itemID, KindDownload, "r1")
	require.NoError(t, err)
	_, err = s.InsertJob(ctx, 1, 1, itemID, KindDownload, "r1")
	require.ErrorIs(t, err, ErrDuplicateJob)
}

func TestAuditUniquePerJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertDownloadAudit(ctx, 1, 1, 1, 1, AuditSucceeded, ModeUpload, nil, ""))
	require.NoError(t, s.InsertDownloadAudit(ctx, 1, 1, 1, 1, AuditFailed, "", nil, "ignored"))

	rows, err := s.FetchRecentAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, AuditSucceeded, rows[0].Result)
}

func TestExpireUsersSweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertUser(ctx, 7)
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.SetUserStatus(ctx, id, StatusActive, &past))

	n, err := s.ExpireUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	u, err := s.FetchUserByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, u.Status)
	require.False(t, u.WarnedAt.Valid)
}

func TestSearchFallsBackToPathWhenFTSUnavailable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertCatalogItem(ctx, UpsertCatalogItemParams{Path: "/reports/quarterly.pdf", Kind: KindFile, Title: "Quarterly Report", ParentPath: "/reports"})
	require.NoError(t, err)

	// drop the FTS mirror to force the fallback path
	_, err = s.db.Exec(`DROP TABLE IF EXISTS catalog_items_fts`)
	require.NoError(t, err)

	items, err := s.SearchCatalog(ctx, "quarterly.pdf", 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
}
