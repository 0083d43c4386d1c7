// Copyright 2025 James Ross
package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListUsersPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		_, err := s.UpsertUser(ctx, 1000+i)
		require.NoError(t, err)
	}

	page, hasMore, err := s.ListUsersPage(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.True(t, hasMore)

	page, hasMore, err = s.ListUsersPage(ctx, 3, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.False(t, hasMore)
}

func TestSearchUsersNumericMatchesIDPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertUser(ctx, 12345)
	require.NoError(t, err)
	_, err = s.UpsertUser(ctx, 12399)
	require.NoError(t, err)
	_, err = s.UpsertUser(ctx, 98765)
	require.NoError(t, err)

	rows, _, err := s.SearchUsers(ctx, "123", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, _, err = s.SearchUsers(ctx, "12345", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(12345), rows[0].ExternalUserID)
}

func TestSearchUsersTextScansStatusAndNote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertUser(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.SetUserNote(ctx, id, "library regular, renewed twice"))
	_, err = s.UpsertUser(ctx, 2)
	require.NoError(t, err)

	rows, _, err := s.SearchUsers(ctx, "renewed", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].ExternalUserID)

	rows, _, err = s.SearchUsers(ctx, "guest", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestExtendUserAdvancesFromLaterOfNowAndExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertUser(ctx, 7)
	require.NoError(t, err)

	// grant still running: extension stacks on the current expiry
	future := time.Now().UTC().Add(48 * time.Hour)
	require.NoError(t, s.SetUserStatus(ctx, id, StatusActive, &future))
	require.NoError(t, s.ExtendUser(ctx, id, 10))
	u, err := s.FetchUserByID(ctx, id)
	require.NoError(t, err)
	require.WithinDuration(t, future.AddDate(0, 0, 10), u.ExpiresAt.Time, time.Minute)

	// grant already lapsed: extension counts from now
	past := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.SetUserStatus(ctx, id, StatusExpired, &past))
	require.NoError(t, s.ExtendUser(ctx, id, 10))
	u, err = s.FetchUserByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusActive, u.Status)
	require.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 10), u.ExpiresAt.Time, time.Minute)
}

func TestMarkWarnedThenStatusChangeClearsIt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.UpsertUser(ctx, 8)
	require.NoError(t, err)
	exp := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.SetUserStatus(ctx, id, StatusActive, &exp))
	require.NoError(t, s.MarkWarned(ctx, id))

	u, err := s.FetchUserByID(ctx, id)
	require.NoError(t, err)
	require.True(t, u.WarnedAt.Valid)

	require.NoError(t, s.SetUserStatus(ctx, id, StatusBlocked, nil))
	u, err = s.FetchUserByID(ctx, id)
	require.NoError(t, err)
	require.False(t, u.WarnedAt.Valid)
}
