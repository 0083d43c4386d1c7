// Copyright 2025 James Ross

// Package store is the relational store: a single-writer SQLite mirror
// of users, the catalog tree, jobs, download audit and short-lived UI
// sessions, reached entirely through database/sql.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single *sql.DB opened against one SQLite file. SQLite
// serializes writers internally; callers do not need external locking.
type Store struct {
	db *sql.DB
}

// Open connects to path, applies pragmas and runs every pending migration.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer; SQLite does not benefit from a pool here
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// now returns the store's notion of the current instant. Kept as one
// function so sync watermarks and user timestamps read a consistent clock.
func now() time.Time { return time.Now().UTC() }

// Now exposes the store's clock to callers (e.g. the catalog synchronizer)
// that need a watermark comparable with the instants written by this
// package's own inserts/updates.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	return now(), nil
}
