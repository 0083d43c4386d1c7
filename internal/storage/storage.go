// Copyright 2025 James Ross

// Package storage defines the storage driver contract: one-level
// directory listing and byte streaming over a remote object store or a
// local filesystem root.
package storage

import (
	"context"
	"io"
	"time"
)

type Kind string

const (
	KindDir  Kind = "dir"
	KindFile Kind = "file"
)

// Entry is one child returned by a single-level List call.
type Entry struct {
	Name               string
	Kind               Kind
	Path               string // canonical, no backend prefix
	Size               *int64
	Modified           *time.Time
	ContentFingerprint string // empty if the backend cannot supply one
}

// Driver is the capability contract every storage backend implements.
type Driver interface {
	// List returns the immediate children of path, one directory level,
	// paginating internally if the backend requires it.
	List(ctx context.Context, path string) ([]Entry, error)
	// Stream opens a fresh, restartable-only-by-recall read of storageID.
	Stream(ctx context.Context, storageID string) (io.ReadCloser, error)
	Close() error
}
