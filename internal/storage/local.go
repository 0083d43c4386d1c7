// Copyright 2025 James Ross
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/adaspeas/deliveryd/internal/joberr"
)

// LocalDriver serves a local filesystem subtree, rejecting any path that
// would escape its configured root. Grounded on the original LocalDiskClient's
// root-escape guard, generalized to the canonical-path contract.
type LocalDriver struct {
	root string
}

func NewLocalDriver(root string) (*LocalDriver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve local root: %w", err)
	}
	return &LocalDriver{root: abs}, nil
}

// resolve maps a canonical path ("/a/b") onto a real filesystem path under
// root, refusing anything that escapes it.
func (d *LocalDriver) resolve(canonical string) (string, error) {
	rel := strings.TrimPrefix(canonical, "/")
	full := filepath.Join(d.root, rel)
	if full != d.root && !strings.HasPrefix(full, d.root+string(os.PathSeparator)) {
		return "", joberr.Invariant(fmt.Errorf("path escapes storage root: %s", canonical))
	}
	return full, nil
}

func (d *LocalDriver) List(ctx context.Context, path string) ([]Entry, error) {
	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, classifyFSErr(fmt.Errorf("read dir: %w", err))
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		kind := KindFile
		if de.IsDir() {
			kind = KindDir
		}
		var size *int64
		var fp string
		if !de.IsDir() {
			s := info.Size()
			size = &s
			fp = fingerprint(info.Size(), info.ModTime())
		}
		mod := info.ModTime()
		entries = append(entries, Entry{
			Name:               de.Name(),
			Kind:               kind,
			Path:               joinCanonical(path, de.Name()),
			Size:               size,
			Modified:           &mod,
			ContentFingerprint: fp,
		})
	}
	return entries, nil
}

func (d *LocalDriver) Stream(ctx context.Context, storageID string) (io.ReadCloser, error) {
	full, err := d.resolve(storageID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, classifyFSErr(fmt.Errorf("open: %w", err))
	}
	return f, nil
}

func (d *LocalDriver) Close() error { return nil }

// classifyFSErr: only a confirmed missing path is terminal; transient
// filesystem trouble (EMFILE, EIO, NFS blips) stays retryable.
func classifyFSErr(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return joberr.NotFound(err)
	}
	return joberr.Transient(err)
}

// fingerprint is a cheap content proxy (size+mtime hashed) since the local
// backend has no ETag equivalent; good enough to detect a changed file
// without reading its bytes.
func fingerprint(size int64, modTime interface{ Unix() int64 }) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", size, modTime.Unix())))
	return hex.EncodeToString(h[:8])
}
