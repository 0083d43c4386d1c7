// Copyright 2025 James Ross

// Package delivery implements the delivery pipeline: the cached
// content-handle fast path and the spool-to-disk-then-upload cold path.
package delivery

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/adaspeas/deliveryd/internal/joberr"
	"github.com/adaspeas/deliveryd/internal/messenger"
	"github.com/adaspeas/deliveryd/internal/obs"
	"github.com/adaspeas/deliveryd/internal/storage"
	"github.com/adaspeas/deliveryd/internal/store"
)

type Pipeline struct {
	store  *store.Store
	driver storage.Driver
	msgr   messenger.Driver
}

func New(s *store.Store, driver storage.Driver, msgr messenger.Driver) *Pipeline {
	return &Pipeline{store: s, driver: driver, msgr: msgr}
}

// Outcome is what Deliver did, used by the job engine to write the
// one-and-only audit row.
type Outcome struct {
	Mode  string
	Bytes int64
}

// Deliver sends item to chatID, preferring the cached content handle and
// falling back to a spool-and-upload round trip. The caller (jobengine) is
// responsible for writing the audit row and the job state transition.
func (p *Pipeline) Deliver(ctx context.Context, chatID int64, item *store.CatalogItem) (Outcome, error) {
	if item.Kind != store.KindFile {
		return Outcome{}, joberr.Invariant(fmt.Errorf("download target %s is not a file", item.Path))
	}

	if item.CachedHandleID.Valid {
		handle := messenger.Handle{ID: item.CachedHandleID.String, UniqueID: item.CachedHandleUniqueID.String}
		refreshed, err := p.msgr.SendByHandle(ctx, chatID, handle, item.Title)
		if err == nil {
			if err := p.refreshHandle(ctx, item.ID, refreshed); err != nil {
				return Outcome{}, err
			}
			obs.DeliveryCacheHits.Inc()
			return Outcome{Mode: store.ModeCachedHandle}, nil
		}
		if joberr.Classify(err) != joberr.ClassHandleInvalid {
			return Outcome{}, err
		}
		if err := p.clearHandle(ctx, item.ID); err != nil {
			return Outcome{}, err
		}
		// fall through to cold path
	}

	obs.DeliveryCacheMisses.Inc()
	return p.coldPath(ctx, chatID, item)
}

func (p *Pipeline) coldPath(ctx context.Context, chatID int64, item *store.CatalogItem) (Outcome, error) {
	storageID := item.Path
	if item.StorageID.Valid {
		storageID = item.StorageID.String
	}

	// the driver classifies its own failures: a confirmed missing object
	// is terminal, anything else retries
	rc, err := p.driver.Stream(ctx, storageID)
	if err != nil {
		return Outcome{}, fmt.Errorf("stream %s: %w", storageID, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "deliveryd-spool-*")
	if err != nil {
		return Outcome{}, joberr.Transient(fmt.Errorf("create spool file: %w", err))
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.Copy(tmp, rc)
	if err != nil {
		return Outcome{}, joberr.Transient(fmt.Errorf("spool copy: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return Outcome{}, joberr.Transient(fmt.Errorf("close spool file: %w", err))
	}

	handle, err := p.msgr.SendFile(ctx, chatID, tmp.Name(), item.Title)
	if err != nil {
		return Outcome{}, err
	}
	if err := p.refreshHandle(ctx, item.ID, handle); err != nil {
		return Outcome{}, err
	}
	return Outcome{Mode: store.ModeUpload, Bytes: n}, nil
}

func (p *Pipeline) refreshHandle(ctx context.Context, itemID int64, h messenger.Handle) error {
	return p.store.SetCachedHandle(ctx, itemID, h.ID, h.UniqueID)
}

func (p *Pipeline) clearHandle(ctx context.Context, itemID int64) error {
	return p.store.SetCachedHandle(ctx, itemID, "", "")
}
