// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adaspeas/deliveryd/internal/access"
	"github.com/adaspeas/deliveryd/internal/catalog"
	"github.com/adaspeas/deliveryd/internal/config"
	"github.com/adaspeas/deliveryd/internal/delivery"
	"github.com/adaspeas/deliveryd/internal/jobengine"
	"github.com/adaspeas/deliveryd/internal/messenger"
	"github.com/adaspeas/deliveryd/internal/netretry"
	"github.com/adaspeas/deliveryd/internal/obs"
	"github.com/adaspeas/deliveryd/internal/queue"
	"github.com/adaspeas/deliveryd/internal/redisclient"
	"github.com/adaspeas/deliveryd/internal/storage"
	"github.com/adaspeas/deliveryd/internal/store"
	"golang.org/x/time/rate"
)

var version = "dev"

// This binary is the worker process: it owns the sole job-engine loop,
// the periodic catalog-sync scheduler and, when enabled, the
// access-control warning sweep. The chat surface that produces jobs is a
// separate deployment and is not built here.
func main() {
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Fatal("init tracing failed", obs.Err(err))
	}
	defer func() { _ = obs.TracerShutdown(context.Background(), tp) }()

	s, err := store.Open(cfg.Relational.Path)
	if err != nil {
		logger.Fatal("open store failed", obs.Err(err))
	}
	defer s.Close()

	rdb := redisclient.New(cfg)
	defer rdb.Close()
	q := queue.New(rdb, cfg.Queue.Key)

	driver, err := newStorageDriver(cfg)
	if err != nil {
		logger.Fatal("init storage driver failed", obs.Err(err))
	}
	defer driver.Close()

	msgr, err := messenger.NewTelegramDriver(cfg.Telegram.BotToken, rate.NewLimiter(rate.Limit(25), 25))
	if err != nil {
		logger.Fatal("init messenger driver failed", obs.Err(err))
	}

	accessCtl := access.New(s, msgr, cfg.AccessControl.Enabled, cfg.AccessControl.DefaultTTLDays, cfg.AccessControl.WarnBefore, cfg.Telegram.AdminUserIDs, logger)

	retry := netretry.Policy{Attempts: cfg.NetRetry.Attempts, MaxDelay: cfg.NetRetry.MaxDelay}
	pipeline := delivery.New(s, driver, msgr)
	sync := catalog.New(s, driver, rate.NewLimiter(rate.Limit(10), 10), retry)
	engine := jobengine.New(s, q, pipeline, sync, msgr, jobengine.Options{
		AdminIDs:        cfg.Telegram.AdminUserIDs,
		AdminNotifyChat: cfg.Telegram.AdminNotifyID,
		MaxAttempts:     cfg.JobEngine.MaxAttempts,
		CatalogRoot:     cfg.Storage.RemoteBasePath,
		SyncMaxNodes:    cfg.Catalog.SyncMaxNodes,
		FloodRetries:    cfg.NetRetry.Attempts,
		FloodMaxWait:    cfg.NetRetry.MaxDelay,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	readyCheck := func(c context.Context) error {
		if _, err := rdb.Ping(c).Result(); err != nil {
			return fmt.Errorf("queue: %w", err)
		}
		if err := s.Ping(c); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		return nil
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	go reportTableSizes(ctx, s)

	if cfg.AccessControl.WarnCheckInterval > 0 {
		sweepSched, err := access.StartSweepSchedule(accessCtl, cfg.AccessControl.WarnCheckInterval.String(), cfg.AccessControl.SessionTTL)
		if err != nil {
			logger.Fatal("start access sweep schedule failed", obs.Err(err))
		}
		defer sweepSched.Stop()
	}

	if cfg.Catalog.SyncInterval > 0 {
		rootItem, err := ensureRootItem(ctx, s, cfg.Storage.RemoteBasePath)
		if err != nil {
			logger.Fatal("seed catalog root failed", obs.Err(err))
		}
		syncSched, err := engine.StartSyncSchedule(rootItem.ID, cfg.Catalog.SyncInterval.String())
		if err != nil {
			logger.Fatal("start sync schedule failed", obs.Err(err))
		}
		defer syncSched.Stop()
	}

	logger.Info("worker starting", obs.String("version", version))
	if err := engine.Run(ctx, cfg.Queue.PopTimeout); err != nil && ctx.Err() == nil {
		logger.Fatal("engine run failed", obs.Err(err))
	}
}

func newStorageDriver(cfg *config.Config) (storage.Driver, error) {
	switch cfg.Storage.Mode {
	case "local":
		return storage.NewLocalDriver(cfg.Storage.LocalRoot)
	case "remote":
		return storage.NewS3Driver(cfg.Storage.RemoteRegion, cfg.Storage.RemoteEndpoint, cfg.Storage.RemoteBucket, cfg.Storage.RemoteBasePath, cfg.Storage.RemoteToken)
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
}

// reportTableSizes feeds the informational table-size gauges.
func reportTableSizes(ctx context.Context, s *store.Store) {
	tables := []string{"users", "catalog_items", "jobs", "download_audit", "search_sessions", "admin_sessions"}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tbl := range tables {
				if n, err := s.CountRows(ctx, tbl); err == nil {
					obs.TableRows.WithLabelValues(tbl).Set(float64(n))
				}
			}
		}
	}
}

// ensureRootItem seeds the catalog root folder so the periodic sync
// scheduler has a stable item id to attach synthetic sync jobs to.
func ensureRootItem(ctx context.Context, s *store.Store, root string) (*store.CatalogItem, error) {
	if root == "" {
		root = "/"
	}
	if _, err := s.UpsertCatalogItem(ctx, store.UpsertCatalogItemParams{
		Path: root, Kind: store.KindFolder, Title: root,
	}); err != nil {
		return nil, err
	}
	return s.FetchCatalogItemByPath(ctx, root)
}
