// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/adaspeas/deliveryd/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deliveryd_jobs_dispatched_total",
		Help: "Jobs picked up off the queue, by kind",
	}, []string{"kind"})
	JobsSucceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deliveryd_jobs_succeeded_total",
		Help: "Jobs that reached the succeeded state, by kind",
	}, []string{"kind"})
	JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deliveryd_jobs_failed_total",
		Help: "Jobs that reached the failed terminal state, by kind",
	}, []string{"kind"})
	JobsRetried = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deliveryd_jobs_retried_total",
		Help: "Jobs requeued after a transient failure, by kind",
	}, []string{"kind"})
	JobProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deliveryd_job_processing_duration_seconds",
		Help:    "Time spent processing a job end to end, by kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	CatalogNodesVisited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliveryd_catalog_nodes_visited_total",
		Help: "Folder/file nodes observed during catalog sync runs",
	})
	CatalogItemsSoftDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliveryd_catalog_items_soft_deleted_total",
		Help: "Catalog items marked deleted for not being seen in a sync pass",
	})
	CatalogSyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "deliveryd_catalog_sync_duration_seconds",
		Help:    "Duration of a full catalog sync run",
		Buckets: prometheus.DefBuckets,
	})

	DeliveryCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliveryd_delivery_cache_hits_total",
		Help: "Deliveries served from a cached content handle",
	})
	DeliveryCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliveryd_delivery_cache_misses_total",
		Help: "Deliveries that required a spool-and-upload round trip",
	})

	AccessWarningsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliveryd_access_warnings_sent_total",
		Help: "Pre-expiry warning messages sent to users",
	})
	AccessExpirations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliveryd_access_expirations_total",
		Help: "Users transitioned to expired state",
	})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deliveryd_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	}, []string{"driver"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "deliveryd_queue_depth",
		Help: "Current length of the durable job queue",
	})

	TableRows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deliveryd_table_rows",
		Help: "Row counts of the relational store's tables",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(
		JobsDispatched, JobsSucceeded, JobsFailed, JobsRetried, JobProcessingDuration,
		CatalogNodesVisited, CatalogItemsSoftDeleted, CatalogSyncDuration,
		DeliveryCacheHits, DeliveryCacheMisses,
		AccessWarningsSent, AccessExpirations,
		CircuitBreakerState, QueueDepth, TableRows,
	)
}

// StartMetricsServer exposes /metrics alone; prefer StartHTTPServer for a
// full health/ready surface.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
