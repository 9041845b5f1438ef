// ============================================================================
// Run Loader Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose Prometheus metrics for run-loader ingestion
//
// Metric Categories:
//
//   1. Event Counters - Cumulative, monotonically increasing:
//      - run_loader_events_read_total: Records successfully decoded
//      - run_loader_events_dropped_total: Records dropped (bad wall time)
//      - run_loader_files_dead_total: Files that transitioned to Dead
//      - run_loader_commits_total: Commit publications performed
//
//   2. Performance Metrics (Histogram) - Distribution stats:
//      - run_loader_commit_lock_seconds: Time the writer lock is held per commit
//
//   3. Status Metrics (Gauge) - Instantaneous values:
//      - run_loader_files_active: Currently Active files, by run
//      - run_loader_series_staged: Currently staged tag count, by run
//
// Adapted directly from the teacher's internal/metrics.Collector: same
// Counter/Histogram/Gauge shape, same NewCollector/MustRegister/StartServer
// pattern, renamed from queue_* job metrics to run_loader_* ingestion
// metrics, with per-run gauges taking a run label instead of being global.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for the run-loader process.
type Collector struct {
	eventsRead    prometheus.Counter
	eventsDropped prometheus.Counter
	filesDead     prometheus.Counter
	commitsTotal  prometheus.Counter

	commitLockSeconds prometheus.Histogram

	filesActive  *prometheus.GaugeVec
	seriesStaged *prometheus.GaugeVec
}

// NewCollector creates and registers a new metrics collector.
func NewCollector() *Collector {
	c := &Collector{
		eventsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "run_loader_events_read_total",
			Help: "Total number of event records successfully decoded",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "run_loader_events_dropped_total",
			Help: "Total number of event records dropped (invalid wall time)",
		}),
		filesDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "run_loader_files_dead_total",
			Help: "Total number of event files that transitioned to Dead",
		}),
		commitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "run_loader_commits_total",
			Help: "Total number of commit publications performed",
		}),
		commitLockSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "run_loader_commit_lock_seconds",
			Help:    "Time the per-run writer lock was held during a commit",
			Buckets: prometheus.DefBuckets,
		}),
		filesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "run_loader_files_active",
			Help: "Currently Active event files, by run",
		}, []string{"run"}),
		seriesStaged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "run_loader_series_staged",
			Help: "Currently staged tag count, by run",
		}, []string{"run"}),
	}

	prometheus.MustRegister(c.eventsRead)
	prometheus.MustRegister(c.eventsDropped)
	prometheus.MustRegister(c.filesDead)
	prometheus.MustRegister(c.commitsTotal)
	prometheus.MustRegister(c.commitLockSeconds)
	prometheus.MustRegister(c.filesActive)
	prometheus.MustRegister(c.seriesStaged)

	return c
}

// RecordEventRead records one successfully decoded record.
func (c *Collector) RecordEventRead() {
	c.eventsRead.Inc()
}

// RecordEventDropped records one record dropped for an invalid wall time.
func (c *Collector) RecordEventDropped() {
	c.eventsDropped.Inc()
}

// RecordFileDead records one file transitioning to Dead.
func (c *Collector) RecordFileDead() {
	c.filesDead.Inc()
}

// RecordCommit records one commit publication and how long its writer lock
// was held.
func (c *Collector) RecordCommit(lockSeconds float64) {
	c.commitsTotal.Inc()
	c.commitLockSeconds.Observe(lockSeconds)
}

// SetFilesActive sets the current Active file count for run.
func (c *Collector) SetFilesActive(run string, n int) {
	c.filesActive.WithLabelValues(run).Set(float64(n))
}

// SetSeriesStaged sets the current staged tag count for run.
func (c *Collector) SetSeriesStaged(run string, n int) {
	c.seriesStaged.WithLabelValues(run).Set(float64(n))
}

// StartServer starts the Prometheus metrics HTTP server on port, blocking
// until it fails or the process exits.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
