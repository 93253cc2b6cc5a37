// Package metrics exposes Prometheus collectors for statement execution,
// reference data import, measurement resolution and migration.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private registry so that tests and the command line can
// create independent instances.
type Recorder struct {
	registry   *prometheus.Registry
	store      string
	statements *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	loaded     *prometheus.CounterVec
	failed     *prometheus.CounterVec
	resolved   *prometheus.CounterVec
	migrated   *prometheus.CounterVec
}

// New constructs a Recorder and registers its collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gnutr_statements_total",
			Help: "Executed statements by store and outcome.",
		}, []string{"store", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gnutr_statement_duration_seconds",
			Help:    "Statement execution latency by store.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"store"}),
		loaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gnutr_reference_rows_loaded_total",
			Help: "Rows bulk loaded into reference and lookup tables.",
		}, []string{"table"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gnutr_data_files_failed_total",
			Help: "Reference data files that could not be read.",
		}, []string{"table"}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gnutr_measure_resolutions_total",
			Help: "Measurement resolutions by winning tier.",
		}, []string{"tier"}),
		migrated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gnutr_migrated_rows_total",
			Help: "Rows carried from the legacy store.",
		}, []string{"table"}),
	}
	r.registry.MustRegister(r.statements, r.durations, r.loaded, r.failed, r.resolved, r.migrated)
	return r
}

// Registry returns the registry holding every collector.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ForStore returns a view of the recorder that labels statements with store.
func (r *Recorder) ForStore(store string) *Recorder {
	if r == nil {
		return nil
	}
	cp := *r
	cp.store = store
	return &cp
}

// Observe records one executed statement.
func (r *Recorder) Observe(_ context.Context, _ string, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	store := r.store
	if store == "" {
		store = "current"
	}
	status := "error"
	if success {
		status = "success"
	}
	r.statements.WithLabelValues(store, status).Inc()
	r.durations.WithLabelValues(store).Observe(duration.Seconds())
}

// RowsLoaded adds n bulk loaded rows for table.
func (r *Recorder) RowsLoaded(table string, n int64) {
	if r == nil {
		return
	}
	r.loaded.WithLabelValues(table).Add(float64(n))
}

// FileFailed counts an unreadable data file for table.
func (r *Recorder) FileFailed(table string) {
	if r == nil {
		return
	}
	r.failed.WithLabelValues(table).Inc()
}

// Resolved counts one measurement resolution outcome.
func (r *Recorder) Resolved(tier string) {
	if r == nil {
		return
	}
	r.resolved.WithLabelValues(tier).Inc()
}

// Migrated adds n migrated rows for table.
func (r *Recorder) Migrated(table string, n int) {
	if r == nil {
		return
	}
	r.migrated.WithLabelValues(table).Add(float64(n))
}

// WriteFile writes the registry in text exposition format to path.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
