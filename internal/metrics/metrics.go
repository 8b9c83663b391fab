// Package metrics exposes Prometheus instrumentation for pipeline runs and
// the query cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the pipeline and the read side.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Runs by outcome: success, partial, failure
	Runs *prometheus.CounterVec

	// Full run duration including verification
	RunDuration prometheus.Histogram

	// Table loads by table and status: success, skipped, failed
	TableLoads *prometheus.CounterVec

	// Rows persisted by table on the last successful load
	RowsPersisted *prometheus.GaugeVec

	// Row errors by code
	RowErrors *prometheus.CounterVec

	// Post-load count mismatches by table
	VerificationMismatches *prometheus.CounterVec

	// Query cache lookups by query and result: hit, miss
	CacheLookups *prometheus.CounterVec
}

// New creates a Metrics instance on its own registry, so several instances
// can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortages_pipeline_runs_total",
			Help: "Total pipeline runs by outcome",
		}, []string{"outcome"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shortages_pipeline_run_duration_seconds",
			Help:    "Duration of a full pipeline run",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		TableLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortages_table_loads_total",
			Help: "Table load attempts by table and status",
		}, []string{"table", "status"}),

		RowsPersisted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shortages_table_rows_persisted",
			Help: "Rows persisted by the last successful load of each table",
		}, []string{"table"}),

		RowErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortages_row_errors_total",
			Help: "Rows degraded or rejected during normalization by code",
		}, []string{"code"}),

		VerificationMismatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortages_verification_mismatches_total",
			Help: "Post-load row count mismatches by table",
		}, []string{"table"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortages_query_cache_lookups_total",
			Help: "Query cache lookups by query and result",
		}, []string{"query", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	if m != nil {
		m.Runs.WithLabelValues(outcome).Inc()
		m.RunDuration.Observe(d.Seconds())
	}
}

// ObserveTableLoad records one table load and, on success, its row count.
func (m *Metrics) ObserveTableLoad(table, status string, persisted int64) {
	if m == nil {
		return
	}
	m.TableLoads.WithLabelValues(table, status).Inc()
	if status == "success" {
		m.RowsPersisted.WithLabelValues(table).Set(float64(persisted))
	}
}

// AddRowErrors counts row errors for a code.
func (m *Metrics) AddRowErrors(code string, n int) {
	if m != nil && n > 0 {
		m.RowErrors.WithLabelValues(code).Add(float64(n))
	}
}

// IncrementMismatch records a verification mismatch.
func (m *Metrics) IncrementMismatch(table string) {
	if m != nil {
		m.VerificationMismatches.WithLabelValues(table).Inc()
	}
}

// ObserveCacheLookup records a cache hit or miss.
func (m *Metrics) ObserveCacheLookup(query string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(query, result).Inc()
}
