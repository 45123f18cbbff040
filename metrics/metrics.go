// Package metrics instruments the Runner's message loop with
// Prometheus counters and histograms, grounded on the teacher's
// metrics/metrics.go promauto-based recorder pattern.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xqts-suite/runnercore/types"
)

const namespace = "xqtsrun"

// Metrics wraps the Prometheus collectors this module exercises. Every
// collector carries a runID label so verdicts/latencies from different
// Runner instances sharing one process stay distinguishable. A nil
// *Metrics is valid everywhere it is used; ForRun on a nil receiver
// still returns a working no-op Scoped.
type Metrics struct {
	verdictsTotal        *prometheus.CounterVec
	resourceFetchSeconds *prometheus.HistogramVec
	compilationTimeMs    *prometheus.HistogramVec
	executionTimeMs      *prometheus.HistogramVec
	helperQueriesTotal   *prometheus.CounterVec
}

// New registers a fresh set of collectors against the default
// registerer. Call it once per process, not once per Runner instance;
// use ForRun to obtain a per-Runner recorder.
func New() *Metrics {
	return &Metrics{
		verdictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Count of RanTestCase verdicts by kind",
		}, []string{"status", "runID"}),
		resourceFetchSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resource_fetch_duration_seconds",
			Help:      "Latency of GetResource round-trips as observed by the runner",
			Buckets:   prometheus.DefBuckets,
		}, []string{"runID"}),
		compilationTimeMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_compilation_time_ms",
			Help:      "Per-verdict summed query compilation time",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"runID"}),
		executionTimeMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_execution_time_ms",
			Help:      "Per-verdict summed query execution time",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"runID"}),
		helperQueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assertion_helper_queries_total",
			Help:      "Count of helper queries evaluated while checking assertions",
		}, []string{"runID"}),
	}
}

// Scoped binds a runID to a Metrics instance so a Runner can record
// without repeating its own identity on every call, mirroring the
// child-logger pattern logging.New already applies to log.Logger.
type Scoped struct {
	m     *Metrics
	runID string
}

// ForRun binds runID to m. Safe to call on a nil *Metrics.
func (m *Metrics) ForRun(runID string) *Scoped {
	return &Scoped{m: m, runID: runID}
}

func (s *Scoped) RecordVerdict(kind types.VerdictKind) {
	if s == nil || s.m == nil {
		return
	}
	s.m.verdictsTotal.WithLabelValues(string(kind), s.runID).Inc()
}

func (s *Scoped) RecordResourceFetch(d time.Duration) {
	if s == nil || s.m == nil {
		return
	}
	s.m.resourceFetchSeconds.WithLabelValues(s.runID).Observe(d.Seconds())
}

func (s *Scoped) RecordTimings(t types.Timings) {
	if s == nil || s.m == nil {
		return
	}
	if t.CompilationTime >= 0 {
		s.m.compilationTimeMs.WithLabelValues(s.runID).Observe(float64(t.CompilationTime.Milliseconds()))
	}
	if t.ExecutionTime >= 0 {
		s.m.executionTimeMs.WithLabelValues(s.runID).Observe(float64(t.ExecutionTime.Milliseconds()))
	}
}

func (s *Scoped) RecordHelperQuery() {
	if s == nil || s.m == nil {
		return
	}
	s.m.helperQueriesTotal.WithLabelValues(s.runID).Inc()
}
