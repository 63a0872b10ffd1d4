// Package metrics declares the prometheus/client_golang collectors the
// orchestrator exposes, grounded on the teacher's own metrics
// registration style (a package-level struct of pre-registered
// collectors, constructed once at startup and passed down by reference
// rather than referenced through global package state).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the pipeline, data layer, scenario
// executor and verifier record against.
type Metrics struct {
	StageLatency       *prometheus.HistogramVec
	StageTotal         *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	QueryLatency       *prometheus.HistogramVec
	VerificationIssues *prometheus.CounterVec
	ScenarioFailures   prometheus.Counter
	CircuitBreakerOpen *prometheus.GaugeVec
	MaterializationRun *prometheus.CounterVec
}

// New registers every collector against reg and returns the bundle.
// Passing a fresh prometheus.NewRegistry() keeps tests isolated from the
// default global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qnwis",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Stage execution latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		StageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qnwis",
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Stage completions by terminal status.",
		}, []string{"stage", "status"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qnwis",
			Subsystem: "dataquery",
			Name:      "cache_hits_total",
			Help:      "Query cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qnwis",
			Subsystem: "dataquery",
			Name:      "cache_misses_total",
			Help:      "Query cache misses.",
		}),
		QueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qnwis",
			Subsystem: "dataquery",
			Name:      "query_latency_seconds",
			Help:      "Query execution latency in seconds, by query_id.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query_id"}),
		VerificationIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qnwis",
			Subsystem: "verifier",
			Name:      "issues_total",
			Help:      "Verification issues by code.",
		}, []string{"code"}),
		ScenarioFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qnwis",
			Subsystem: "scenarios",
			Name:      "failures_total",
			Help:      "Scenario executions that ended in ScenarioFailure.",
		}),
		CircuitBreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "qnwis",
			Subsystem: "dataquery",
			Name:      "circuit_breaker_open",
			Help:      "1 when the per-dataset circuit breaker is open, else 0.",
		}, []string{"dataset"}),
		MaterializationRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qnwis",
			Subsystem: "materialize",
			Name:      "refresh_total",
			Help:      "Materialization refresh attempts by view and outcome.",
		}, []string{"view", "outcome"}),
	}

	reg.MustRegister(
		m.StageLatency, m.StageTotal, m.CacheHits, m.CacheMisses,
		m.QueryLatency, m.VerificationIssues, m.ScenarioFailures,
		m.CircuitBreakerOpen, m.MaterializationRun,
	)
	return m
}
