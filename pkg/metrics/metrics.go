// Package metrics exposes per-engine Prometheus collectors for the
// aggregation core. The processor records one observation per invocation;
// the API serves them on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EngineRequests counts processor invocations by engine and outcome kind.
	EngineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metis_engine_requests_total",
			Help: "Total number of engine invocations by engine and outcome kind",
		},
		[]string{"engine", "kind"},
	)

	// EngineLatency tracks upstream latency per engine, successes only.
	EngineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metis_engine_latency_seconds",
			Help:    "Latency of successful engine invocations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)

	// EngineRetries counts retry attempts by engine.
	EngineRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metis_engine_retries_total",
			Help: "Total number of retried engine requests",
		},
		[]string{"engine"},
	)

	// EngineSuspensions counts circuit breaker trips by engine.
	EngineSuspensions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metis_engine_suspensions_total",
			Help: "Total number of circuit breaker suspensions",
		},
		[]string{"engine"},
	)

	// SearchDuration tracks end-to-end aggregation latency.
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metis_search_duration_seconds",
			Help:    "End-to-end duration of aggregated searches",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// ObserveOutcome records one terminal engine outcome.
func ObserveOutcome(engine, kind string, elapsed time.Duration, success bool) {
	EngineRequests.WithLabelValues(engine, kind).Inc()
	if success {
		EngineLatency.WithLabelValues(engine).Observe(elapsed.Seconds())
	}
}
