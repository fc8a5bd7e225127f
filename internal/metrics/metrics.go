// Package metrics exposes Prometheus collectors for the enrichment pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	acquireAttemptsTotal       *prometheus.CounterVec
	acquireDurationSeconds     *prometheus.HistogramVec
	acquireBytesTotal          *prometheus.CounterVec
	unitsTotal                 *prometheus.CounterVec
	unitsInFlight              prometheus.Gauge
	generationCallsTotal       *prometheus.CounterVec
	generationWaitSeconds      prometheus.Histogram
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		acquireAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgraph_acquire_attempts_total",
				Help: "Acquisition tier attempts, labeled by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		)

		acquireDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadgraph_acquire_duration_seconds",
				Help:    "Histogram of acquisition tier latencies, labeled by tier.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"tier"},
		)

		acquireBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgraph_acquire_bytes_total",
				Help: "Total bytes of content acquired, labeled by tier.",
			},
			[]string{"tier"},
		)

		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgraph_units_total",
				Help: "Enrichment units processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		unitsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadgraph_units_in_flight",
				Help: "Number of enrichment units currently running.",
			},
		)

		generationCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgraph_generation_calls_total",
				Help: "Generation service calls, labeled by status.",
			},
			[]string{"status"},
		)

		generationWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadgraph_generation_wait_seconds",
				Help:    "Histogram of pacing waits before generation calls.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadgraph_runs_total",
				Help: "Pipeline runs, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAcquire records one tier attempt.
func ObserveAcquire(tier, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	acquireAttemptsTotal.WithLabelValues(tier, outcome).Inc()
	acquireDurationSeconds.WithLabelValues(tier).Observe(duration.Seconds())
	if bytesFetched > 0 {
		acquireBytesTotal.WithLabelValues(tier).Add(float64(bytesFetched))
	}
}

// ObserveUnit increments the unit counter for the given outcome.
func ObserveUnit(outcome string) {
	Init()
	unitsTotal.WithLabelValues(outcome).Inc()
}

// IncUnitsInFlight increments the in-flight units gauge.
func IncUnitsInFlight() {
	Init()
	unitsInFlight.Inc()
}

// DecUnitsInFlight decrements the in-flight units gauge.
func DecUnitsInFlight() {
	Init()
	unitsInFlight.Dec()
}

// ObserveGeneration records a generation call result and the pacing wait before it.
func ObserveGeneration(status string, wait time.Duration) {
	Init()
	generationCallsTotal.WithLabelValues(status).Inc()
	generationWaitSeconds.Observe(wait.Seconds())
}

// ObserveRun increments the run counter.
func ObserveRun(status string) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
