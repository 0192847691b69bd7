// Package observability registers the Prometheus collectors for the sync core.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clubsync"

var (
	sweepRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Number of batch sweeps, labeled by outcome.",
	}, []string{"outcome"})

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "duration_seconds",
		Help:      "Wall time of a batch sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	sweepLastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "last_completed_timestamp_seconds",
		Help:      "Unix time the last sweep completed.",
	})

	userSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "user_passes_total",
		Help:      "Per-user sync passes, labeled by outcome and error kind.",
	}, []string{"outcome", "kind"})

	activitiesReconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "activities_reconciled_total",
		Help:      "Activities seen by the reconciler, labeled by action.",
	}, []string{"action"})

	tokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "token",
		Name:      "refreshes_total",
		Help:      "Access token refreshes, labeled by outcome.",
	}, []string{"outcome"})

	providerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "requests_total",
		Help:      "Requests sent to Strava, labeled by endpoint and status class.",
	}, []string{"endpoint", "status"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests served, labeled by route pattern and status code.",
	}, []string{"route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request latency by route pattern. Sync routes include the Strava round trips.",
		Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 15, 30, 60, 120},
	}, []string{"route"})

	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(
		sweepRuns,
		sweepDuration,
		sweepLastSuccess,
		userSyncs,
		activitiesReconciled,
		tokenRefreshes,
		providerRequests,
		httpRequests,
		httpDuration,
		breakerState,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSweep records a finished sweep.
func ObserveSweep(outcome string, elapsed time.Duration, finishedAt time.Time) {
	sweepRuns.WithLabelValues(outcome).Inc()
	sweepDuration.Observe(elapsed.Seconds())
	if outcome == "completed" {
		sweepLastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// ObserveUserSync records one per-user pass. kind is empty on success.
func ObserveUserSync(success bool, kind string) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	userSyncs.WithLabelValues(outcome, kind).Inc()
}

// ObserveReconcile records reconcile counters.
func ObserveReconcile(inserted, updated, unchanged int) {
	activitiesReconciled.WithLabelValues("inserted").Add(float64(inserted))
	activitiesReconciled.WithLabelValues("updated").Add(float64(updated))
	activitiesReconciled.WithLabelValues("unchanged").Add(float64(unchanged))
}

// ObserveTokenRefresh records a refresh attempt.
func ObserveTokenRefresh(success bool) {
	if success {
		tokenRefreshes.WithLabelValues("success").Inc()
		return
	}
	tokenRefreshes.WithLabelValues("failure").Inc()
}

// ObserveProviderRequest records one Strava request. status is the HTTP
// status code, or 0 when no response was received.
func ObserveProviderRequest(endpoint string, status int) {
	class := "error"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 200:
		class = "2xx"
	}
	providerRequests.WithLabelValues(endpoint, class).Inc()
}

// ObserveHTTPRequest records one served API request. route is the mux
// pattern that matched, e.g. "POST /api/v1/strava/sync".
func ObserveHTTPRequest(route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SetBreakerState records the current state of a named circuit breaker.
func SetBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}
