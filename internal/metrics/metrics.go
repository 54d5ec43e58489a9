// Package metrics holds the Prometheus instruments for the forecast
// pipeline and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_runs_total",
			Help: "Total number of pipeline runs by final status",
		},
		[]string{"status"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecast_phase_duration_seconds",
			Help:    "Duration of pipeline phases in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase", "status"},
	)

	DroppedRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forecast_dropped_rows_total",
			Help: "Rows dropped during cleaning because a required field failed to parse",
		},
	)

	QualityScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecast_quality_score",
			Help:    "Distribution of data quality scores",
			Buckets: []float64{20, 40, 60, 70, 80, 90, 100},
		},
	)

	FlagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_flags_total",
			Help: "Sanity flags raised on forecasts by code",
		},
		[]string{"code"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forecast_provider_breaker_state",
			Help: "Provider circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	// Ingestion
	SourceLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_source_loads_total",
			Help: "Dataset loads by source kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecast_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forecast_active_sessions",
			Help: "Sessions held by the in-process session store",
		},
	)
)

// RecordRun counts a finished run.
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// RecordPhase observes one phase duration.
func RecordPhase(phase, status string, d time.Duration) {
	PhaseDuration.WithLabelValues(phase, status).Observe(d.Seconds())
}

// RecordDataset records cleaning and audit outcomes for a loaded dataset.
func RecordDataset(dropped, score int) {
	if dropped > 0 {
		DroppedRowsTotal.Add(float64(dropped))
	}
	QualityScore.Observe(float64(score))
}

// RecordFlag counts a sanity flag.
func RecordFlag(code string) {
	FlagsTotal.WithLabelValues(code).Inc()
}

// RecordSourceLoad counts a source load attempt.
func RecordSourceLoad(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SourceLoadsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetBreakerState publishes a breaker state by its String() name.
func SetBreakerState(provider, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	BreakerState.WithLabelValues(provider).Set(v)
}

// SetActiveSessions publishes the in-process session count.
func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
