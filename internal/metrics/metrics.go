// Package metrics exposes Prometheus collectors for the auditor service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	auditorRunsTotal             *prometheus.CounterVec
	auditorCacheHitsTotal        prometheus.Counter
	auditorCaptureSeconds        *prometheus.HistogramVec
	auditorUploadsTotal          *prometheus.CounterVec
	auditorSynthesisTotal        *prometheus.CounterVec
	auditorStageErrorsTotal      *prometheus.CounterVec
	auditorActiveWorkers         prometheus.Gauge
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec
	auditorModelRequestsDuration *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		auditorRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditor_runs_total",
				Help: "Total number of audit runs, labeled by final status.",
			},
			[]string{"status"},
		)

		auditorCacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "auditor_cache_hits_total",
				Help: "Total number of runs answered from a previously persisted export.",
			},
		)

		auditorCaptureSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditor_capture_duration_seconds",
				Help:    "Histogram of viewport capture latencies, labeled by viewport and outcome.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"viewport", "outcome"},
		)

		auditorUploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditor_uploads_total",
				Help: "Total number of artifact uploads, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		auditorSynthesisTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditor_synthesis_total",
				Help: "Total number of synthesis calls, labeled by the source that produced the tickets.",
			},
			[]string{"source"},
		)

		auditorStageErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditor_stage_errors_total",
				Help: "Total number of recorded run errors, labeled by stage.",
			},
			[]string{"stage"},
		)

		auditorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "auditor_active_workers",
				Help: "Number of workers currently processing an audit.",
			},
		)

		auditorModelRequestsDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditor_model_request_duration_seconds",
				Help:    "Histogram of language model latencies, labeled by provider and outcome.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"provider", "outcome"},
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

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveRun increments the run counter for a final status.
func ObserveRun(status string) {
	Init()
	auditorRunsTotal.WithLabelValues(status).Inc()
}

// ObserveCacheHit counts a run served from cache.
func ObserveCacheHit() {
	Init()
	auditorCacheHitsTotal.Inc()
}

// ObserveCapture records one viewport capture.
func ObserveCapture(viewport, outcome string, duration time.Duration) {
	Init()
	auditorCaptureSeconds.WithLabelValues(viewport, outcome).Observe(duration.Seconds())
}

// ObserveUpload counts one artifact upload.
func ObserveUpload(kind, outcome string) {
	Init()
	auditorUploadsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveSynthesis counts a synthesis result by source.
func ObserveSynthesis(source string) {
	Init()
	auditorSynthesisTotal.WithLabelValues(source).Inc()
}

// ObserveStageError counts a recorded run error.
func ObserveStageError(stage string) {
	Init()
	auditorStageErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveModelRequest records a language model call.
func ObserveModelRequest(provider, outcome string, duration time.Duration) {
	Init()
	auditorModelRequestsDuration.WithLabelValues(provider, outcome).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	auditorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	auditorActiveWorkers.Dec()
}
