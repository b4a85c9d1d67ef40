// Package metrics exposes Prometheus collectors for the fogwatch service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	camerasTotal           *prometheus.CounterVec
	labelerDurationSeconds *prometheus.HistogramVec
	labelResultsTotal      *prometheus.CounterVec
	refreshRequestsTotal   *prometheus.CounterVec
	runDurationSeconds     prometheus.Histogram
	activeCameraTasks      prometheus.Gauge
	discoveryTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		camerasTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fogwatch_cameras_total",
				Help: "Total camera tasks processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		labelerDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fogwatch_labeler_duration_seconds",
				Help:    "Histogram of vision labeler call latencies, labeled by variant.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"labeler"},
		)

		labelResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fogwatch_label_results_total",
				Help: "Total label results, labeled by variant and status.",
			},
			[]string{"labeler", "status"},
		)

		refreshRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fogwatch_refresh_requests_total",
				Help: "On-demand refresh requests, labeled by outcome (cached, refreshed, stale, error).",
			},
			[]string{"outcome"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fogwatch_run_duration_seconds",
				Help:    "Histogram of full collection run durations.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)

		activeCameraTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fogwatch_active_camera_tasks",
				Help: "Number of camera tasks currently in flight.",
			},
		)

		discoveryTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fogwatch_discovery_total",
				Help: "Dynamic URL discovery attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCamera increments the camera outcome counter.
func ObserveCamera(status string) {
	camerasTotal.WithLabelValues(status).Inc()
}

// ObserveLabel records one labeler call.
func ObserveLabel(labeler string, status string, duration time.Duration) {
	labelResultsTotal.WithLabelValues(labeler, status).Inc()
	labelerDurationSeconds.WithLabelValues(labeler).Observe(duration.Seconds())
}

// ObserveRefresh increments the refresh outcome counter.
func ObserveRefresh(outcome string) {
	refreshRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records a completed run's duration.
func ObserveRun(duration time.Duration) {
	runDurationSeconds.Observe(duration.Seconds())
}

// IncActiveCameraTasks increments the in-flight gauge.
func IncActiveCameraTasks() {
	activeCameraTasks.Inc()
}

// DecActiveCameraTasks decrements the in-flight gauge.
func DecActiveCameraTasks() {
	activeCameraTasks.Dec()
}

// ObserveDiscovery increments the discovery outcome counter.
func ObserveDiscovery(outcome string) {
	discoveryTotal.WithLabelValues(outcome).Inc()
}
