// Package metrics exposes Prometheus collectors for the gate and the render backend.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/prerender-gate/internal/prerender"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	prerenderDecisionsTotal    *prometheus.CounterVec
	prerenderFetchesTotal      *prometheus.CounterVec
	prerenderBackendSeconds    prometheus.Histogram
	renderPagesTotal           *prometheus.CounterVec
	renderActiveTabs           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		prerenderDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prerender_decisions_total",
				Help: "Total number of prerender decisions, labeled by reason.",
			},
			[]string{"reason"},
		)

		prerenderFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prerender_fetches_total",
				Help: "Total number of render backend fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		prerenderBackendSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prerender_backend_duration_seconds",
				Help:    "Histogram of render backend fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		renderPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_pages_total",
				Help: "Total number of pages rendered by the backend, labeled by status.",
			},
			[]string{"status"},
		)

		renderActiveTabs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "render_active_tabs",
				Help: "Number of browser tabs currently rendering a page.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRender increments the rendered page counter for the given status.
func ObserveRender(status string) {
	renderPagesTotal.WithLabelValues(status).Inc()
}

// IncActiveTabs increments the active tabs gauge.
func IncActiveTabs() {
	renderActiveTabs.Inc()
}

// DecActiveTabs decrements the active tabs gauge.
func DecActiveTabs() {
	renderActiveTabs.Dec()
}

// Observer records prerender middleware events. Init must have been called.
type Observer struct{}

// NewObserver initializes the collectors and returns an Observer.
func NewObserver() Observer {
	Init()
	return Observer{}
}

// ObserveDecision implements prerender.Observer.
func (Observer) ObserveDecision(d prerender.Decision) {
	prerenderDecisionsTotal.WithLabelValues(string(d.Reason)).Inc()
}

// ObserveFetch implements prerender.Observer.
func (Observer) ObserveFetch(outcome prerender.Outcome, elapsed time.Duration) {
	prerenderFetchesTotal.WithLabelValues(string(outcome)).Inc()
	prerenderBackendSeconds.Observe(elapsed.Seconds())
}
