package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// HTTP returns the lazily-initialised registry recording HTTP traffic, both
// served by the node and issued by the audit tool.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by component, route and outcome.",
			}, []string{"component", "route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total HTTP errors segmented by component, route and status code.",
			}, []string{"component", "route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lotto",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"component", "route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lotto",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests delayed or rejected by rate limiting.",
			}, []string{"component", "reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of a request. status is the HTTP status that was
// written or received; zero denotes a transport failure.
func (m *httpMetrics) Observe(component, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if component == "" {
		component = "unknown"
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status == 0 || status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(component, route, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(component, route, outcome).Inc()
	m.latency.WithLabelValues(component, route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards remain consistent.
func (m *httpMetrics) RecordThrottle(component, reason string) {
	if m == nil {
		return
	}
	if component == "" {
		component = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(component, reason).Inc()
}
