// Package metrics provides Prometheus collection for the HTTP service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records service-level metrics. A nil *Collector is valid and
// records nothing, so one-shot CLI commands can skip metrics entirely.
type Collector struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	enrolled        prometheus.Gauge
	extractFailures *prometheus.CounterVec
}

// NewCollector creates a new Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_requests_total",
			Help: "Requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facegate_request_duration_seconds",
			Help:    "Operation duration in seconds, including model inference.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		enrolled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "facegate_enrolled_identities",
			Help: "Number of currently enrolled identities.",
		}),
		extractFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "facegate_extract_failures_total",
			Help: "Embedding extraction failures by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.requests,
		c.duration,
		c.enrolled,
		c.extractFailures,
	)

	return c
}

// RecordRequest records one completed operation with its outcome code.
func (c *Collector) RecordRequest(operation, outcome string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(operation, outcome).Inc()
}

// RecordDuration records how long an operation took.
func (c *Collector) RecordDuration(operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetEnrolled updates the enrolled identity gauge.
func (c *Collector) SetEnrolled(count int) {
	if c == nil {
		return
	}
	c.enrolled.Set(float64(count))
}

// RecordExtractFailure records an embedding extraction failure.
func (c *Collector) RecordExtractFailure(reason string) {
	if c == nil {
		return
	}
	c.extractFailures.WithLabelValues(reason).Inc()
}

// Handler returns an HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
