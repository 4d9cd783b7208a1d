// Package metrics exposes gateway Prometheus metrics on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Signed URL exchange outcomes.
const (
	OutcomeIssued        = "issued"
	OutcomeRejected      = "rejected"
	OutcomeUpstreamError = "upstream_error"
)

// Metrics holds all Prometheus metrics for the gateway. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SignedURLTotal   *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
}

// New creates a Metrics instance with every collector registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "convai_gateway"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"route"},
	)

	signedURLTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signed_url_exchanges_total",
			Help:      "Signed URL exchanges by outcome",
		},
		[]string{"outcome"},
	)

	upstreamDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "ElevenLabs credential exchange latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		signedURLTotal,
		upstreamDuration,
	)

	return &Metrics{
		registry:         registry,
		RequestsTotal:    requestsTotal,
		RequestDuration:  requestDuration,
		SignedURLTotal:   signedURLTotal,
		UpstreamDuration: upstreamDuration,
	}
}

// RegisterDraining exports a gauge that is 1 while draining reports true.
func (m *Metrics) RegisterDraining(namespace string, draining func() bool) {
	if m == nil || draining == nil {
		return
	}
	if namespace == "" {
		namespace = "convai_gateway"
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "draining",
			Help:      "1 while the gateway is draining for shutdown",
		},
		func() float64 {
			if draining() {
				return 1
			}
			return 0
		},
	))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordSignedURL records one exchange. upstream is zero when the request
// was rejected before reaching ElevenLabs.
func (m *Metrics) RecordSignedURL(outcome string, upstream time.Duration) {
	if m == nil {
		return
	}
	m.SignedURLTotal.WithLabelValues(outcome).Inc()
	if upstream > 0 {
		m.UpstreamDuration.Observe(upstream.Seconds())
	}
}

// Instrument records requests served by next under a fixed route label.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.RecordRequest(route, rw.status, time.Since(start))
	})
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
