// Package metrics exposes Prometheus instrumentation for the payment
// reconciliation pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. One instance is shared across the server.
type Metrics struct {
	registry *prometheus.Registry

	PaymentsInitialized *prometheus.CounterVec
	PaymentsSucceeded   *prometheus.CounterVec
	PaymentsFailed      *prometheus.CounterVec
	PlaceholdersCreated prometheus.Counter

	GatewayCallDuration *prometheus.HistogramVec
	GatewayCallErrors   *prometheus.CounterVec

	WebhooksReceived *prometheus.CounterVec
	ReceiptsQueued   prometheus.Counter
	ReceiptsDropped  prometheus.Counter

	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		PaymentsInitialized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_initialized_total",
			Help: "Payment intents created, by sales channel.",
		}, []string{"source"}),
		PaymentsSucceeded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_succeeded_total",
			Help: "Payments that converged to success, by the entry point that confirmed them.",
		}, []string{"entry_point"}),
		PaymentsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_failed_total",
			Help: "Payments marked failed, by the entry point that reported the failure.",
		}, []string{"entry_point"}),
		PlaceholdersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "payments_placeholders_created_total",
			Help: "Placeholder records created when verify or webhook raced ahead of initialize.",
		}),

		GatewayCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Latency of calls to the payment gateway.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		GatewayCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_call_errors_total",
			Help: "Failed gateway calls, by operation and error category.",
		}, []string{"operation", "category"}),

		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Webhook deliveries, by disposition.",
		}, []string{"disposition"}),
		ReceiptsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipts_queued_total",
			Help: "Receipts handed to the delivery outbox.",
		}),
		ReceiptsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipts_dropped_total",
			Help: "Receipts dropped because the outbox queue was full.",
		}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGatewayCall records one gateway call outcome.
func (m *Metrics) ObserveGatewayCall(operation string, started time.Time, category string) {
	m.GatewayCallDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if category != "" {
		m.GatewayCallErrors.WithLabelValues(operation, category).Inc()
	}
}

// Middleware instruments HTTP handlers with request duration by route.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			m.HTTPRequestDuration.
				WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).
				Observe(time.Since(started).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
