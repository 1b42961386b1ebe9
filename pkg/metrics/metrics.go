package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ReconcileIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_issued_total",
			Help: "Total number of pricing reconciliation requests issued",
		},
	)

	ReconcileOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_outcomes_total",
			Help: "Outcomes of pricing reconciliation responses",
		},
		[]string{"outcome"}, // applied | dropped_stale | failed
	)

	ReconcileLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_latency_seconds",
			Help:    "Latency of pricing reconciliation calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	CheckoutSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_submissions_total",
			Help: "Total number of checkout submissions by outcome",
		},
		[]string{"outcome"}, // succeeded | invalid | failed | duplicate
	)

	PaymentInitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_init_total",
			Help: "Total number of payment init calls",
		},
		[]string{"method"},
	)

	SnapshotWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_write_failures_total",
			Help: "Failed durable snapshot writes by key",
		},
		[]string{"key"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Current number of active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		ReconcileIssuedTotal,
		ReconcileOutcomesTotal,
		ReconcileLatencySeconds,
		CheckoutSubmissionsTotal,
		PaymentInitTotal,
		SnapshotWriteFailuresTotal,
		WSConnections,
	)
}

// ObserveHTTPRequest records metrics for an HTTP request
func ObserveHTTPRequest(method, path, status string, startedAt time.Time) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, path, status).Observe(time.Since(startedAt).Seconds())
}

// ObserveReconcile records the outcome and latency of a reconciliation call
func ObserveReconcile(outcome string, startedAt time.Time) {
	ReconcileOutcomesTotal.WithLabelValues(outcome).Inc()
	ReconcileLatencySeconds.Observe(time.Since(startedAt).Seconds())
}
