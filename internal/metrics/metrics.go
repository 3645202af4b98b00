// Package metrics holds the Prometheus collectors exported on /ops/metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegate_access_requests_submitted_total",
			Help: "Access requests written to the ledger, by target kind.",
		},
		[]string{"kind"},
	)

	RequestsRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegate_access_requests_refused_total",
			Help: "Submissions refused before any write, by reason.",
		},
		[]string{"reason"},
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegate_access_decisions_total",
			Help: "Administrator decisions recorded, by resulting status.",
		},
		[]string{"status"},
	)

	EntitlementWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinegate_entitlement_write_failures_total",
			Help: "Entitlement merges that still failed after retries.",
		},
	)

	EntitlementsRepaired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinegate_entitlements_repaired_total",
			Help: "Entitlements added by the reconciler for approved requests.",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinegate_http_requests_total",
			Help: "HTTP requests served, by method, route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinegate_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
