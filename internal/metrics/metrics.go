// Package metrics declares the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "regionscan"

// Scan outcomes.
const (
	OutcomeComplete = "complete"
	OutcomeFailed   = "failed"
	OutcomeInvalid  = "invalid"
	OutcomeCanceled = "canceled"
)

var (
	// ScansTotal counts finished scans by outcome.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Finished scans by outcome.",
	}, []string{"outcome"})

	// ScanDuration observes wall time of scans that reached a terminal event.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Wall time of a scan from request to terminal event.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
	})

	// ServersTotal counts per-server locate attempts by result (located, failed).
	ServersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "servers_total",
		Help:      "Server locate attempts by result.",
	}, []string{"result"})

	// UpstreamRequests counts outbound API calls by api and HTTP status (or "error").
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Outbound API requests by api and status code.",
	}, []string{"api", "code"})

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})
)
