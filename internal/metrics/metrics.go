// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchTotal counts outbound provider calls by kind (binding, offline,
	// config) and outcome (accepted, rejected, timeout, connection, other).
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_dispatch_total",
			Help: "Outbound provider dispatches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provision_dispatch_duration_seconds",
			Help:    "Latency of outbound provider dispatches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// CallbackTotal counts inbound callbacks by channel and result
	// (success, failed, unresolved, invalid).
	CallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_callback_total",
			Help: "Inbound provider callbacks by channel and result",
		},
		[]string{"channel", "result"},
	)

	// RetryTotal counts records handled by the manual retry pass.
	RetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_retry_total",
			Help: "Bindings processed by the manual retry pass",
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provision_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_notifications_total",
			Help: "Web push notifications by outcome",
		},
		[]string{"outcome"},
	)
)
