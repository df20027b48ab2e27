// Package metrics holds the Prometheus collectors exported on /sw/metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kidbuddy_gateway_requests_total",
			Help: "Intercepted requests by strategy and response source",
		},
		[]string{"strategy", "source"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "kidbuddy_gateway_fetch_duration_seconds",
			Help: "Origin fetch duration in seconds",
		},
		[]string{"outcome"},
	)

	StoreWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kidbuddy_gateway_store_write_failures_total",
			Help: "Background cache writes that failed",
		},
		[]string{"store"},
	)

	StoresPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kidbuddy_gateway_stores_purged_total",
			Help: "Stores deleted during activation",
		},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kidbuddy_gateway_connected_clients",
			Help: "Foreground contexts connected to the notification hub",
		},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kidbuddy_gateway_broadcasts_total",
			Help: "Messages broadcast to foreground contexts by type",
		},
		[]string{"type"},
	)

	DroppedPayloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kidbuddy_gateway_dropped_payloads_total",
			Help: "Malformed sync, push or relay payloads that were dropped",
		},
		[]string{"kind"},
	)
)
