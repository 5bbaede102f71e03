// Package metrics provides Prometheus instrumentation for the simulator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SnapshotsReceived counts orderbook snapshots accepted for processing.
	SnapshotsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costsim_snapshots_received_total",
		Help: "Orderbook snapshots received from the feed",
	})

	// EstimatesComputed counts successful cost estimates.
	EstimatesComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costsim_estimates_total",
		Help: "Cost estimates computed",
	})

	// EstimateErrors counts failed estimate computations.
	EstimateErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costsim_estimate_errors_total",
		Help: "Cost estimate computations that failed",
	})

	// ComputeLatency tracks the wall-clock duration of one model run.
	ComputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "costsim_compute_latency_seconds",
		Help:    "Cost model computation latency in seconds",
		Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
	})

	// FeedConnected is 1 while the market-data feed is open.
	FeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "costsim_feed_connected",
		Help: "Whether the market-data feed is connected",
	})

	// FeedReconnects counts reconnect attempts scheduled by the feed.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costsim_feed_reconnects_total",
		Help: "Feed reconnect attempts",
	})

	// WebSocketClients tracks connected consumer WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "costsim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
