// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Placements counts placement outcomes; result is "ok" or an error code.
	Placements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "slotbook_placements_total", Help: "Order placements by result."},
		[]string{"result", "kind"},
	)
	// PlacementRetries counts attempts that lost a race and were retried.
	PlacementRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "slotbook_placement_retries_total", Help: "Placement attempts retried after a conflict."},
	)
	PlacementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "slotbook_placement_duration_seconds", Help: "Placement duration including retries.", Buckets: prometheus.DefBuckets},
	)
	// Notifications counts notification outcomes by event type and status
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "slotbook_notifications_total", Help: "Notifications by event type and status."},
		[]string{"event_type", "status"},
	)
	TravelTimeRows = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "slotbook_travel_time_rows", Help: "Rows in the active travel-time table."},
	)
	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "slotbook_stream_subscribers", Help: "Open day stream websocket connections."},
	)
)

// RegisterDefault registers collectors to the service registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Placements, PlacementRetries, PlacementDuration)
		Registry.MustRegister(Notifications, TravelTimeRows, StreamSubscribers)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
