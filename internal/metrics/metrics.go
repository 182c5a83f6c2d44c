// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks open WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roomcast",
		Name:      "active_connections",
		Help:      "Number of open WebSocket connections.",
	})

	// EventsHandled counts dispatched client events by event name.
	EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roomcast",
		Name:      "events_handled_total",
		Help:      "Client events dispatched, by event name.",
	}, []string{"event"})

	// DroppedFrames counts outbound frames dropped on full send buffers.
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roomcast",
		Name:      "dropped_frames_total",
		Help:      "Outbound frames dropped because a client's send buffer was full.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
