// Package metrics declares the Prometheus collectors the engine, room
// registry, upgrade handler, and Redis adapter report through.
//
// Naming convention: namespace_subsystem_name, Gauge for current state,
// Counter for cumulative events, Histogram for latency distributions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks the current number of open sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "socketio",
		Subsystem: "session",
		Name:      "active",
		Help:      "Current number of open Socket.IO sessions.",
	})

	// RoomsActive tracks the current number of non-empty rooms.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "socketio",
		Subsystem: "room",
		Name:      "active",
		Help:      "Current number of rooms with at least one member.",
	})

	// RoomMembers tracks the member count of each room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "socketio",
		Subsystem: "room",
		Name:      "members",
		Help:      "Current number of sockets joined to a room.",
	}, []string{"room_id"})

	// FramesTotal counts frames handled by the engine, labelled by kind and
	// outcome (ok, dropped, malformed, write_error).
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "frame",
		Name:      "total",
		Help:      "Total frames processed by the session engine.",
	}, []string{"kind", "outcome"})

	// UpgradesTotal counts handshake attempts, labelled by outcome.
	UpgradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "upgrade",
		Name:      "total",
		Help:      "Total upgrade attempts, by outcome.",
	}, []string{"outcome"})

	// AdapterQueueDropped counts broadcast messages dropped from the
	// bounded adapter publish queue due to overflow.
	AdapterQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "socketio",
		Subsystem: "adapter",
		Name:      "queue_dropped_total",
		Help:      "Total messages dropped from the adapter publish queue due to overflow.",
	})

	// AdapterCircuitState mirrors the Redis adapter's circuit breaker
	// state: 0=closed, 1=open, 2=half-open.
	AdapterCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "socketio",
		Subsystem: "adapter",
		Name:      "circuit_state",
		Help:      "Redis adapter circuit breaker state (0=closed, 1=open, 2=half-open).",
	}, []string{"backend"})
)
