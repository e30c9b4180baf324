package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors of the room server. All methods
// are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry        *prometheus.Registry
	connections     *prometheus.GaugeVec
	eventsPublished *prometheus.CounterVec
	deliveryDrops   prometheus.Counter
	rateLimited     prometheus.Counter
	votesResolved   *prometheus.CounterVec
	votesCast       prometheus.Counter
	advances        prometheus.Counter
	activeRooms     prometheus.Gauge
}

// New creates and registers the collectors on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "volitus",
			Name:      "ws_connections",
			Help:      "Current WebSocket connections by role",
		}, []string{"role"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "volitus",
			Name:      "events_published_total",
			Help:      "Events published to rooms by type",
		}, []string{"type"}),
		deliveryDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "volitus",
			Name:      "delivery_drops_total",
			Help:      "Messages dropped because a connection was closed or too slow",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "volitus",
			Name:      "inbound_rate_limited_total",
			Help:      "Inbound client messages rejected by the per-connection limiter",
		}),
		votesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "volitus",
			Name:      "votes_resolved_total",
			Help:      "Resolved votes by resolution",
		}, []string{"resolved_by"}),
		votesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "volitus",
			Name:      "votes_cast_total",
			Help:      "Counted (non duplicate) vote casts",
		}),
		advances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "volitus",
			Name:      "drama_advances_total",
			Help:      "Successful narrative advance calls",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "volitus",
			Name:      "active_rooms",
			Help:      "Rooms with a loaded story",
		}),
	}

	registry.MustRegister(
		m.connections,
		m.eventsPublished,
		m.deliveryDrops,
		m.rateLimited,
		m.votesResolved,
		m.votesCast,
		m.advances,
		m.activeRooms,
	)
	return m
}

// Handler exposes the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AddConnections adjusts the connection gauge of a role by delta
func (m *Metrics) AddConnections(role string, delta float64) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Add(delta)
}

// IncEventsPublished counts one published event
func (m *Metrics) IncEventsPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// IncDeliveryDrops counts one undelivered message
func (m *Metrics) IncDeliveryDrops() {
	if m == nil {
		return
	}
	m.deliveryDrops.Inc()
}

// IncRateLimited counts one rejected inbound message
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// IncVotesResolved counts one resolved vote
func (m *Metrics) IncVotesResolved(resolvedBy string) {
	if m == nil {
		return
	}
	m.votesResolved.WithLabelValues(resolvedBy).Inc()
}

// IncVotesCast counts one recorded cast
func (m *Metrics) IncVotesCast() {
	if m == nil {
		return
	}
	m.votesCast.Inc()
}

// IncAdvances counts one successful advance
func (m *Metrics) IncAdvances() {
	if m == nil {
		return
	}
	m.advances.Inc()
}

// SetActiveRooms sets the active room gauge
func (m *Metrics) SetActiveRooms(n int) {
	if m == nil {
		return
	}
	m.activeRooms.Set(float64(n))
}
