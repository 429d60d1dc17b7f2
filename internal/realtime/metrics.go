package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the hub's prometheus collectors.
type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Events      *prometheus.CounterVec
	Dropped     prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "conote", Subsystem: "realtime", Name: "connections",
			Help: "Open websocket connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "conote", Subsystem: "realtime", Name: "rooms",
			Help: "Note rooms with at least one member.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conote", Subsystem: "realtime", Name: "events_total",
			Help: "Server to client events delivered, by event name.",
		}, []string{"event"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conote", Subsystem: "realtime", Name: "dropped_total",
			Help: "Deliveries dropped because a client send buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Rooms, m.Events, m.Dropped)
	}
	return m
}
