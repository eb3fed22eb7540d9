package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names registered by the server. Gauges track current values, the
// *_total metrics are monotonic counters.
const (
	ActiveSessions  = "active_sessions"
	OnlineUsers     = "online_users"
	EventsPublished = "events_published_total"
	EventsDelivered = "events_delivered_total"
	EventsDropped   = "events_dropped_total"
	PushSent        = "push_sent_total"
	PushFailed      = "push_failed_total"
)

type Provider interface {
	Incr(name string)
	Decr(name string)
}

type PrometheusStats struct {
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge
	counters map[string]prometheus.Counter
}

func NewPrometheusStats() *PrometheusStats {
	ps := &PrometheusStats{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
		counters: make(map[string]prometheus.Counter),
	}

	for name, help := range map[string]string{
		ActiveSessions: "Current number of live subscription sessions",
		OnlineUsers:    "Current number of users with at least one open connection",
	} {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "convo",
			Name:      name,
			Help:      help,
		})
		ps.registry.MustRegister(g)
		ps.gauges[name] = g
	}

	for name, help := range map[string]string{
		EventsPublished: "Total events published on the bus",
		EventsDelivered: "Total events delivered to subscribers",
		EventsDropped:   "Total events dropped due to slow subscribers",
		PushSent:        "Total successful push deliveries",
		PushFailed:      "Total failed push deliveries",
	} {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "convo",
			Name:      name,
			Help:      help,
		})
		ps.registry.MustRegister(c)
		ps.counters[name] = c
	}

	return ps
}

func (ps *PrometheusStats) Incr(name string) {
	if g, ok := ps.gauges[name]; ok {
		g.Inc()
		return
	}
	if c, ok := ps.counters[name]; ok {
		c.Inc()
	}
}

func (ps *PrometheusStats) Decr(name string) {
	if g, ok := ps.gauges[name]; ok {
		g.Dec()
	}
}

// Handler exposes the registry for a /metrics endpoint.
func (ps *PrometheusStats) Handler() http.Handler {
	return promhttp.HandlerFor(ps.registry, promhttp.HandlerOpts{})
}
