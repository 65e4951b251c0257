package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Stream counters
	StreamsOpened     atomic.Uint64
	TicksReceived     atomic.Uint64
	MalformedMessages atomic.Uint64
	Heartbeats        atomic.Uint64
	StreamEnds        atomic.Uint64
	StreamDisconnects atomic.Uint64
	BackendErrors     atomic.Uint64

	// Live connections (0 or 1 per session)
	LiveConnections atomic.Int64

	// Alerting and rendering
	AlertsEmitted atomic.Uint64
	Renders       atomic.Uint64

	// Control plane
	ControlFailures atomic.Uint64
	RestartFailures atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) register() {
	m.counter("firewatch_streams_opened_total", "Stream connections opened", &m.StreamsOpened)
	m.counter("firewatch_ticks_received_total", "Tick events received", &m.TicksReceived)
	m.counter("firewatch_malformed_messages_total", "Stream payloads discarded as unparseable", &m.MalformedMessages)
	m.counter("firewatch_heartbeats_total", "Heartbeat events received", &m.Heartbeats)
	m.counter("firewatch_stream_ends_total", "Streams finished with an end event", &m.StreamEnds)
	m.counter("firewatch_stream_disconnects_total", "Streams closed without an end event", &m.StreamDisconnects)
	m.counter("firewatch_backend_errors_total", "Error events reported by the backend", &m.BackendErrors)
	m.counter("firewatch_alerts_emitted_total", "Alert log entries created", &m.AlertsEmitted)
	m.counter("firewatch_renders_total", "Overlay renders", &m.Renders)
	m.counter("firewatch_control_failures_total", "Failed pause/resume requests", &m.ControlFailures)
	m.counter("firewatch_restart_failures_total", "Failed restart requests", &m.RestartFailures)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "firewatch_live_connections",
			Help: "Stream connections currently open",
		},
		func() float64 { return float64(m.LiveConnections.Load()) },
	))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
