// Package metrics exposes Prometheus collectors for the real-time layer and
// the deadline sweeper. A nil *Metrics is valid and records nothing, so
// components and tests can run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskhub"

// Metrics groups every collector the service records.
type Metrics struct {
	registry *prometheus.Registry

	pushes           *prometheus.CounterVec
	pushDrops        prometheus.Counter
	connections      prometheus.Gauge
	notifications    *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	sweepTransitions *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	sweepConflicts   prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "pushes_total",
			Help:      "Events written to connected sessions, by event name.",
		}, []string{"event"}),
		pushDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "push_drops_total",
			Help:      "Events dropped because a session's send buffer was full.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently open real-time sessions.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications persisted, by type.",
		}, []string{"type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "transitions_total",
			Help:      "User-initiated task transitions, by action.",
		}, []string{"action"}),
		sweepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "transitions_total",
			Help:      "Workflow phases changed by the deadline sweep, by target phase.",
		}, []string{"to"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "duration_seconds",
			Help:      "Wall time of a full deadline sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "skipped_total",
			Help:      "Sweep writes skipped because the task changed underneath.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pushes, m.pushDrops, m.connections, m.notifications,
		m.transitions, m.sweepTransitions, m.sweepDuration, m.sweepConflicts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Pushed(event string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(event).Inc()
}

func (m *Metrics) PushDropped() {
	if m == nil {
		return
	}
	m.pushDrops.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) NotificationStored(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) Transition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

func (m *Metrics) SweepTransition(to string) {
	if m == nil {
		return
	}
	m.sweepTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) SweepSkipped() {
	if m == nil {
		return
	}
	m.sweepConflicts.Inc()
}

func (m *Metrics) SweepFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}
