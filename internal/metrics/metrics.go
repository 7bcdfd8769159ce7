// Package metrics defines the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine collectors. They are registered on an injected
// registerer so embedding hosts keep control of the registry.
type Metrics struct {
	SessionsCreated   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	SessionsTimedOut  prometheus.Counter
	ActiveSessions    prometheus.Gauge
	NodesExecuted     *prometheus.CounterVec
	MessagesDeduped   prometheus.Counter
}

// New creates and registers the engine metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmachine", Name: "sessions_created_total",
			Help: "Flow sessions created.",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmachine", Name: "sessions_completed_total",
			Help: "Flow sessions that reached completion.",
		}),
		SessionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmachine", Name: "sessions_failed_total",
			Help: "Flow sessions that failed (executor error, cycle, depth).",
		}),
		SessionsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmachine", Name: "sessions_timed_out_total",
			Help: "Flow sessions expired by the timeout sweep or timers.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowmachine", Name: "active_sessions",
			Help: "Live (active or waiting) sessions currently in memory.",
		}),
		NodesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmachine", Name: "nodes_executed_total",
			Help: "Node executions by node type.",
		}, []string{"type"}),
		MessagesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmachine", Name: "messages_deduped_total",
			Help: "Inbound messages skipped by the duplicate guard.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SessionsCreated, m.SessionsCompleted, m.SessionsFailed,
			m.SessionsTimedOut, m.ActiveSessions, m.NodesExecuted,
			m.MessagesDeduped,
		)
	}
	return m
}

// NewNop returns unregistered collectors, for tests and embedders that do
// not care about metrics.
func NewNop() *Metrics {
	return New(nil)
}
