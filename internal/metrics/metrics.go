// Package metrics exposes the server's prometheus collectors: request
// counters, task-state gauges, queue depth, and SSE/broker fan-out counters.
// It replaces the teacher's hand-rolled pkg/metrics.StreamingMetrics counters
// with registered prometheus collectors so the same numbers are scrapeable
// instead of only queryable in-process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the server registers, constructed once
// at startup and threaded through the HTTP/task/queue/broker layers.
type Registry struct {
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec

	TasksByState *prometheus.GaugeVec

	QueueDepth          *prometheus.GaugeVec
	QueueClaimsTotal    *prometheus.CounterVec
	QueueLeaseRevivals  prometheus.Counter
	QueueDispatchErrors prometheus.Counter

	SSEConnectionsTotal  prometheus.Counter
	SSEConnectionsActive prometheus.Gauge
	SSEEventsSentTotal   *prometheus.CounterVec
	SSEEventsDroppedTotal prometheus.Counter

	BrokerFanoutTotal *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		RPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_rpc_requests_total",
			Help: "JSON-RPC requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),

		RPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a2a_rpc_request_duration_seconds",
			Help:    "JSON-RPC request handling latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		TasksByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "a2a_tasks_by_state",
			Help: "Number of tasks currently in each lifecycle state.",
		}, []string{"state"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "a2a_queue_depth",
			Help: "Number of claimable agent tasks per codebase.",
		}, []string{"codebase_id"}),

		QueueClaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_queue_claims_total",
			Help: "Agent task claims, by outcome (success, conflict).",
		}, []string{"outcome"}),

		QueueLeaseRevivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_queue_lease_revivals_total",
			Help: "Agent tasks returned to pending after a lease expired.",
		}),

		QueueDispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_queue_dispatch_errors_total",
			Help: "Watch-mode dispatch failures that moved a codebase to error.",
		}),

		SSEConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_sse_connections_total",
			Help: "SSE streaming connections accepted.",
		}),

		SSEConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "a2a_sse_connections_active",
			Help: "SSE streaming connections currently open.",
		}),

		SSEEventsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_sse_events_sent_total",
			Help: "Events written to SSE subscribers, by channel.",
		}, []string{"channel"}),

		SSEEventsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a2a_sse_events_dropped_total",
			Help: "Events dropped because a subscriber's buffer was full.",
		}),

		BrokerFanoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_broker_fanout_total",
			Help: "Messages fanned out by the broker, by channel.",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.RPCRequestsTotal, m.RPCRequestDuration,
		m.TasksByState,
		m.QueueDepth, m.QueueClaimsTotal, m.QueueLeaseRevivals, m.QueueDispatchErrors,
		m.SSEConnectionsTotal, m.SSEConnectionsActive, m.SSEEventsSentTotal, m.SSEEventsDroppedTotal,
		m.BrokerFanoutTotal,
	)

	return m
}

// ObserveRPC records one JSON-RPC request's outcome and latency.
func (m *Registry) ObserveRPC(method, outcome string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
