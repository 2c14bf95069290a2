// Package metric provides Prometheus metrics for the graphql-router gateway.
//
// A single Metrics value carries all router-level collectors: request
// counters and latency, per-subgraph dispatch outcomes, supergraph poll
// cycles, and authentication failures. The gateway mounts the exposition
// handler at /metrics.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all router-level metrics
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Subgraph dispatch metrics
	SubgraphRequests *prometheus.CounterVec
	SubgraphDuration *prometheus.HistogramVec

	// Supergraph manager metrics
	PollCycles           *prometheus.CounterVec
	SupergraphGeneration prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered on a private
// registry
func New() *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphql_router",
				Subsystem: "requests",
				Name:      "total",
				Help:      "Total number of GraphQL requests by response status",
			},
			[]string{"status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "graphql_router",
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "GraphQL request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		SubgraphRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphql_router",
				Subsystem: "subgraph",
				Name:      "requests_total",
				Help:      "Total number of subgraph dispatches by subgraph and outcome",
			},
			[]string{"subgraph", "status"},
		),
		SubgraphDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "graphql_router",
				Subsystem: "subgraph",
				Name:      "duration_seconds",
				Help:      "Subgraph dispatch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"subgraph"},
		),
		PollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphql_router",
				Subsystem: "supergraph",
				Name:      "poll_cycles_total",
				Help:      "Supergraph poll cycles by outcome (changed, unchanged, error)",
			},
			[]string{"outcome"},
		),
		SupergraphGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "graphql_router",
				Subsystem: "supergraph",
				Name:      "generation",
				Help:      "Generation counter of the currently published supergraph",
			},
		),
		AuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphql_router",
				Subsystem: "auth",
				Name:      "failures_total",
				Help:      "Authentication failures by credential kind",
			},
			[]string{"kind"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.SubgraphRequests,
		m.SubgraphDuration,
		m.PollCycles,
		m.SupergraphGeneration,
		m.AuthFailures,
	)

	return m
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePollCycle records one supergraph poll cycle outcome
func (m *Metrics) ObservePollCycle(outcome string) {
	if m == nil {
		return
	}
	m.PollCycles.WithLabelValues(outcome).Inc()
}

// ObserveGeneration records the currently published supergraph generation
func (m *Metrics) ObserveGeneration(gen uint64) {
	if m == nil {
		return
	}
	m.SupergraphGeneration.Set(float64(gen))
}

// ObserveSubgraphRequest records one subgraph dispatch outcome
func (m *Metrics) ObserveSubgraphRequest(subgraph, status string, seconds float64) {
	if m == nil {
		return
	}
	m.SubgraphRequests.WithLabelValues(subgraph, status).Inc()
	m.SubgraphDuration.WithLabelValues(subgraph).Observe(seconds)
}

// ObserveRequest records one gateway request outcome
func (m *Metrics) ObserveRequest(status, operation string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveAuthFailure records one authentication failure
func (m *Metrics) ObserveAuthFailure(kind string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(kind).Inc()
}
