// Package metrics exposes Prometheus collectors for the ledger and the RPC layer.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "settle"

// Metrics holds the collectors.
type Metrics struct {
	groupsCreated prometheus.Counter
	payments      *prometheus.CounterVec
	claims        *prometheus.CounterVec
	fabrications  *prometheus.CounterVec
	confirmation  prometheus.Histogram
	rpcRequests   *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		groupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_created_total",
			Help:      "Groups created.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment attempts by outcome.",
		}, []string{"outcome"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claims by outcome.",
		}, []string{"outcome"}),
		fabrications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fabrications_total",
			Help:      "Placeholder records created for unknown payment links.",
		}, []string{"kind"}),
		confirmation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirmation_seconds",
			Help:      "Time from transfer submission to confirmation.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60},
		}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC requests by procedure and code.",
		}, []string{"procedure", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC latency by procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
	}

	reg.MustRegister(
		m.groupsCreated,
		m.payments,
		m.claims,
		m.fabrications,
		m.confirmation,
		m.rpcRequests,
		m.rpcDuration,
	)
	return m
}

func (m *Metrics) GroupCreated() {
	if m == nil {
		return
	}
	m.groupsCreated.Inc()
}

func (m *Metrics) Payment(outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Claim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Fabricated(kind string) {
	if m == nil {
		return
	}
	m.fabrications.WithLabelValues(kind).Inc()
}

func (m *Metrics) Confirmed(d time.Duration) {
	if m == nil {
		return
	}
	m.confirmation.Observe(d.Seconds())
}

func (m *Metrics) RPC(procedure, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	m.rpcDuration.WithLabelValues(procedure).Observe(d.Seconds())
}
