package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xiaot623/gogo/consult/internal/identity"
)

// Metrics are the gateway's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests          *prometheus.CounterVec
	reasoningDuration prometheus.Histogram
	identityCache     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consult_requests_total",
			Help: "Consultation requests by outcome.",
		}, []string{"outcome"}),
		reasoningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "consult_reasoning_duration_seconds",
			Help:    "Time spent in the diagnostic reasoner.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		identityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consult_identity_cache_total",
			Help: "Identity cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.requests, m.reasoningDuration, m.identityCache)
	return m
}

// ObserveIdentityCache counts an identity cache lookup.
func (m *Metrics) ObserveIdentityCache(result identity.CacheResult) {
	if m == nil {
		return
	}
	m.identityCache.WithLabelValues(string(result)).Inc()
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeReasoning(d time.Duration) {
	if m == nil {
		return
	}
	m.reasoningDuration.Observe(d.Seconds())
}
