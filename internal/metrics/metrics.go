// Package metrics exposes Prometheus collectors for claim processing.
// Exposition (serving /metrics) is the embedding service's concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearlane/claimflow/pkg/models"
)

// Recorder records claim and agent outcome metrics. A nil *Recorder is a
// valid no-op, so callers never need to guard their call sites.
type Recorder struct {
	claims   *prometheus.CounterVec
	agents   *prometheus.CounterVec
	duration prometheus.Histogram
}

// New creates a recorder and registers its collectors. A nil registerer
// uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		claims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimflow_claims_decided_total",
				Help: "Total claims decided, by final status",
			},
			[]string{"status"},
		),
		agents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimflow_agent_outcomes_total",
				Help: "Total agent outcomes, by agent and result",
			},
			[]string{"agent", "result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "claimflow_claim_duration_seconds",
				Help:    "Wall-clock duration of claim workflows",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
	}
	reg.MustRegister(r.claims, r.agents, r.duration)
	return r
}

// RecordResult records one finished claim workflow.
func (r *Recorder) RecordResult(result *models.WorkflowResult) {
	if r == nil || result == nil {
		return
	}
	r.claims.WithLabelValues(string(result.Decision.Status)).Inc()
	r.duration.Observe(result.Duration.Seconds())
}

// RecordAgent records one agent's terminal outcome.
func (r *Recorder) RecordAgent(outcome models.AgentOutcome) {
	if r == nil {
		return
	}
	result := "failed"
	if outcome.Verdict != nil {
		result = string(outcome.Verdict.Status)
	}
	r.agents.WithLabelValues(outcome.Agent, result).Inc()
}
