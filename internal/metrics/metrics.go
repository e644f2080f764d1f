// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics defines the Prometheus instruments recorded by the
// pipeline and the knowledge store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "litreview"

// Metrics holds the instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// PhaseDuration tracks pipeline phase latency by phase and outcome.
	PhaseDuration *prometheus.HistogramVec

	// RunsTotal counts finished runs by terminal phase (done or failed).
	RunsTotal *prometheus.CounterVec

	// RankingRejected counts ranked items dropped during validation.
	RankingRejected prometheus.Counter

	// SynthesisChunks counts streamed synthesis deltas.
	SynthesisChunks prometheus.Counter

	// StoreMutations counts knowledge store writes by operation.
	StoreMutations *prometheus.CounterVec
}

// New registers the instruments with reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Pipeline phase duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"phase", "outcome"}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal phase",
		}, []string{"result"}),
		RankingRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_rejected_total",
			Help:      "Ranked items rejected during validation",
		}),
		SynthesisChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_chunks_total",
			Help:      "Synthesis text deltas streamed",
		}),
		StoreMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_mutations_total",
			Help:      "Knowledge store writes by operation",
		}, []string{"op"}),
	}
}

// ObservePhase records one phase duration in seconds.
func (m *Metrics) ObservePhase(phase, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase, outcome).Observe(seconds)
}

// RunFinished counts a finished run.
func (m *Metrics) RunFinished(result string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
}

// Rejected adds n validation rejections.
func (m *Metrics) Rejected(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RankingRejected.Add(float64(n))
}

// Chunk counts one synthesis delta.
func (m *Metrics) Chunk() {
	if m == nil {
		return
	}
	m.SynthesisChunks.Inc()
}

// Mutation counts one store write.
func (m *Metrics) Mutation(op string) {
	if m == nil {
		return
	}
	m.StoreMutations.WithLabelValues(op).Inc()
}
