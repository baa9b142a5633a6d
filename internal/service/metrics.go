package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics recorded by JudgmentService.
type Metrics struct {
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	AuditWritesTotal   *prometheus.CounterVec
	EvaluationErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers the judgment metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judgment",
				Name:      "evaluations_total",
				Help:      "Total evaluations by resulting state",
			},
			[]string{"state", "matched"}, // state=ALLOW/HOLD/INDETERMINATE/STOP, matched=true/false
		),
		EvaluationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "judgment",
				Name:      "evaluation_duration_seconds",
				Help:      "Evaluation duration in seconds, including the audit write",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		AuditWritesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judgment",
				Name:      "audit_writes_total",
				Help:      "Audit sink appends by result",
			},
			[]string{"result"}, // result=ok/error
		),
		EvaluationErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "judgment",
				Name:      "evaluation_errors_total",
				Help:      "Evaluations that returned no decision",
			},
			[]string{"kind"}, // kind=match/logging
		),
	}
}
