// metrics.go - Prometheus counters for the billing surface.
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bilim/tuition-engine/billing"
)

var (
	generationRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tuition_generation_runs_total",
		Help: "Number of debt generation batches executed.",
	})

	generationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tuition_generation_outcomes_total",
		Help: "Per-student outcomes of debt generation batches.",
	}, []string{"outcome"})

	paymentsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tuition_payments_recorded_total",
		Help: "Number of manual payments recorded via the API.",
	})
)

func observeGeneration(report *billing.Report) {
	generationRuns.Inc()
	generationOutcomes.WithLabelValues(string(billing.OutcomeCreated)).Add(float64(report.Created()))
	generationOutcomes.WithLabelValues(string(billing.OutcomeSkipped)).Add(float64(report.Skipped()))
	generationOutcomes.WithLabelValues(string(billing.OutcomeFailed)).Add(float64(report.Failed()))
}
