// Package metrics exposes Prometheus instrumentation for the clip pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nclip_jobs_submitted_total",
		Help: "Admission decisions at the dispatcher, by outcome",
	}, []string{"outcome"})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nclip_jobs_processed_total",
		Help: "Workflow instances reaching a terminal state, by status",
	}, []string{"status"})

	WorkflowRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nclip_workflow_retries_total",
		Help: "Whole-workflow retry attempts",
	})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nclip_step_duration_seconds",
		Help:    "Execution time of workflow steps (memo hits excluded)",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"step"})

	StepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nclip_step_failures_total",
		Help: "Step executions that returned an error",
	}, []string{"step"})

	CreditRefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nclip_credit_refunds_total",
		Help: "Refunds that actually credited a balance (idempotent replays excluded)",
	})

	ActiveWorkflows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nclip_active_workflows",
		Help: "Workflow instances currently executing",
	})
)
