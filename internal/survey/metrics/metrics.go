// Package metrics provides observability for the survey module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks survey command volumes, outcomes, and durations.
type Metrics struct {
	CommandsTotal      *prometheus.CounterVec
	PolicyDenialsTotal *prometheus.CounterVec
	SaveConflictsTotal prometheus.Counter
	ResponsesSubmitted prometheus.Counter
	CommandDuration    *prometheus.HistogramVec
}

// New creates a Metrics instance with all survey module metrics registered.
func New() *Metrics {
	return &Metrics{
		CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refahi_survey_commands_total",
			Help: "Total survey commands by operation and outcome",
		}, []string{"operation", "outcome"}),
		PolicyDenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "refahi_survey_policy_denials_total",
			Help: "Commands denied by participation or navigation policy, by reason",
		}, []string{"reason"}),
		SaveConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refahi_survey_save_conflicts_total",
			Help: "Versioned saves rejected by optimistic concurrency",
		}),
		ResponsesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refahi_survey_responses_submitted_total",
			Help: "Responses successfully submitted",
		}),
		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refahi_survey_command_duration_seconds",
			Help:    "Duration of survey command handling",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

// RecordCommand records one command's outcome and duration.
func (m *Metrics) RecordCommand(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(operation, outcome).Inc()
	m.CommandDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordPolicyDenial records a policy-gated refusal by machine reason.
func (m *Metrics) RecordPolicyDenial(reason string) {
	if m == nil {
		return
	}
	m.PolicyDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordSaveConflict records an optimistic-concurrency rejection.
func (m *Metrics) RecordSaveConflict() {
	if m == nil {
		return
	}
	m.SaveConflictsTotal.Inc()
}

// RecordSubmission records a successful submit.
func (m *Metrics) RecordSubmission() {
	if m == nil {
		return
	}
	m.ResponsesSubmitted.Inc()
}
