// Package metrics exposes Prometheus counters for build classification and gating.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

var (
	// FailuresTotal counts classified failures by type.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bacardi_failures_total",
			Help: "Total number of classified build failures",
		},
		[]string{"type"},
	)

	// GateDecisionsTotal counts pull-request gate outcomes.
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bacardi_gate_decisions_total",
			Help: "Total number of pull-request gate decisions",
		},
		[]string{"decision"},
	)

	// RecoveryActionsTotal counts recovery decisions per error category.
	RecoveryActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bacardi_recovery_actions_total",
			Help: "Total number of recovery actions taken",
		},
		[]string{"category", "action"},
	)

	// BuildAcquisitionsTotal counts build results by strategy and outcome.
	BuildAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bacardi_build_acquisitions_total",
			Help: "Total number of build results acquired",
		},
		[]string{"strategy", "success"},
	)

	// CommandDuration tracks external command latency.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bacardi_command_duration_seconds",
			Help:    "External command duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"command"},
	)
)

// RecordFailures adds each failure to FailuresTotal.
func RecordFailures(failures []models.Failure) {
	for _, f := range failures {
		FailuresTotal.WithLabelValues(string(f.Type)).Inc()
	}
}

// RecordGateDecision records an accepted or rejected gate outcome.
func RecordGateDecision(shouldCreatePR bool) {
	decision := "rejected"
	if shouldCreatePR {
		decision = "accepted"
	}
	GateDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordRecovery records the action chosen for a classified error.
func RecordRecovery(category models.ErrorCategory, action models.RecoveryAction) {
	RecoveryActionsTotal.WithLabelValues(string(category), string(action)).Inc()
}

// RecordAcquisition records a build result.
func RecordAcquisition(strategy models.BuildStrategy, success bool) {
	BuildAcquisitionsTotal.WithLabelValues(string(strategy), strconv.FormatBool(success)).Inc()
}

// WriteTextfile writes all registered metrics in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
