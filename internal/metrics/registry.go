package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine and batch metrics for the compliance backend

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxc",
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Total number of compliance evaluations",
		},
		[]string{"tax_type", "status"},
	)

	evaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxc",
			Subsystem: "engine",
			Name:      "evaluation_duration_seconds",
			Help:      "Compliance evaluation duration",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs to ~400ms
		},
		[]string{"tax_type"},
	)

	penaltiesComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxc",
			Subsystem: "engine",
			Name:      "penalties_computed_total",
			Help:      "Total number of penalties computed",
		},
		[]string{"penalty_type"},
	)

	paymentsAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taxc",
			Subsystem: "engine",
			Name:      "payments_applied_total",
			Help:      "Total number of payments applied to penalty ledgers",
		},
	)

	alertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxc",
			Subsystem: "engine",
			Name:      "alerts_emitted_total",
			Help:      "Total number of compliance alerts emitted",
		},
		[]string{"severity"},
	)

	ruleSnapshotLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxc",
			Subsystem: "cache",
			Name:      "rule_snapshot_lookups_total",
			Help:      "Rule snapshot cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	batchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxc",
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Total number of batch recomputation runs",
		},
		[]string{"status"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taxc",
			Subsystem: "batch",
			Name:      "run_duration_seconds",
			Help:      "Batch recomputation run duration",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
		},
	)

	batchTrackersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxc",
			Subsystem: "batch",
			Name:      "trackers_processed_total",
			Help:      "Trackers processed by batch runs",
		},
		[]string{"outcome"},
	)
)

// RecordEvaluation records one completed evaluation
func RecordEvaluation(taxType, status string, duration time.Duration) {
	evaluationsTotal.WithLabelValues(taxType, status).Inc()
	evaluationDuration.WithLabelValues(taxType).Observe(duration.Seconds())
}

// RecordPenaltyComputed records one computed penalty instance
func RecordPenaltyComputed(penaltyType string) {
	penaltiesComputedTotal.WithLabelValues(penaltyType).Inc()
}

// RecordPaymentApplied records one payment applied to a ledger
func RecordPaymentApplied() {
	paymentsAppliedTotal.Inc()
}

// RecordAlertEmitted records one emitted alert
func RecordAlertEmitted(severity string) {
	alertsEmittedTotal.WithLabelValues(severity).Inc()
}

// RecordRuleSnapshotLookup records a cache lookup outcome (hit or miss)
func RecordRuleSnapshotLookup(outcome string) {
	ruleSnapshotLookups.WithLabelValues(outcome).Inc()
}

// RecordBatchRun records one batch run
func RecordBatchRun(status string, duration time.Duration) {
	batchRunsTotal.WithLabelValues(status).Inc()
	batchDuration.Observe(duration.Seconds())
}

// RecordBatchTracker records one tracker handled by a batch run
func RecordBatchTracker(outcome string) {
	batchTrackersProcessed.WithLabelValues(outcome).Inc()
}
