// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus collectors of the lock engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_operations_total",
		Help: "Coordinator operations by type and outcome",
	}, []string{"op", "outcome"}) // op=acquire|extend|release|convert|rollback|block|unblock

	OperationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sle_operation_duration_seconds",
		Help:    "End-to-end coordinator operation latency",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .15, .25, .5, 1},
	}, []string{"op"})

	AcquireConflictSeats = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sle_acquire_conflict_seats",
		Help:    "Number of conflicting seats reported per failed acquire",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 25},
	})

	ActiveHolds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sle_active_holds",
		Help: "Holds currently in ACTIVE or EXTENDED state",
	})

	SeatsHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sle_seats_held",
		Help: "Seats currently locked in the ledger (last reaper sweep)",
	})

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sle_idempotent_replays_total",
		Help: "Requests answered from the idempotency registry",
	})

	StaleTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_stale_tokens_total",
		Help: "Mutations rejected because the fencing token was stale",
	}, []string{"op"})

	HoldsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sle_holds_expired_total",
		Help: "Holds transitioned to EXPIRED by the reaper",
	})

	ReaperSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_reaper_sweeps_total",
		Help: "Reaper sweeps by outcome",
	}, []string{"outcome"}) // outcome=ok|error

	ReaperSweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sle_reaper_sweep_duration_seconds",
		Help:    "Duration of a single reaper sweep",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordOperation records one coordinator operation with its outcome and latency.
func RecordOperation(op, outcome string, seconds float64) {
	OperationsTotal.WithLabelValues(op, outcome).Inc()
	OperationDurationSeconds.WithLabelValues(op).Observe(seconds)
}

// RecordAcquireConflict records the conflict set size of a failed acquire.
func RecordAcquireConflict(seats int) {
	AcquireConflictSeats.Observe(float64(seats))
}

// IncStaleToken records a fenced mutation that lost against a newer version.
func IncStaleToken(op string) {
	StaleTokensTotal.WithLabelValues(op).Inc()
}

// IncIdempotentReplay records a request served from the idempotency registry.
func IncIdempotentReplay() {
	IdempotentReplaysTotal.Inc()
}

// SetActiveHolds sets the active hold gauge.
func SetActiveHolds(n float64) {
	ActiveHolds.Set(n)
}

// SetSeatsHeld sets the held seat gauge.
func SetSeatsHeld(n float64) {
	SeatsHeld.Set(n)
}

// RecordSweep records one reaper sweep.
func RecordSweep(outcome string, seconds float64, expired int) {
	ReaperSweepsTotal.WithLabelValues(outcome).Inc()
	ReaperSweepDurationSeconds.Observe(seconds)
	if expired > 0 {
		HoldsExpiredTotal.Add(float64(expired))
	}
}

// GetActiveHolds returns the current gauge value (for testing).
func GetActiveHolds() float64 {
	var m dto.Metric
	if err := ActiveHolds.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
