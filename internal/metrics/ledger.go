// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerScriptDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sle_ledger_script_duration_seconds",
		Help:    "Ledger script round-trip latency",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"script"}) // script=acquire|extend|release|rollback

	LedgerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_ledger_retries_total",
		Help: "Transport-level retries per ledger script",
	}, []string{"script"})

	LedgerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sle_ledger_errors_total",
		Help: "Ledger script failures after retry by script and kind",
	}, []string{"script", "kind"}) // kind=timeout|transport|script

	LedgerScriptReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sle_ledger_script_reloads_total",
		Help: "Script cache misses answered with a full EVAL reload",
	})
)

// ObserveScript records one ledger script execution.
func ObserveScript(script string, seconds float64) {
	LedgerScriptDurationSeconds.WithLabelValues(script).Observe(seconds)
}

// IncLedgerRetry records a transport retry for a script.
func IncLedgerRetry(script string) {
	LedgerRetriesTotal.WithLabelValues(script).Inc()
}

// IncLedgerError records a terminal script failure.
func IncLedgerError(script, kind string) {
	LedgerErrorsTotal.WithLabelValues(script, kind).Inc()
}

// IncScriptReload records a NOSCRIPT fallback.
func IncScriptReload() {
	LedgerScriptReloadsTotal.Inc()
}
