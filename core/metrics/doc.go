// Package metrics exposes the counters and histograms emitted by a
// reconciliation run.
//
// Callers depend on the Collector interface. NewNop returns a collector that
// discards everything and is what tests and one-shot CLI commands use.
// NewPrometheus returns a collector backed by client_golang whose metric
// families are created and registered lazily on first use, so constructing
// one never panics on duplicate registration until something is recorded.
//
// Metric families (namespace defaults to "payout_reconciler"):
//
//   - runs_total{result}                  completed runs by result (ok, error, deadline, interrupted)
//   - run_duration_seconds                wall time of a run
//   - payout_outcomes_total{outcome}      per-payout outcomes (MATCHED, VARIANCE, PENDING, FAILED, skipped, deferred)
//   - external_retries_total{op}          retry attempts per external operation
//   - external_backoff_seconds{op}        observed backoff delays
//   - correction_batches_total{result}    batch submissions (ok, failed)
//   - correction_entries_total{result}    per-entry verdicts (accepted, rejected)
//   - pruned_transactions_total           rows removed by retention pruning
package metrics
