// Package reconcile matches payment processor payouts against accounting
// ledger entries and keeps a durable reconciliation state per payout.
//
// # Flow
//
// A run walks the processor's payouts page by page (PayoutStream), looks up
// the ledger entry for each payout by its reference key (Matcher), computes
// the variance (CalculateVariance) and upserts a Transaction in the Store.
// Variances can optionally be corrected by posting offsetting entries to the
// ledger in batches (BatchWriter).
//
// # States
//
//	PENDING  -> MATCHED | VARIANCE | FAILED
//	VARIANCE -> MATCHED (correction accepted, or re-match within tolerance)
//	VARIANCE -> FAILED  (correction rejected)
//	FAILED   -> PENDING (operator requeue only)
//
// MATCHED transactions with a zero variance are never reprocessed. VARIANCE
// transactions are re-evaluated on every run. FAILED transactions wait for
// an operator.
//
// # External calls
//
// Every call to the processor or the ledger goes through Backoff, which
// retries rate limiting and server errors with capped exponential backoff
// and honors Retry-After. Writes without an idempotency key are only retried
// when the server rejected them with 429. Exhausted retries surface as a
// *TransientFailure and turn the affected payout into FAILED without
// stopping the run.
//
// # Concurrency
//
// Engine.Run holds an in-process run lock; a concurrent Run or Prune gets
// ErrRunInProgress. Payouts are dispatched in ingestion order to a bounded
// errgroup. Work on one payout is serialized by a per-run keyed mutex, and
// concurrent lookups of the same reference share one ledger call.
//
// # Usage
//
//	engine, err := reconcile.NewEngine(cfg, reconcile.Dependencies{
//	    Source: processorClient,
//	    Ledger: ledgerClient,
//	    Store:  store.New(db),
//	    Logger: logger,
//	})
//	summary, err := engine.Run(ctx)
package reconcile
