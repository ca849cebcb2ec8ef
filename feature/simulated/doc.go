// Package simulated provides an in-memory payment processor and ledger that
// generate a reproducible dataset.
//
// A Dataset implements both reconcile.PayoutSource and reconcile.LedgerSource
// so a full reconciliation run can be exercised without network access. Each
// generated payout is assigned one scenario:
//
//   - perfect_match: the ledger holds the net amount
//   - fee_mismatch: the ledger is short by part of the fees
//   - gross_recorded: the ledger holds the gross amount
//   - missing_deposit: the ledger has no entry yet
//   - duplicate_entry: the ledger holds two entries for the payout
//
// Correction batches are deduplicated by idempotency key, and corrections
// larger than MaxCorrection are rejected so the rejection path is covered
// as well.
package simulated
