// Package status is the operator-facing HTTP surface of the reconciler.
//
// # Endpoints
//
//   - GET  /transactions: keyset-paged listing, filterable by status and payout date.
//   - GET  /transactions/summary: per-status counts, variance totals and the last run.
//   - GET  /transactions/export: the same listing streamed as CSV.
//   - GET  /transactions/:id: one transaction.
//   - POST /transactions/:id/requeue: FAILED back to PENDING (404 unknown, 409 not FAILED).
//   - POST /runs: request a run (202, or 409 while one is active).
//   - GET  /runs/last: summary of the most recent run.
//   - GET, POST /exports: list and upload CSV exports in the bucket.
//
// The package only reads state and asks the scheduler for runs; it never
// reconciles on the request path.
package status
