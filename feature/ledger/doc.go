// Package ledger connects the reconciler to the accounting ledger API.
//
// FindEntries calls GET /v1/entries?reference=... and keeps only entries
// whose reference matches exactly. CreateEntriesBatch posts correction
// entries to POST /v1/entries/batch with an Idempotency-Key header and
// returns one result per entry, in request order.
package ledger
