// Package store persists reconciliation transactions with GORM.
//
// One row per payout lives in the transactions table. Upserts are atomic per
// payout and skip writes that would not change the stored state, so a rerun
// over unchanged data leaves the table untouched. List pages by payout id and
// Summary aggregates counts and variance per status for audit views.
//
// Every database failure is wrapped with reconcile.ErrPersistence.
package store
