package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"payout-reconciler/core/reconcile"

	"github.com/shopspring/decimal"
	"github.com/zeebo/xxh3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a payout has no transaction.
	ErrNotFound = reconcile.ErrNotFound
	// ErrNotRequeueable is returned when requeuing a transaction that is not FAILED.
	ErrNotRequeueable = errors.New("only FAILED transactions can be requeued")
)

const (
	lockStripes  = 64
	defaultLimit = 100
	maxLimit     = 1000
)

// updatableColumns are rewritten when an upsert hits an existing row.
var updatableColumns = []string{
	"ledger_entry_id", "status", "variance_amount", "variance_kind",
	"net_amount", "currency", "payout_date", "correction_entry_id",
	"correction_amount", "reason", "diagnostics", "attempt_count",
	"last_attempt_at", "updated_at",
}

// Store is the GORM-backed reconciliation state store.
type Store struct {
	db      *gorm.DB
	stripes [lockStripes]sync.Mutex
}

var _ reconcile.Store = (*Store)(nil)

// New wraps db. Call Migrate before first use.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the transactions and lease tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}, &LeaseRecord{}); err != nil {
		return fmt.Errorf("%w: migrate %s: %w", reconcile.ErrPersistence, TableName, err)
	}
	return nil
}

// lock serializes writers of one payout inside this process.
func (s *Store) lock(payoutID string) func() {
	mu := &s.stripes[xxh3.HashString(payoutID)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// Find returns the transaction of payoutID, or nil when there is none.
func (s *Store) Find(ctx context.Context, payoutID string) (*reconcile.Transaction, error) {
	var rec Record
	res := s.db.WithContext(ctx).Where("payout_id = ?", payoutID).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: find %s: %w", reconcile.ErrPersistence, payoutID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	tx, err := rec.toTransaction()
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", reconcile.ErrPersistence, payoutID, err)
	}
	return &tx, nil
}

// Upsert inserts or replaces the transaction atomically. A write whose
// state equals the stored one is skipped.
func (s *Store) Upsert(ctx context.Context, tx reconcile.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	rec, err := toRecord(tx)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", reconcile.ErrPersistence, tx.PayoutID, err)
	}

	unlock := s.lock(tx.PayoutID)
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var existing Record
		res := db.Where("payout_id = ?", tx.PayoutID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			if current, err := existing.toTransaction(); err == nil && sameState(current, tx) {
				return nil
			}
			rec.CreatedAt = existing.CreatedAt
		}

		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payout_id"}},
			DoUpdates: clause.AssignmentColumns(updatableColumns),
		}).Create(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", reconcile.ErrPersistence, tx.PayoutID, err)
	}
	return nil
}

// Prune deletes MATCHED transactions whose last attempt is older than
// olderThan. Other statuses are never pruned.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status = ? AND last_attempt_at < ?", string(reconcile.StatusMatched), olderThan.UTC()).
		Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: prune: %w", reconcile.ErrPersistence, res.Error)
	}
	return res.RowsAffected, nil
}

// Requeue moves a FAILED transaction back to PENDING so the next run
// retries it. The previous failure reason is kept in diagnostics.
func (s *Store) Requeue(ctx context.Context, payoutID string) (*reconcile.Transaction, error) {
	unlock := s.lock(payoutID)
	defer unlock()

	current, err := s.Find(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, payoutID)
	}
	if current.Status != reconcile.StatusFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRequeueable, payoutID, current.Status)
	}

	next := *current
	next.Status = reconcile.StatusPending
	next.LedgerEntryID = ""
	next.VarianceAmount = decimal.NullDecimal{}
	next.VarianceKind = reconcile.VarianceNone
	next.Reason = ""
	next.Diagnostics = map[string]string{"requeued_from": current.Reason}
	next.AttemptCount = 0

	rec, err := toRecord(next)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", reconcile.ErrPersistence, payoutID, err)
	}
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("payout_id = ? AND status = ?", payoutID, string(reconcile.StatusFailed)).
		Select(updatableColumns).
		Updates(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: requeue %s: %w", reconcile.ErrPersistence, payoutID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s changed concurrently", ErrNotRequeueable, payoutID)
	}
	return s.Find(ctx, payoutID)
}
