package store

import (
	"context"
	"fmt"
	"time"

	"payout-reconciler/core/reconcile"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeaseTableName holds one row per named lease.
const LeaseTableName = "run_locks"

// RunLease is the lease shared by runs, prunes and manual corrections.
const RunLease = "reconcile"

// LeaseRecord is the GORM model of a named lease.
type LeaseRecord struct {
	Name      string    `gorm:"primaryKey;size:64"`
	Holder    string    `gorm:"size:64;not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

// TableName implements gorm's Tabler.
func (LeaseRecord) TableName() string {
	return LeaseTableName
}

// Lease is a named lease stored next to the transactions, so every process
// using the database sees it.
type Lease struct {
	db   *gorm.DB
	name string
	now  func() time.Time
}

var _ reconcile.Lease = (*Lease)(nil)

// Lease returns the lease called name.
func (s *Store) Lease(name string) *Lease {
	return &Lease{db: s.db, name: name, now: func() time.Time { return time.Now().UTC() }}
}

// Acquire claims the lease for holder until ttl from now. The row is
// inserted when missing and otherwise taken over only when it is expired or
// already owned by holder.
func (l *Lease) Acquire(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	now := l.now()
	rec := LeaseRecord{Name: l.name, Holder: holder, ExpiresAt: now.Add(ttl)}
	db := l.db.WithContext(ctx)

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("%w: claim lease %s: %w", reconcile.ErrPersistence, l.name, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	res = db.Model(&LeaseRecord{}).
		Where("name = ? AND (holder = ? OR expires_at < ?)", l.name, holder, now).
		Updates(map[string]any{"holder": holder, "expires_at": rec.ExpiresAt})
	if res.Error != nil {
		return false, fmt.Errorf("%w: take over lease %s: %w", reconcile.ErrPersistence, l.name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Release drops the lease if holder still owns it.
func (l *Lease) Release(ctx context.Context, holder string) error {
	res := l.db.WithContext(ctx).Where("name = ? AND holder = ?", l.name, holder).Delete(&LeaseRecord{})
	if res.Error != nil {
		return fmt.Errorf("%w: release lease %s: %w", reconcile.ErrPersistence, l.name, res.Error)
	}
	return nil
}
