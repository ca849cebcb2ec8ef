package store

import (
	"maps"
	"time"

	"payout-reconciler/core/reconcile"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TableName is the table holding one row per payout.
const TableName = "transactions"

// Record is the GORM model of a reconciliation transaction.
type Record struct {
	PayoutID          string              `gorm:"primaryKey;size:191"`
	LedgerEntryID     *string             `gorm:"size:191"`
	Status            string              `gorm:"size:16;not null;index:idx_transactions_status_attempt,priority:1"`
	VarianceAmount    decimal.NullDecimal `gorm:"type:decimal(20,4)"`
	VarianceKind      string              `gorm:"size:32"`
	NetAmount         decimal.Decimal     `gorm:"type:decimal(20,4);not null"`
	Currency          string              `gorm:"size:8"`
	PayoutDate        time.Time           `gorm:"index"`
	CorrectionEntryID *string             `gorm:"size:191"`
	CorrectionAmount  decimal.NullDecimal `gorm:"type:decimal(20,4)"`
	Reason            string              `gorm:"type:text"`
	Diagnostics       datatypes.JSON
	AttemptCount      int       `gorm:"not null;default:0"`
	LastAttemptAt     time.Time `gorm:"index:idx_transactions_status_attempt,priority:2"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName implements gorm's Tabler.
func (Record) TableName() string {
	return TableName
}

func toRecord(tx reconcile.Transaction) (Record, error) {
	rec := Record{
		PayoutID:          tx.PayoutID,
		LedgerEntryID:     nullString(tx.LedgerEntryID),
		Status:            string(tx.Status),
		VarianceAmount:    tx.VarianceAmount,
		VarianceKind:      string(tx.VarianceKind),
		NetAmount:         tx.NetAmount,
		Currency:          tx.Currency,
		PayoutDate:        tx.PayoutDate.UTC(),
		CorrectionEntryID: nullString(tx.CorrectionEntryID),
		CorrectionAmount:  tx.CorrectionAmount,
		Reason:            tx.Reason,
		AttemptCount:      tx.AttemptCount,
		LastAttemptAt:     tx.LastAttemptAt.UTC(),
	}
	if len(tx.Diagnostics) > 0 {
		raw, err := json.Marshal(tx.Diagnostics)
		if err != nil {
			return Record{}, err
		}
		rec.Diagnostics = datatypes.JSON(raw)
	}
	return rec, nil
}

func (r *Record) toTransaction() (reconcile.Transaction, error) {
	tx := reconcile.Transaction{
		PayoutID:          r.PayoutID,
		LedgerEntryID:     deref(r.LedgerEntryID),
		Status:            reconcile.Status(r.Status),
		VarianceAmount:    r.VarianceAmount,
		VarianceKind:      reconcile.VarianceKind(r.VarianceKind),
		NetAmount:         r.NetAmount,
		Currency:          r.Currency,
		PayoutDate:        r.PayoutDate.UTC(),
		CorrectionEntryID: deref(r.CorrectionEntryID),
		CorrectionAmount:  r.CorrectionAmount,
		Reason:            r.Reason,
		AttemptCount:      r.AttemptCount,
		LastAttemptAt:     r.LastAttemptAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if len(r.Diagnostics) > 0 && string(r.Diagnostics) != "null" {
		if err := json.Unmarshal(r.Diagnostics, &tx.Diagnostics); err != nil {
			return reconcile.Transaction{}, err
		}
	}
	return tx, nil
}

// sameState reports whether persisting b over a would change anything.
func sameState(a, b reconcile.Transaction) bool {
	return a.PayoutID == b.PayoutID &&
		a.Status == b.Status &&
		a.LedgerEntryID == b.LedgerEntryID &&
		nullDecimalEqual(a.VarianceAmount, b.VarianceAmount) &&
		a.VarianceKind == b.VarianceKind &&
		a.NetAmount.Equal(b.NetAmount) &&
		a.Currency == b.Currency &&
		a.PayoutDate.Equal(b.PayoutDate) &&
		a.CorrectionEntryID == b.CorrectionEntryID &&
		nullDecimalEqual(a.CorrectionAmount, b.CorrectionAmount) &&
		a.Reason == b.Reason &&
		maps.Equal(a.Diagnostics, b.Diagnostics) &&
		a.AttemptCount == b.AttemptCount &&
		a.LastAttemptAt.Equal(b.LastAttemptAt)
}

func nullDecimalEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
