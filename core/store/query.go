package store

import (
	"context"
	"fmt"
	"time"

	"payout-reconciler/core/reconcile"

	"github.com/shopspring/decimal"
)

// Filter narrows List results. Zero values disable a condition.
type Filter struct {
	Status reconcile.Status
	// PayoutFrom and PayoutTo bound payout_date as [from, to).
	PayoutFrom time.Time
	PayoutTo   time.Time
	// After is the keyset cursor: only payout ids greater than it are returned.
	After string
	Limit int
}

// Page is one page of transactions ordered by payout id.
type Page struct {
	Transactions []reconcile.Transaction `json:"data"`
	NextCursor   string                  `json:"next_cursor,omitempty"`
}

// List returns transactions matching f using keyset pagination.
func (s *Store) List(ctx context.Context, f Filter) (Page, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	q := s.db.WithContext(ctx).Model(&Record{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if !f.PayoutFrom.IsZero() {
		q = q.Where("payout_date >= ?", f.PayoutFrom.UTC())
	}
	if !f.PayoutTo.IsZero() {
		q = q.Where("payout_date < ?", f.PayoutTo.UTC())
	}
	if f.After != "" {
		q = q.Where("payout_id > ?", f.After)
	}

	var recs []Record
	if err := q.Order("payout_id ASC").Limit(limit + 1).Find(&recs).Error; err != nil {
		return Page{}, fmt.Errorf("%w: list: %w", reconcile.ErrPersistence, err)
	}

	var page Page
	if len(recs) > limit {
		recs = recs[:limit]
		page.NextCursor = recs[limit-1].PayoutID
	}
	page.Transactions = make([]reconcile.Transaction, 0, len(recs))
	for i := range recs {
		tx, err := recs[i].toTransaction()
		if err != nil {
			return Page{}, fmt.Errorf("%w: decode %s: %w", reconcile.ErrPersistence, recs[i].PayoutID, err)
		}
		page.Transactions = append(page.Transactions, tx)
	}
	return page, nil
}

// StatusTotal aggregates the transactions of one status.
type StatusTotal struct {
	Status        reconcile.Status `json:"status"`
	Count         int64            `json:"count"`
	VarianceTotal decimal.Decimal  `json:"variance_total"`
}

// Summary is the audit view over the whole table.
type Summary struct {
	Total          int64           `json:"total"`
	Statuses       []StatusTotal   `json:"statuses"`
	TotalVariance  decimal.Decimal `json:"total_variance"`
	ActionRequired bool            `json:"action_required"`
}

// Summary groups transactions by status.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	type row struct {
		Status        string
		Count         int64
		VarianceTotal decimal.NullDecimal
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&Record{}).
		Select("status, COUNT(*) AS count, SUM(variance_amount) AS variance_total").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return Summary{}, fmt.Errorf("%w: summary: %w", reconcile.ErrPersistence, err)
	}

	sum := Summary{Statuses: make([]StatusTotal, 0, len(rows)), TotalVariance: decimal.Zero}
	for _, r := range rows {
		total := decimal.Zero
		if r.VarianceTotal.Valid {
			total = r.VarianceTotal.Decimal
		}
		status := reconcile.Status(r.Status)
		sum.Statuses = append(sum.Statuses, StatusTotal{Status: status, Count: r.Count, VarianceTotal: total})
		sum.Total += r.Count
		sum.TotalVariance = sum.TotalVariance.Add(total)
		if (status == reconcile.StatusVariance || status == reconcile.StatusFailed) && r.Count > 0 {
			sum.ActionRequired = true
		}
	}
	return sum, nil
}
