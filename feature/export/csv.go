package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/store"

	"github.com/shopspring/decimal"
)

const pageSize = 500

// Header is the first CSV record.
var Header = []string{
	"payout_id", "status", "ledger_entry_id", "net_amount", "currency",
	"payout_date", "variance_amount", "variance_kind", "correction_entry_id",
	"correction_amount", "attempt_count", "last_attempt_at", "reason",
}

// Lister pages through transactions.
type Lister interface {
	List(ctx context.Context, f store.Filter) (store.Page, error)
}

// WriteCSV streams every transaction matching f to w, one page at a time,
// and returns the number of data rows written.
func WriteCSV(ctx context.Context, w io.Writer, lister Lister, f store.Filter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, err
	}

	f.Limit = pageSize
	rows := 0
	for {
		page, err := lister.List(ctx, f)
		if err != nil {
			return rows, err
		}
		for i := range page.Transactions {
			if err := cw.Write(record(&page.Transactions[i])); err != nil {
				return rows, err
			}
			rows++
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return rows, err
		}
		if page.NextCursor == "" {
			return rows, nil
		}
		f.After = page.NextCursor
	}
}

func record(tx *reconcile.Transaction) []string {
	return []string{
		tx.PayoutID,
		string(tx.Status),
		tx.LedgerEntryID,
		tx.NetAmount.StringFixed(2),
		tx.Currency,
		tx.PayoutDate.Format(time.DateOnly),
		nullAmount(tx.VarianceAmount),
		string(tx.VarianceKind),
		tx.CorrectionEntryID,
		nullAmount(tx.CorrectionAmount),
		strconv.Itoa(tx.AttemptCount),
		tx.LastAttemptAt.UTC().Format(time.RFC3339),
		tx.Reason,
	}
}

func nullAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
