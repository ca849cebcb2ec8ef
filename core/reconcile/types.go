package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the reconciliation state of a single payout.
type Status string

const (
	// StatusPending means no ledger entry has been found yet.
	StatusPending Status = "PENDING"
	// StatusMatched means the ledger agrees with the payout within tolerance.
	StatusMatched Status = "MATCHED"
	// StatusVariance means a ledger entry exists but its amount differs.
	StatusVariance Status = "VARIANCE"
	// StatusFailed means the payout could not be reconciled and needs an operator.
	StatusFailed Status = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusMatched, StatusVariance, StatusFailed:
		return true
	}
	return false
}

// ParseStatus parses a case-insensitive status name.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// VarianceKind describes the likely cause of a variance.
type VarianceKind string

const (
	VarianceNone VarianceKind = ""
	// VarianceGrossRecorded means the ledger recorded the gross amount instead of the net.
	VarianceGrossRecorded VarianceKind = "gross_recorded"
	// VarianceFeeMismatch means the difference is within the payout fees.
	VarianceFeeMismatch VarianceKind = "fee_mismatch"
	VarianceOther       VarianceKind = "other"
)

// Payout is a settlement reported by the payment processor. Payouts are
// immutable once ingested.
type Payout struct {
	ID          string          `json:"payout_id"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	Fees        decimal.Decimal `json:"fees"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	PayoutDate  time.Time       `json:"payout_date"`
	Currency    string          `json:"currency,omitempty"`
}

// Validate checks the fields every downstream step relies on.
func (p Payout) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: payout id is empty", ErrMalformedPayload)
	}
	if p.PayoutDate.IsZero() {
		return fmt.Errorf("%w: payout %s has no payout date", ErrMalformedPayload, p.ID)
	}
	return nil
}

// LedgerEntry is a journal entry in the accounting ledger.
type LedgerEntry struct {
	ID        string          `json:"entry_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	EntryDate time.Time       `json:"entry_date"`
}

// Transaction is the persisted reconciliation state of one payout.
// Empty string fields are stored as NULL.
type Transaction struct {
	PayoutID          string              `json:"payout_id"`
	LedgerEntryID     string              `json:"ledger_entry_id,omitempty"`
	Status            Status              `json:"status"`
	VarianceAmount    decimal.NullDecimal `json:"variance_amount"`
	VarianceKind      VarianceKind        `json:"variance_kind,omitempty"`
	NetAmount         decimal.Decimal     `json:"net_amount"`
	Currency          string              `json:"currency,omitempty"`
	PayoutDate        time.Time           `json:"payout_date"`
	CorrectionEntryID string              `json:"correction_entry_id,omitempty"`
	CorrectionAmount  decimal.NullDecimal `json:"correction_amount"`
	Reason            string              `json:"reason,omitempty"`
	Diagnostics       map[string]string   `json:"diagnostics,omitempty"`
	AttemptCount      int                 `json:"attempt_count"`
	LastAttemptAt     time.Time           `json:"last_attempt_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Settled reports whether the transaction needs no further work: it is
// MATCHED and its variance is zero.
func (t *Transaction) Settled() bool {
	return t.Status == StatusMatched && t.VarianceAmount.Valid && t.VarianceAmount.Decimal.IsZero()
}

// Validate enforces the status/variance pairing: a variance amount is
// present iff the status is MATCHED or VARIANCE, and MATCHED always
// carries zero.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.PayoutID) == "" {
		return fmt.Errorf("%w: transaction has no payout id", ErrDataIntegrity)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: transaction %s has unknown status %q", ErrDataIntegrity, t.PayoutID, t.Status)
	}

	switch t.Status {
	case StatusMatched:
		if !t.VarianceAmount.Valid || !t.VarianceAmount.Decimal.IsZero() {
			return fmt.Errorf("%w: matched transaction %s must carry a zero variance", ErrDataIntegrity, t.PayoutID)
		}
	case StatusVariance:
		if !t.VarianceAmount.Valid {
			return fmt.Errorf("%w: variance transaction %s has no variance amount", ErrDataIntegrity, t.PayoutID)
		}
	default:
		if t.VarianceAmount.Valid {
			return fmt.Errorf("%w: %s transaction %s must not carry a variance amount", ErrDataIntegrity, t.Status, t.PayoutID)
		}
	}
	return nil
}

// clearMatch drops every field that only makes sense once a ledger entry
// has been compared.
func (t *Transaction) clearMatch() {
	t.LedgerEntryID = ""
	t.VarianceAmount = decimal.NullDecimal{}
	t.VarianceKind = VarianceNone
}

// RunSummary reports what a reconciliation run did.
type RunSummary struct {
	RunID               string    `json:"run_id"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	Processed           int       `json:"processed_count"`
	Matched             int       `json:"matched"`
	Variance            int       `json:"variance"`
	Pending             int       `json:"pending"`
	Failed              int       `json:"failed"`
	Skipped             int       `json:"skipped"`
	Deferred            int       `json:"deferred"`
	StalePending        int       `json:"stale_pending"`
	CorrectionsQueued   int       `json:"corrections_queued"`
	CorrectionsAccepted int       `json:"corrections_accepted"`
	CorrectionsRejected int       `json:"corrections_rejected"`
	DeadlineExceeded    bool      `json:"deadline_exceeded"`
	Interrupted         bool      `json:"interrupted"`
	ResumeCursor        string    `json:"resume_cursor,omitempty"`
	Error               string    `json:"error,omitempty"`
}

// Duration is the wall time between start and finish.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Result classifies the run for metrics and logs.
func (s *RunSummary) Result() string {
	switch {
	case s.Error != "":
		return "error"
	case s.DeadlineExceeded:
		return "deadline"
	case s.Interrupted:
		return "interrupted"
	}
	return "ok"
}

// ActionRequired reports whether the run left payouts that need an operator.
func (s *RunSummary) ActionRequired() bool {
	return s.Variance > 0 || s.Failed > 0 || s.StalePending > 0
}
