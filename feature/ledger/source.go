package ledger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"payout-reconciler/core/apiclient"
	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/utils"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const (
	entriesPath = "/v1/entries"
	batchPath   = "/v1/entries/batch"
)

type wireEntry struct {
	ID        string          `json:"id"`
	Reference string          `json:"reference"`
	Amount    json.RawMessage `json:"amount"`
	EntryDate json.RawMessage `json:"entry_date"`
}

type wireEntries struct {
	Data []wireEntry `json:"data"`
}

type wireCorrection struct {
	PayoutID       string          `json:"payout_id"`
	LedgerEntryID  string          `json:"ledger_entry_id,omitempty"`
	Reference      string          `json:"reference"`
	Amount         decimal.Decimal `json:"amount"`
	EntryDate      string          `json:"entry_date"`
	Memo           string          `json:"memo"`
	Account        string          `json:"account"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type wireBatchRequest struct {
	Entries []wireCorrection `json:"entries"`
}

type wireBatchResponse struct {
	Results []reconcile.EntryResult `json:"results"`
}

// Source talks to the ledger API. It implements reconcile.LedgerSource.
type Source struct {
	client *apiclient.Client
	cfg    Config
}

var _ reconcile.LedgerSource = (*Source)(nil)

// NewSource creates a ledger source for cfg.
func NewSource(cfg Config) (*Source, error) {
	client, err := apiclient.New(cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 30
	}
	return &Source{client: client, cfg: cfg}, nil
}

// FindEntries returns the entries whose reference is exactly reference.
func (s *Source) FindEntries(ctx context.Context, reference string) ([]reconcile.LedgerEntry, error) {
	var resp wireEntries
	if err := s.client.Get(ctx, "find_entries", entriesPath, url.Values{"reference": {reference}}, &resp); err != nil {
		return nil, err
	}

	out := make([]reconcile.LedgerEntry, 0, len(resp.Data))
	for _, w := range resp.Data {
		// The API matches loosely on some backends.
		if w.Reference != reference {
			continue
		}
		e, err := parseEntry(w)
		if err != nil {
			return nil, fmt.Errorf("%w: ledger entry for %q: %v", reconcile.ErrMalformedPayload, reference, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func parseEntry(w wireEntry) (reconcile.LedgerEntry, error) {
	id := strings.TrimSpace(w.ID)
	if id == "" {
		return reconcile.LedgerEntry{}, fmt.Errorf("id is required")
	}
	amount, err := utils.ToDecimal(w.Amount)
	if err != nil {
		return reconcile.LedgerEntry{}, fmt.Errorf("%s: amount: %w", id, err)
	}
	var date time.Time
	if len(w.EntryDate) > 0 && string(w.EntryDate) != "null" {
		if date, err = utils.ToTime(w.EntryDate); err != nil {
			return reconcile.LedgerEntry{}, fmt.Errorf("%s: entry_date: %w", id, err)
		}
	}
	return reconcile.LedgerEntry{ID: id, Reference: w.Reference, Amount: amount, EntryDate: date}, nil
}

// CreateEntriesBatch posts correction entries in one call. The ledger
// de-duplicates retries by idempotencyKey.
func (s *Source) CreateEntriesBatch(ctx context.Context, entries []reconcile.CorrectionEntry, idempotencyKey string) ([]reconcile.EntryResult, error) {
	if len(entries) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("ledger: batch of %d entries exceeds the limit of %d", len(entries), s.cfg.MaxBatchSize)
	}

	req := wireBatchRequest{Entries: make([]wireCorrection, len(entries))}
	for i, e := range entries {
		req.Entries[i] = wireCorrection{
			PayoutID:       e.PayoutID,
			LedgerEntryID:  e.LedgerEntryID,
			Reference:      e.Reference,
			Amount:         e.Amount,
			EntryDate:      e.EntryDate.UTC().Format(time.DateOnly),
			Memo:           e.Memo,
			Account:        s.cfg.AdjustmentAccount,
			IdempotencyKey: e.IdempotencyKey,
		}
	}

	var resp wireBatchResponse
	header := http.Header{"Idempotency-Key": {idempotencyKey}}
	if err := s.client.Post(ctx, "create_entries_batch", batchPath, header, req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// MaxBatchSize returns the configured batch limit.
func (s *Source) MaxBatchSize() int {
	return s.cfg.MaxBatchSize
}
