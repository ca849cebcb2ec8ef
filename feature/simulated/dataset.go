package simulated

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"payout-reconciler/core/reconcile"

	"github.com/shopspring/decimal"
)

// Config controls dataset generation.
type Config struct {
	Payouts       int    `mapstructure:"payouts" default:"50"`
	Seed          int64  `mapstructure:"seed" default:"42"`
	PageSize      int    `mapstructure:"page_size" default:"20"`
	MaxBatchSize  int    `mapstructure:"max_batch_size" default:"30"`
	MaxCorrection string `mapstructure:"max_correction" default:"500"`
}

// Scenario is the ledger situation generated for a payout.
type Scenario string

const (
	PerfectMatch   Scenario = "perfect_match"
	FeeMismatch    Scenario = "fee_mismatch"
	GrossRecorded  Scenario = "gross_recorded"
	MissingDeposit Scenario = "missing_deposit"
	DuplicateEntry Scenario = "duplicate_entry"
)

// Dataset is an in-memory processor and ledger.
type Dataset struct {
	pageSize      int
	maxBatch      int
	maxCorrection decimal.Decimal

	mu        sync.Mutex
	payouts   []reconcile.Payout
	scenarios map[string]Scenario
	entries   map[string][]reconcile.LedgerEntry
	posted    map[string]string
	seq       int
}

var (
	_ reconcile.PayoutSource = (*Dataset)(nil)
	_ reconcile.LedgerSource = (*Dataset)(nil)
)

// NewDataset generates cfg.Payouts payouts dated back from now. Ledger
// references are built with rule so the dataset follows the configured
// reference format.
func NewDataset(cfg Config, rule *reconcile.ReferenceRule, now time.Time) (*Dataset, error) {
	maxCorrection := decimal.NewFromInt(500)
	if cfg.MaxCorrection != "" {
		d, err := decimal.NewFromString(cfg.MaxCorrection)
		if err != nil {
			return nil, fmt.Errorf("simulated max_correction %q: %w", cfg.MaxCorrection, err)
		}
		maxCorrection = d
	}

	d := &Dataset{
		pageSize:      max(cfg.PageSize, 1),
		maxBatch:      max(cfg.MaxBatchSize, 1),
		maxCorrection: maxCorrection,
		scenarios:     make(map[string]Scenario, cfg.Payouts),
		entries:       make(map[string][]reconcile.LedgerEntry),
		posted:        make(map[string]string),
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)))
	for i := 0; i < cfg.Payouts; i++ {
		gross := decimal.New(int64(10_000+rng.IntN(490_000)), -2)
		fees := gross.Mul(decimal.RequireFromString("0.029")).Add(decimal.RequireFromString("0.30")).Round(2)
		p := reconcile.Payout{
			ID:          fmt.Sprintf("po_sim_%05d", i+1),
			GrossAmount: gross,
			Fees:        fees,
			NetAmount:   gross.Sub(fees),
			PayoutDate:  now.Add(-time.Duration(i) * time.Hour).UTC().Truncate(time.Second),
			Currency:    "USD",
		}
		d.payouts = append(d.payouts, p)

		scenario := pickScenario(rng.IntN(100))
		d.scenarios[p.ID] = scenario

		ref := rule.Key(p.ID)
		entryDate := p.PayoutDate.Add(24 * time.Hour)
		switch scenario {
		case PerfectMatch:
			d.addEntry(ref, p.NetAmount, entryDate)
		case FeeMismatch:
			d.addEntry(ref, p.NetAmount.Sub(fees.Div(decimal.NewFromInt(2)).Round(2)), entryDate)
		case GrossRecorded:
			d.addEntry(ref, p.GrossAmount, entryDate)
		case DuplicateEntry:
			d.addEntry(ref, p.NetAmount, entryDate)
			d.addEntry(ref, p.NetAmount, entryDate)
		}
	}
	return d, nil
}

func pickScenario(roll int) Scenario {
	switch {
	case roll < 60:
		return PerfectMatch
	case roll < 75:
		return FeeMismatch
	case roll < 85:
		return GrossRecorded
	case roll < 95:
		return MissingDeposit
	}
	return DuplicateEntry
}

func (d *Dataset) addEntry(reference string, amount decimal.Decimal, date time.Time) reconcile.LedgerEntry {
	d.seq++
	e := reconcile.LedgerEntry{
		ID:        fmt.Sprintf("je_sim_%06d", d.seq),
		Reference: reference,
		Amount:    amount,
		EntryDate: date,
	}
	d.entries[reference] = append(d.entries[reference], e)
	return e
}

// Payouts returns a copy of the generated payouts.
func (d *Dataset) Payouts() []reconcile.Payout {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]reconcile.Payout(nil), d.payouts...)
}

// Scenario returns the scenario generated for a payout.
func (d *Dataset) Scenario(payoutID string) Scenario {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scenarios[payoutID]
}

// Posted returns the number of distinct correction entries accepted.
func (d *Dataset) Posted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.posted)
}

// FetchPage serves payouts in generation order. Cursors are offsets.
func (d *Dataset) FetchPage(ctx context.Context, cursor string) (reconcile.Page, error) {
	if err := ctx.Err(); err != nil {
		return reconcile.Page{}, err
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return reconcile.Page{}, fmt.Errorf("%w: invalid cursor %q", reconcile.ErrMalformedPayload, cursor)
		}
		offset = n
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if offset >= len(d.payouts) {
		return reconcile.Page{}, nil
	}
	end := min(offset+d.pageSize, len(d.payouts))
	page := reconcile.Page{Payouts: append([]reconcile.Payout(nil), d.payouts[offset:end]...)}
	if end < len(d.payouts) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// FindEntries returns the entries filed under reference.
func (d *Dataset) FindEntries(ctx context.Context, reference string) ([]reconcile.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]reconcile.LedgerEntry(nil), d.entries[reference]...), nil
}

// CreateEntriesBatch posts corrections. Replayed idempotency keys return
// the entry created the first time.
func (d *Dataset) CreateEntriesBatch(ctx context.Context, entries []reconcile.CorrectionEntry, _ string) ([]reconcile.EntryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(entries) > d.maxBatch {
		return nil, &reconcile.ExternalError{
			Op:         "create_entries_batch",
			StatusCode: 413,
			Err:        fmt.Errorf("batch of %d exceeds limit %d", len(entries), d.maxBatch),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	results := make([]reconcile.EntryResult, len(entries))
	for i, e := range entries {
		if id, ok := d.posted[e.IdempotencyKey]; ok {
			results[i] = reconcile.EntryResult{Accepted: true, EntryID: id}
			continue
		}
		if e.Amount.Abs().GreaterThan(d.maxCorrection) {
			results[i] = reconcile.EntryResult{Reason: fmt.Sprintf("correction %s exceeds limit %s", e.Amount, d.maxCorrection)}
			continue
		}
		created := d.addEntry(e.Reference, e.Amount, e.EntryDate)
		d.posted[e.IdempotencyKey] = created.ID
		results[i] = reconcile.EntryResult{Accepted: true, EntryID: created.ID}
	}
	return results, nil
}

// MaxBatchSize is the largest batch CreateEntriesBatch accepts.
func (d *Dataset) MaxBatchSize() int {
	return d.maxBatch
}
