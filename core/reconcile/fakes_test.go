package reconcile

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func payout(id, net string) Payout {
	return Payout{
		ID:          id,
		GrossAmount: dec(net),
		NetAmount:   dec(net),
		PayoutDate:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Currency:    "USD",
	}
}

func entry(id, reference, amount string) LedgerEntry {
	return LedgerEntry{ID: id, Reference: reference, Amount: dec(amount), EntryDate: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)}
}

// memStore is an in-memory Store that counts writes per payout.
type memStore struct {
	mu        sync.Mutex
	rows      map[string]Transaction
	writes    map[string]int
	findErr   error
	upsertErr error
	prunedAt  time.Time
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]Transaction{}, writes: map[string]int{}}
}

func (s *memStore) Find(_ context.Context, payoutID string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	tx, ok := s.rows[payoutID]
	if !ok {
		return nil, nil
	}
	tx.Diagnostics = maps.Clone(tx.Diagnostics)
	return &tx, nil
}

func (s *memStore) Upsert(_ context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.rows[tx.PayoutID] = tx
	s.writes[tx.PayoutID]++
	return nil
}

func (s *memStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prunedAt = olderThan
	var n int64
	for id, tx := range s.rows {
		if tx.Status == StatusMatched && tx.LastAttemptAt.Before(olderThan) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) get(t *testing.T, id string) Transaction {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.rows[id]
	require.True(t, ok, "transaction %s not stored", id)
	return tx
}

// pageSource serves pages keyed by cursor.
type pageSource struct {
	mu    sync.Mutex
	pages map[string]Page
	errs  map[string]error
	calls []string
	hook  func(cursor string)
}

func singlePage(payouts ...Payout) *pageSource {
	return &pageSource{pages: map[string]Page{"": {Payouts: payouts}}}
}

func (s *pageSource) FetchPage(_ context.Context, cursor string) (Page, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cursor)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(cursor)
	}
	if err := s.errs[cursor]; err != nil {
		return Page{}, err
	}
	page, ok := s.pages[cursor]
	if !ok {
		return Page{}, errors.New("unknown cursor " + cursor)
	}
	return page, nil
}

// fakeLedger answers lookups from a map and batches from batchFn.
type fakeLedger struct {
	mu        sync.Mutex
	entries   map[string][]LedgerEntry
	findErr   map[string]error
	findHook  func(ctx context.Context, reference string)
	findCalls map[string]int
	batchFn   func(entries []CorrectionEntry, key string) ([]EntryResult, error)
	batches   [][]CorrectionEntry
	keys      []string
	maxBatch  int
	total     atomic.Int64
}

func newFakeLedger(entries ...LedgerEntry) *fakeLedger {
	l := &fakeLedger{entries: map[string][]LedgerEntry{}, findErr: map[string]error{}, findCalls: map[string]int{}, maxBatch: 30}
	for _, e := range entries {
		l.entries[e.Reference] = append(l.entries[e.Reference], e)
	}
	return l
}

func (l *fakeLedger) FindEntries(ctx context.Context, reference string) ([]LedgerEntry, error) {
	l.total.Add(1)
	l.mu.Lock()
	l.findCalls[reference]++
	err := l.findErr[reference]
	entries := l.entries[reference]
	hook := l.findHook
	l.mu.Unlock()
	if hook != nil {
		hook(ctx, reference)
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *fakeLedger) CreateEntriesBatch(_ context.Context, entries []CorrectionEntry, key string) ([]EntryResult, error) {
	l.mu.Lock()
	l.batches = append(l.batches, append([]CorrectionEntry(nil), entries...))
	l.keys = append(l.keys, key)
	fn := l.batchFn
	l.mu.Unlock()
	if fn != nil {
		return fn(entries, key)
	}
	results := make([]EntryResult, len(entries))
	for i, e := range entries {
		results[i] = EntryResult{Accepted: true, EntryID: "corr-" + e.PayoutID}
	}
	return results, nil
}

func (l *fakeLedger) MaxBatchSize() int {
	return l.maxBatch
}

func (l *fakeLedger) calls(reference string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findCalls[reference]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 10 * time.Millisecond
	cfg.RunDeadline = 0
	cfg.Workers = 2
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, source PayoutSource, ledger LedgerSource, store Store) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, Dependencies{Source: source, Ledger: ledger, Store: store})
	require.NoError(t, err)
	e.now = func() time.Time { return testNow }
	e.backoff.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

// fakeLease is a lease shared by engines in one test.
type fakeLease struct {
	mu       sync.Mutex
	holder   string
	err      error
	released int
}

func (l *fakeLease) Acquire(_ context.Context, holder string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.holder != "" && l.holder != holder {
		return false, nil
	}
	l.holder = holder
	return true, nil
}

func (l *fakeLease) Release(_ context.Context, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == holder {
		l.holder = ""
	}
	l.released++
	return nil
}
