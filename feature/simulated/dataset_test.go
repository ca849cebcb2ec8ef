package simulated

import (
	"context"
	"testing"
	"time"

	"payout-reconciler/core/reconcile"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newDataset(t *testing.T, cfg Config) *Dataset {
	t.Helper()
	rule, err := reconcile.NewReferenceRule("PAYOUT-{payout_id}", "")
	require.NoError(t, err)
	d, err := NewDataset(cfg, rule, now)
	require.NoError(t, err)
	return d
}

func TestNewDataset_IsReproducible(t *testing.T) {
	a := newDataset(t, Config{Payouts: 40, Seed: 7, PageSize: 10})
	b := newDataset(t, Config{Payouts: 40, Seed: 7, PageSize: 10})

	require.Len(t, a.Payouts(), 40)
	for i, p := range a.Payouts() {
		q := b.Payouts()[i]
		assert.Equal(t, p.ID, q.ID)
		assert.True(t, p.NetAmount.Equal(q.NetAmount))
		assert.Equal(t, a.Scenario(p.ID), b.Scenario(q.ID))
		assert.True(t, p.GrossAmount.Sub(p.Fees).Equal(p.NetAmount))
	}
}

func TestDataset_FetchPage(t *testing.T) {
	d := newDataset(t, Config{Payouts: 25, Seed: 1, PageSize: 10})
	ctx := context.Background()

	var ids []string
	cursor := ""
	pages := 0
	for {
		page, err := d.FetchPage(ctx, cursor)
		require.NoError(t, err)
		pages++
		for _, p := range page.Payouts {
			ids = append(ids, p.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, ids, 25)
	assert.Equal(t, "po_sim_00001", ids[0])

	_, err := d.FetchPage(ctx, "abc")
	assert.ErrorIs(t, err, reconcile.ErrMalformedPayload)
}

func TestDataset_LedgerScenarios(t *testing.T) {
	d := newDataset(t, Config{Payouts: 200, Seed: 3})
	ctx := context.Background()

	seen := map[Scenario]bool{}
	for _, p := range d.Payouts() {
		scenario := d.Scenario(p.ID)
		seen[scenario] = true
		entries, err := d.FindEntries(ctx, "PAYOUT-"+p.ID)
		require.NoError(t, err)

		switch scenario {
		case PerfectMatch:
			require.Len(t, entries, 1)
			assert.True(t, entries[0].Amount.Equal(p.NetAmount))
		case GrossRecorded:
			require.Len(t, entries, 1)
			assert.True(t, entries[0].Amount.Equal(p.GrossAmount))
		case FeeMismatch:
			require.Len(t, entries, 1)
			assert.True(t, entries[0].Amount.LessThan(p.NetAmount))
		case MissingDeposit:
			assert.Empty(t, entries)
		case DuplicateEntry:
			assert.Len(t, entries, 2)
		}
	}
	assert.Len(t, seen, 5, "200 payouts cover every scenario")
}

func TestDataset_CreateEntriesBatch(t *testing.T) {
	d := newDataset(t, Config{Payouts: 1, Seed: 1, MaxBatchSize: 2, MaxCorrection: "100"})
	ctx := context.Background()

	entries := []reconcile.CorrectionEntry{
		{PayoutID: "P1", Reference: "ADJ-k1", Amount: decimal.NewFromInt(5), IdempotencyKey: "k1"},
		{PayoutID: "P2", Reference: "ADJ-k2", Amount: decimal.NewFromInt(-250), IdempotencyKey: "k2"},
	}
	results, err := d.CreateEntriesBatch(ctx, entries, "batch")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Accepted)
	assert.False(t, results[1].Accepted)
	assert.Contains(t, results[1].Reason, "exceeds limit")

	replay, err := d.CreateEntriesBatch(ctx, entries[:1], "batch-2")
	require.NoError(t, err)
	assert.Equal(t, results[0].EntryID, replay[0].EntryID)
	assert.Equal(t, 1, d.Posted())

	_, err = d.CreateEntriesBatch(ctx, append(entries, entries[0]), "too-big")
	var ext *reconcile.ExternalError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, 413, ext.StatusCode)
}
