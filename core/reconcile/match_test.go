package reconcile

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReferenceRule(t *testing.T) {
	tests := []struct {
		name     string
		template string
		pattern  string
		wantErr  bool
	}{
		{"plain placeholder", "{payout_id}", "", false},
		{"prefixed", "PAYOUT-{payout_id}", "", false},
		{"with pattern", "PAYOUT-{payout_id}", `^PAYOUT-(?P<payout_id>po_[A-Za-z0-9]+)$`, false},
		{"missing placeholder", "PAYOUT", "", true},
		{"placeholder twice", "{payout_id}-{payout_id}", "", true},
		{"invalid regex", "{payout_id}", `(`, true},
		{"pattern without group", "{payout_id}", `^po_\w+$`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReferenceRule(tt.template, tt.pattern)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestReferenceRule_KeyAndPayoutID(t *testing.T) {
	rule, err := NewReferenceRule("PAYOUT-{payout_id}/settle", "")
	require.NoError(t, err)

	assert.Equal(t, "PAYOUT-po_123/settle", rule.Key("po_123"))

	id, ok := rule.PayoutID("PAYOUT-po_123/settle")
	assert.True(t, ok)
	assert.Equal(t, "po_123", id)

	_, ok = rule.PayoutID("po_123")
	assert.False(t, ok)
	_, ok = rule.PayoutID("PAYOUT-/settle")
	assert.False(t, ok)

	strict, err := NewReferenceRule("PAYOUT-{payout_id}", `^PAYOUT-(?P<payout_id>po_[0-9]+)$`)
	require.NoError(t, err)
	id, ok = strict.PayoutID("PAYOUT-po_42")
	assert.True(t, ok)
	assert.Equal(t, "po_42", id)
	_, ok = strict.PayoutID("PAYOUT-po_abc")
	assert.False(t, ok)
}

func TestMatcher_Match(t *testing.T) {
	rule, err := NewReferenceRule("PAYOUT-{payout_id}", "")
	require.NoError(t, err)
	b, _ := recordingBackoff(RetryPolicy{MaxAttempts: 2})

	t.Run("single entry", func(t *testing.T) {
		m := NewMatcher(newFakeLedger(entry("E1", "PAYOUT-P1", "10")), rule, b)
		got, err := m.Match(context.Background(), payout("P1", "10"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "E1", got.ID)
	})

	t.Run("no entry", func(t *testing.T) {
		m := NewMatcher(newFakeLedger(), rule, b)
		got, err := m.Match(context.Background(), payout("P1", "10"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("multiple entries", func(t *testing.T) {
		m := NewMatcher(newFakeLedger(entry("E1", "PAYOUT-P1", "10"), entry("E2", "PAYOUT-P1", "10")), rule, b)
		_, err := m.Match(context.Background(), payout("P1", "10"))
		assert.ErrorIs(t, err, ErrDataIntegrity)
		assert.Contains(t, err.Error(), "E1, E2")
	})

	t.Run("malformed reference", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.entries["PAYOUT-P1"] = []LedgerEntry{entry("E1", "garbage", "10")}
		m := NewMatcher(ledger, rule, b)
		_, err := m.Match(context.Background(), payout("P1", "10"))
		assert.ErrorIs(t, err, ErrDataIntegrity)
		assert.Contains(t, err.Error(), "malformed reference")
	})

	t.Run("lookup failure", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.findErr["PAYOUT-P1"] = &ExternalError{StatusCode: http.StatusInternalServerError, Err: errors.New("boom")}
		m := NewMatcher(ledger, rule, b)
		_, err := m.Match(context.Background(), payout("P1", "10"))
		assert.ErrorIs(t, err, ErrTransient)
		assert.Equal(t, 2, ledger.calls("PAYOUT-P1"))
	})
}

func TestMatcher_SharesConcurrentLookups(t *testing.T) {
	rule, err := NewReferenceRule("{payout_id}", "")
	require.NoError(t, err)
	b, _ := recordingBackoff(RetryPolicy{MaxAttempts: 1})

	release := make(chan struct{})
	ledger := newFakeLedger(entry("E1", "P1", "10"))
	ledger.findHook = func(context.Context, string) { <-release }
	m := NewMatcher(ledger, rule, b)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Match(context.Background(), payout("P1", "10"))
			assert.NoError(t, err)
			assert.Equal(t, "E1", got.ID)
		}()
	}
	require.Eventually(t, func() bool { return ledger.total.Load() > 0 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, ledger.calls("P1"), 5)
	assert.GreaterOrEqual(t, ledger.calls("P1"), 1)
}
