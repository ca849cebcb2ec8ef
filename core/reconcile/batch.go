package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"payout-reconciler/core/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CorrectionEntry offsets a payout variance in the ledger.
type CorrectionEntry struct {
	PayoutID string `json:"payout_id"`
	// LedgerEntryID is the entry being corrected.
	LedgerEntryID  string          `json:"ledger_entry_id"`
	Reference      string          `json:"reference"`
	Amount         decimal.Decimal `json:"amount"`
	EntryDate      time.Time       `json:"entry_date"`
	Memo           string          `json:"memo"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// EntryResult is the ledger verdict on one entry of a batch.
type EntryResult struct {
	Accepted bool   `json:"accepted"`
	EntryID  string `json:"entry_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// NewCorrectionEntry builds the entry that brings the ledger in line with
// the payout net amount. The idempotency key depends only on the payout and
// the amount, so re-queuing the same correction yields the same key.
func NewCorrectionEntry(tx Transaction, entryDate time.Time) CorrectionEntry {
	amount := tx.VarianceAmount.Decimal.Neg()
	key := correctionKey(tx.PayoutID, amount)
	return CorrectionEntry{
		PayoutID:       tx.PayoutID,
		LedgerEntryID:  tx.LedgerEntryID,
		Reference:      CorrectionReference(key),
		Amount:         amount,
		EntryDate:      entryDate,
		Memo:           fmt.Sprintf("payout %s variance correction (%s)", tx.PayoutID, tx.VarianceKind),
		IdempotencyKey: key,
	}
}

func correctionKey(payoutID string, amount decimal.Decimal) string {
	sum := sha256.Sum256([]byte(payoutID + "|" + amount.String()))
	return hex.EncodeToString(sum[:16])
}

func batchKey(entries []CorrectionEntry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.IdempotencyKey))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// ResultFunc persists the ledger verdict for one correction entry.
type ResultFunc func(ctx context.Context, entry CorrectionEntry, result EntryResult) error

// BatchWriter groups correction entries into ledger batch calls.
//
// Entries are buffered until the batch size is reached or Flush is called.
// Each entry's verdict is handed to the ResultFunc independently. When the
// whole call fails every entry of the batch is reported as rejected with the
// failure reason.
type BatchWriter struct {
	ledger  LedgerSource
	backoff *Backoff
	size    int
	apply   ResultFunc
	logger  *zap.Logger
	metrics metrics.Collector

	mu      sync.Mutex
	pending []CorrectionEntry
}

// NewBatchWriter creates a BatchWriter. size is clamped to the ledger's
// MaxBatchSize.
func NewBatchWriter(ledger LedgerSource, backoff *Backoff, size int, apply ResultFunc, logger *zap.Logger, m metrics.Collector) *BatchWriter {
	if limit := ledger.MaxBatchSize(); limit > 0 && (size <= 0 || size > limit) {
		size = limit
	}
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &BatchWriter{ledger: ledger, backoff: backoff, size: size, apply: apply, logger: logger, metrics: m}
}

// Add buffers entry and sends a batch once the buffer is full. Once ctx is
// done the entries stay buffered for Flush, which runs on its own context.
func (w *BatchWriter) Add(ctx context.Context, entry CorrectionEntry) error {
	w.mu.Lock()
	w.pending = append(w.pending, entry)
	var batch []CorrectionEntry
	if len(w.pending) >= w.size && ctx.Err() == nil {
		batch = w.pending
		w.pending = nil
	}
	w.mu.Unlock()

	if batch == nil {
		return nil
	}
	return w.send(ctx, batch)
}

// Flush sends every buffered entry. Entries that could not be submitted
// before ctx ended remain buffered.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()

	for len(pending) > 0 {
		n := min(len(pending), w.size)
		if err := w.send(ctx, pending[:n]); err != nil {
			return err
		}
		pending = pending[n:]
	}

	if left := w.Pending(); left > 0 {
		w.logger.Warn("Corrections not submitted before shutdown",
			zap.Int("entries", left), zap.Error(ctx.Err()))
	}
	return nil
}

// Pending returns the number of buffered entries.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Size returns the effective batch size.
func (w *BatchWriter) Size() int {
	return w.size
}

func (w *BatchWriter) send(ctx context.Context, batch []CorrectionEntry) error {
	key := batchKey(batch)
	results, err := Retry(ctx, w.backoff, Call{Op: "create_entries_batch", Idempotent: true}, func(ctx context.Context) ([]EntryResult, error) {
		return w.ledger.CreateEntriesBatch(ctx, batch, key)
	})

	switch {
	case err != nil && isContextErr(err):
		// Nothing was submitted. Keep the entries for the final flush; the
		// variances stay untouched if that never happens.
		w.mu.Lock()
		w.pending = append(w.pending, batch...)
		w.mu.Unlock()
		w.logger.Debug("Correction batch deferred",
			zap.String("batch_key", key), zap.Int("entries", len(batch)), zap.Error(err))
		return nil
	case err != nil:
		w.logger.Error("Correction batch failed",
			zap.String("batch_key", key), zap.Int("entries", len(batch)), zap.Error(err))
		results = rejectAll(len(batch), err.Error())
		w.metrics.RecordBatch("failed", 0, len(batch))
	case len(results) != len(batch):
		reason := fmt.Sprintf("ledger returned %d results for %d entries", len(results), len(batch))
		w.logger.Error("Correction batch result mismatch", zap.String("batch_key", key), zap.String("reason", reason))
		results = rejectAll(len(batch), reason)
		w.metrics.RecordBatch("failed", 0, len(batch))
	default:
		accepted := 0
		for _, r := range results {
			if r.Accepted {
				accepted++
			}
		}
		w.metrics.RecordBatch("ok", accepted, len(results)-accepted)
		w.logger.Info("Correction batch submitted",
			zap.String("batch_key", key), zap.Int("accepted", accepted), zap.Int("rejected", len(results)-accepted))
	}

	for i := range batch {
		if err := w.apply(ctx, batch[i], results[i]); err != nil {
			return err
		}
	}
	return nil
}

func rejectAll(n int, reason string) []EntryResult {
	results := make([]EntryResult, n)
	for i := range results {
		results[i] = EntryResult{Reason: reason}
	}
	return results
}
