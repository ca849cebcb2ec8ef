package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"payout-reconciler/core/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store persists transactions. Find returns nil, nil for unknown payouts.
// Upsert must be atomic per payout and must not rewrite a record whose state
// is unchanged.
type Store interface {
	Find(ctx context.Context, payoutID string) (*Transaction, error)
	Upsert(ctx context.Context, tx Transaction) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Lease is held while a run, prune or manual correction is active. It is
// shared by every process working on the same store, so the engine takes it
// in addition to its own in-process flag.
type Lease interface {
	// Acquire claims the lease for holder until ttl from now. A holder that
	// already owns the lease extends it. It reports false while another
	// holder's lease has not expired.
	Acquire(ctx context.Context, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, holder string) error
}

// Dependencies groups the collaborators of an Engine. Lease is optional;
// without it runs are only exclusive within the process.
type Dependencies struct {
	Source  PayoutSource
	Ledger  LedgerSource
	Store   Store
	Lease   Lease
	Logger  *zap.Logger
	Metrics metrics.Collector
}

// Engine reconciles processor payouts against ledger entries.
type Engine struct {
	cfg       Config
	tolerance decimal.Decimal
	rule      *ReferenceRule

	source  PayoutSource
	ledger  LedgerSource
	store   Store
	lease   Lease
	holder  string
	backoff *Backoff
	matcher *Matcher
	logger  *zap.Logger
	metrics metrics.Collector
	now     func() time.Time

	running atomic.Bool
	last    atomic.Pointer[RunSummary]
}

// NewEngine validates cfg and wires an Engine.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Ledger == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: payout source, ledger and store are required", ErrInvalidConfig)
	}
	tolerance, err := cfg.Tolerance()
	if err != nil {
		return nil, err
	}
	rule, err := NewReferenceRule(cfg.ReferenceTemplate, cfg.ReferencePattern)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNop()
	}

	backoff := NewBackoff(cfg.RetryPolicy(), logger, m)
	return &Engine{
		cfg:       cfg,
		tolerance: tolerance,
		rule:      rule,
		source:    deps.Source,
		ledger:    deps.Ledger,
		store:     deps.Store,
		lease:     deps.Lease,
		holder:    uuid.NewString(),
		backoff:   backoff,
		matcher:   NewMatcher(deps.Ledger, rule, backoff),
		logger:    logger,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// Running reports whether a run or prune currently holds the run lock.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// LastRun returns the summary of the most recent run, or nil.
func (e *Engine) LastRun() *RunSummary {
	return e.last.Load()
}

// Rule returns the reference rule used for matching.
func (e *Engine) Rule() *ReferenceRule {
	return e.rule
}

// Run performs one reconciliation pass.
//
// Only one run may be active per Engine and, when a Lease is configured,
// per store. A second call returns ErrRunInProgress. Payouts are dispatched
// in ingestion order to a bounded worker pool. Reaching the run deadline or
// cancelling ctx stops admitting payouts, lets in-flight ones finish and
// flushes queued corrections; the run then returns its summary with a nil
// error. Persistence failures and page fetch failures abort the run and are
// returned.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	run := newRunState(e.now(), e.metrics)
	log := e.logger.With(zap.String("run_id", run.summary.RunID))
	log.Info("Reconciliation run started",
		zap.Int("workers", e.cfg.Workers),
		zap.Duration("deadline", e.cfg.RunDeadline),
		zap.Bool("auto_correct", e.cfg.AutoCorrect),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.cfg.RunDeadline > 0 {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithTimeout(runCtx, e.cfg.RunDeadline)
		defer cancelDeadline()
	}

	writer := NewBatchWriter(e.ledger, e.backoff, e.cfg.BatchSize, e.applyCorrection(run, log), log, e.metrics)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.cfg.Workers)

	stream := NewPayoutStream(e.source, e.backoff, "")
	for stream.Next(gctx) {
		p := stream.Payout()
		run.admitted()
		if gctx.Err() != nil {
			run.record(outcomeDeferred)
			break
		}
		g.Go(func() error {
			return e.process(gctx, run, writer, log, p)
		})
	}
	workErr := g.Wait()
	streamErr := stream.Err()

	var flushErr error
	if workErr == nil {
		flushErr = e.flush(ctx, writer)
	}

	summary := run.snapshot()
	summary.FinishedAt = e.now()
	summary.Interrupted = ctx.Err() != nil
	summary.DeadlineExceeded = !summary.Interrupted && errors.Is(runCtx.Err(), context.DeadlineExceeded)
	if summary.Interrupted || summary.DeadlineExceeded {
		summary.ResumeCursor = stream.Cursor()
	}

	switch {
	case workErr != nil:
		err = workErr
	case flushErr != nil:
		err = flushErr
	case streamErr != nil && !(isContextErr(streamErr) && runCtx.Err() != nil):
		err = streamErr
	}
	if err != nil {
		summary.Error = err.Error()
		err = fmt.Errorf("run %s: %w", summary.RunID, err)
	}

	e.last.Store(&summary)
	e.metrics.RecordRun(summary.Result(), summary.Duration())
	logSummary(log, &summary)
	return &summary, err
}

// flush sends queued corrections on a context that survives the run
// deadline and shutdown signals, bounded by FlushTimeout.
func (e *Engine) flush(ctx context.Context, writer *BatchWriter) error {
	flushCtx := context.WithoutCancel(ctx)
	if e.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(flushCtx, e.cfg.FlushTimeout)
		defer cancel()
	}
	return writer.Flush(flushCtx)
}

// Prune removes MATCHED transactions older than the retention window. It
// shares the run lock so it never overlaps a run.
func (e *Engine) Prune(ctx context.Context) (int64, error) {
	if e.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	release, err := e.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	cutoff := e.now().AddDate(0, 0, -e.cfg.RetentionDays)
	n, err := e.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	e.metrics.RecordPruned(n)
	e.logger.Info("Pruned matched transactions", zap.Int64("deleted", n), zap.Time("older_than", cutoff))
	return n, nil
}

// Correct submits the correction of one VARIANCE transaction without
// waiting for a run. It holds the run lock while the ledger call is made and
// records the verdict the way automatic corrections do, so the returned
// transaction is MATCHED when the ledger accepted the entry and FAILED when
// it was rejected.
func (e *Engine) Correct(ctx context.Context, payoutID string) (*Transaction, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := e.store.Find(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", payoutID, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, payoutID)
	}
	if tx.Status != StatusVariance {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCorrectable, payoutID, tx.Status)
	}

	run := newRunState(e.now(), e.metrics)
	log := e.logger.With(zap.String("run_id", run.summary.RunID), zap.String("payout_id", payoutID))
	writer := NewBatchWriter(e.ledger, e.backoff, 1, e.applyCorrection(run, log), log, e.metrics)

	run.correctionQueued()
	if err := writer.Add(ctx, NewCorrectionEntry(*tx, e.now())); err != nil {
		return nil, err
	}
	if writer.Pending() > 0 {
		return nil, fmt.Errorf("correction of %s not submitted: %w", payoutID, ctx.Err())
	}

	updated, err := e.store.Find(context.WithoutCancel(ctx), payoutID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", payoutID, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, payoutID)
	}
	log.Info("Manual correction processed", zap.String("status", string(updated.Status)))
	return updated, nil
}

// acquire takes the run flag and the shared lease. The returned func
// releases both.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	if e.lease == nil {
		return func() { e.running.Store(false) }, nil
	}

	ok, err := e.lease.Acquire(ctx, e.holder, e.cfg.LeaseTTL)
	if err != nil || !ok {
		e.running.Store(false)
		if err != nil {
			return nil, fmt.Errorf("acquire run lease: %w", err)
		}
		return nil, ErrRunInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go e.keepLease(stop, done)

	return func() {
		close(stop)
		<-done
		if err := e.lease.Release(context.WithoutCancel(ctx), e.holder); err != nil {
			e.logger.Warn("Failed to release run lease", zap.Error(err))
		}
		e.running.Store(false)
	}, nil
}

// keepLease extends the lease until stop is closed.
func (e *Engine) keepLease(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.LeaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := e.lease.Acquire(context.Background(), e.holder, e.cfg.LeaseTTL)
			switch {
			case err != nil:
				e.logger.Warn("Failed to extend run lease", zap.Error(err))
			case !ok:
				e.logger.Error("Run lease taken over by another process", zap.String("holder", e.holder))
			}
		}
	}
}

func (e *Engine) process(ctx context.Context, run *runState, writer *BatchWriter, log *zap.Logger, p Payout) error {
	if err := p.Validate(); err != nil {
		log.Warn("Skipping invalid payout", zap.Error(err))
		run.record(outcomeInvalid)
		return nil
	}
	if ctx.Err() != nil {
		run.record(outcomeDeferred)
		return nil
	}

	tx, err := e.reconcile(ctx, run, log, p)
	if err != nil || tx == nil {
		return err
	}

	if e.cfg.AutoCorrect && tx.Status == StatusVariance {
		run.correctionQueued()
		return writer.Add(ctx, NewCorrectionEntry(*tx, e.now()))
	}
	return nil
}

// reconcile evaluates one payout under its lock and persists the outcome.
// It returns nil when nothing was written.
func (e *Engine) reconcile(ctx context.Context, run *runState, log *zap.Logger, p Payout) (*Transaction, error) {
	unlock := run.lock(p.ID)
	defer unlock()

	storeCtx := context.WithoutCancel(ctx)
	existing, err := e.store.Find(storeCtx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", p.ID, err)
	}
	if existing != nil && (existing.Settled() || existing.Status == StatusFailed) {
		run.record(outcomeSkipped)
		return nil, nil
	}

	tx := e.nextAttempt(existing, p)
	stale := false

	entry, err := e.matcher.Match(ctx, p)
	switch {
	case err != nil && isContextErr(err):
		run.record(outcomeDeferred)
		if existing != nil {
			return nil, nil
		}
		// First sighting: record it so the payout is known even though the
		// lookup never completed.
		tx.Status = StatusPending
		tx.AttemptCount = 0
		tx.clearMatch()
		tx.Reason = "ledger lookup interrupted"
		if err := e.store.Upsert(storeCtx, tx); err != nil {
			return nil, fmt.Errorf("save transaction %s: %w", p.ID, err)
		}
		return nil, nil

	case err != nil:
		tx.Status = StatusFailed
		tx.clearMatch()
		tx.Reason = err.Error()
		tx.Diagnostics = map[string]string{"error_kind": failureKind(err)}
		var tf *TransientFailure
		if errors.As(err, &tf) {
			tx.Diagnostics["attempts"] = strconv.Itoa(tf.Attempts)
		}
		log.Warn("Payout failed", zap.String("payout_id", p.ID), zap.Error(err))

	case entry == nil:
		tx.Status = StatusPending
		tx.clearMatch()
		tx.Reason = ""
		tx.Diagnostics = nil
		if e.cfg.StalePendingAttempts > 0 && tx.AttemptCount >= e.cfg.StalePendingAttempts {
			stale = true
			tx.Reason = fmt.Sprintf("no ledger entry after %d attempts", tx.AttemptCount)
			log.Warn("Payout still pending", zap.String("payout_id", p.ID), zap.Int("attempts", tx.AttemptCount))
		}

	default:
		v := CalculateVariance(p, *entry, e.tolerance)
		tx.Status = v.Status
		tx.LedgerEntryID = entry.ID
		tx.VarianceAmount = decimal.NewNullDecimal(v.Amount)
		tx.VarianceKind = v.Kind
		tx.Reason = ""
		tx.Diagnostics = nil
		if v.Status == StatusVariance {
			tx.Diagnostics = map[string]string{"ledger_amount": entry.Amount.String()}
			log.Info("Payout variance",
				zap.String("payout_id", p.ID),
				zap.String("ledger_entry_id", entry.ID),
				zap.String("variance", v.Amount.String()),
				zap.String("kind", string(v.Kind)),
			)
		}
	}

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if err := e.store.Upsert(storeCtx, tx); err != nil {
		return nil, fmt.Errorf("save transaction %s: %w", p.ID, err)
	}

	run.record(outcome(tx.Status))
	if stale {
		run.stalePending()
	}
	return &tx, nil
}

func (e *Engine) nextAttempt(existing *Transaction, p Payout) Transaction {
	var tx Transaction
	if existing != nil {
		tx = *existing
	}
	tx.PayoutID = p.ID
	tx.NetAmount = p.NetAmount
	tx.Currency = p.Currency
	tx.PayoutDate = p.PayoutDate
	tx.AttemptCount++
	tx.LastAttemptAt = e.now()
	return tx
}

// applyCorrection records the ledger verdict on a correction entry.
func (e *Engine) applyCorrection(run *runState, log *zap.Logger) ResultFunc {
	return func(ctx context.Context, entry CorrectionEntry, res EntryResult) error {
		unlock := run.lock(entry.PayoutID)
		defer unlock()

		storeCtx := context.WithoutCancel(ctx)
		tx, err := e.store.Find(storeCtx, entry.PayoutID)
		if err != nil {
			return fmt.Errorf("load transaction %s: %w", entry.PayoutID, err)
		}
		if tx == nil || tx.Status != StatusVariance {
			log.Warn("Ignoring correction result for transaction not in variance",
				zap.String("payout_id", entry.PayoutID), zap.Bool("accepted", res.Accepted))
			return nil
		}

		variance := tx.VarianceAmount.Decimal
		tx.LastAttemptAt = e.now()
		if res.Accepted {
			tx.Status = StatusMatched
			tx.VarianceAmount = decimal.NewNullDecimal(decimal.Zero)
			tx.CorrectionEntryID = res.EntryID
			tx.CorrectionAmount = decimal.NewNullDecimal(entry.Amount)
			tx.Reason = ""
			tx.Diagnostics = map[string]string{
				"corrected_variance":   variance.String(),
				"correction_reference": entry.Reference,
			}
		} else {
			tx.Status = StatusFailed
			tx.VarianceAmount = decimal.NullDecimal{}
			tx.Reason = "correction rejected: " + res.Reason
			tx.Diagnostics = map[string]string{
				"error_kind":           "correction_rejected",
				"variance_amount":      variance.String(),
				"correction_reference": entry.Reference,
			}
			log.Warn("Correction rejected", zap.String("payout_id", entry.PayoutID), zap.String("reason", res.Reason))
		}

		if err := e.store.Upsert(storeCtx, *tx); err != nil {
			return fmt.Errorf("save transaction %s: %w", entry.PayoutID, err)
		}
		run.correctionApplied(res.Accepted)
		return nil
	}
}

func logSummary(log *zap.Logger, s *RunSummary) {
	fields := []zap.Field{
		zap.Int("processed", s.Processed),
		zap.Int("matched", s.Matched),
		zap.Int("variance", s.Variance),
		zap.Int("pending", s.Pending),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
		zap.Int("deferred", s.Deferred),
		zap.Int("stale_pending", s.StalePending),
		zap.Int("corrections_queued", s.CorrectionsQueued),
		zap.Int("corrections_accepted", s.CorrectionsAccepted),
		zap.Int("corrections_rejected", s.CorrectionsRejected),
		zap.Duration("duration", s.Duration()),
		zap.String("result", s.Result()),
	}
	if s.ResumeCursor != "" {
		fields = append(fields, zap.String("resume_cursor", s.ResumeCursor))
	}

	switch {
	case s.Error != "":
		log.Error("Reconciliation run aborted", append(fields, zap.String("error", s.Error))...)
	case s.DeadlineExceeded:
		log.Warn("Reconciliation run stopped at deadline", fields...)
	case s.Interrupted:
		log.Warn("Reconciliation run interrupted", fields...)
	default:
		log.Info("Reconciliation run completed", fields...)
	}
}
