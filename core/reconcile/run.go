package reconcile

import (
	"sync"
	"time"

	"payout-reconciler/core/metrics"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

type outcome string

const (
	outcomeMatched  outcome = outcome(StatusMatched)
	outcomeVariance outcome = outcome(StatusVariance)
	outcomePending  outcome = outcome(StatusPending)
	outcomeFailed   outcome = outcome(StatusFailed)
	outcomeSkipped  outcome = "skipped"
	outcomeDeferred outcome = "deferred"
	outcomeInvalid  outcome = "invalid"
)

// runState is the in-memory bookkeeping of one run. It is discarded when the
// run ends.
type runState struct {
	metrics metrics.Collector
	locks   *xsync.Map[string, *sync.Mutex]

	mu      sync.Mutex
	summary RunSummary
}

func newRunState(startedAt time.Time, m metrics.Collector) *runState {
	return &runState{
		metrics: m,
		locks:   xsync.NewMap[string, *sync.Mutex](),
		summary: RunSummary{RunID: uuid.NewString(), StartedAt: startedAt},
	}
}

// lock serializes work on one payout within the run.
func (r *runState) lock(payoutID string) func() {
	mu, _ := r.locks.LoadOrStore(payoutID, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}

func (r *runState) admitted() {
	r.mu.Lock()
	r.summary.Processed++
	r.mu.Unlock()
}

func (r *runState) record(o outcome) {
	r.mu.Lock()
	switch o {
	case outcomeMatched:
		r.summary.Matched++
	case outcomeVariance:
		r.summary.Variance++
	case outcomePending:
		r.summary.Pending++
	case outcomeFailed, outcomeInvalid:
		r.summary.Failed++
	case outcomeSkipped:
		r.summary.Skipped++
	case outcomeDeferred:
		r.summary.Deferred++
	}
	r.mu.Unlock()
	r.metrics.RecordOutcome(string(o))
}

func (r *runState) stalePending() {
	r.mu.Lock()
	r.summary.StalePending++
	r.mu.Unlock()
}

func (r *runState) correctionQueued() {
	r.mu.Lock()
	r.summary.CorrectionsQueued++
	r.mu.Unlock()
}

// correctionApplied moves a payout out of the variance count once the
// ledger has ruled on its correction.
func (r *runState) correctionApplied(accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary.Variance > 0 {
		r.summary.Variance--
	}
	if accepted {
		r.summary.CorrectionsAccepted++
		r.summary.Matched++
		return
	}
	r.summary.CorrectionsRejected++
	r.summary.Failed++
}

func (r *runState) snapshot() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}
