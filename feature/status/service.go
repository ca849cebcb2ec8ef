package status

import (
	"context"
	"errors"
	"io"

	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/store"
	"payout-reconciler/feature/export"

	"go.uber.org/zap"
)

// ErrExportsDisabled is returned when no export bucket is configured.
var ErrExportsDisabled = errors.New("export uploads are disabled")

// Store is the read and requeue side of the transaction store.
type Store interface {
	Find(ctx context.Context, payoutID string) (*reconcile.Transaction, error)
	List(ctx context.Context, f store.Filter) (store.Page, error)
	Summary(ctx context.Context) (store.Summary, error)
	Requeue(ctx context.Context, payoutID string) (*reconcile.Transaction, error)
}

// Runs starts runs, applies manual corrections and remembers the last run.
type Runs interface {
	Trigger() error
	LastRun() *reconcile.RunSummary
	Correct(ctx context.Context, payoutID string) (*reconcile.Transaction, error)
}

// SummaryReport combines the table audit with the last run.
type SummaryReport struct {
	store.Summary
	LastRun *reconcile.RunSummary `json:"last_run,omitempty"`
}

// Service answers status queries for operators.
type Service struct {
	store    Store
	runs     Runs
	uploader *export.Uploader
	logger   *zap.Logger
	// base outlives single requests; streamed bodies are written after the
	// handler has returned.
	base context.Context
}

// NewService creates the status service. uploader may be nil.
func NewService(base context.Context, st Store, runs Runs, uploader *export.Uploader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, runs: runs, uploader: uploader, logger: logger, base: base}
}

// Get returns one transaction, or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, payoutID string) (*reconcile.Transaction, error) {
	tx, err := s.store.Find(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, store.ErrNotFound
	}
	return tx, nil
}

// List returns one page of transactions.
func (s *Service) List(ctx context.Context, f store.Filter) (store.Page, error) {
	return s.store.List(ctx, f)
}

// Summary returns the audit report.
func (s *Service) Summary(ctx context.Context) (SummaryReport, error) {
	sum, err := s.store.Summary(ctx)
	if err != nil {
		return SummaryReport{}, err
	}
	return SummaryReport{Summary: sum, LastRun: s.runs.LastRun()}, nil
}

// Requeue returns a FAILED transaction to PENDING.
func (s *Service) Requeue(ctx context.Context, payoutID string) (*reconcile.Transaction, error) {
	return s.store.Requeue(ctx, payoutID)
}

// Correct submits the ledger correction of a VARIANCE transaction now.
func (s *Service) Correct(ctx context.Context, payoutID string) (*reconcile.Transaction, error) {
	return s.runs.Correct(ctx, payoutID)
}

// Trigger asks the scheduler for a run.
func (s *Service) Trigger() error {
	return s.runs.Trigger()
}

// LastRun returns the summary of the most recent run, or nil.
func (s *Service) LastRun() *reconcile.RunSummary {
	return s.runs.LastRun()
}

// WriteCSV streams the export to w using the service's base context.
func (s *Service) WriteCSV(w io.Writer, f store.Filter) (int, error) {
	return export.WriteCSV(s.base, w, s.store, f)
}

// Upload publishes an export to the bucket.
func (s *Service) Upload(ctx context.Context, f store.Filter) (export.Result, error) {
	if s.uploader == nil {
		return export.Result{}, ErrExportsDisabled
	}
	return s.uploader.Upload(ctx, s.store, f)
}

// Exports lists uploaded exports.
func (s *Service) Exports(ctx context.Context) ([]export.Object, error) {
	if s.uploader == nil {
		return nil, ErrExportsDisabled
	}
	return s.uploader.List(ctx)
}
