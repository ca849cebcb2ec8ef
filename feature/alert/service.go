package alert

import (
	"context"
	"errors"
	"fmt"

	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/store"

	"go.uber.org/zap"
)

// Lister reads transactions by status.
type Lister interface {
	List(ctx context.Context, f store.Filter) (store.Page, error)
}

// Service builds alerts from run summaries and sends them.
type Service struct {
	lister    Lister
	notifiers []Notifier
	maxItems  int
	logger    *zap.Logger
}

// NewService creates the alert service. It returns nil when alerts are
// disabled.
func NewService(cfg Config, lister Lister, logger *zap.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	notifiers := []Notifier{NewLogNotifier(logger)}
	if cfg.BaseURL != "" {
		webhook, err := NewWebhookNotifier(cfg)
		if err != nil {
			return nil, fmt.Errorf("alert webhook: %w", err)
		}
		notifiers = append(notifiers, webhook)
	}
	return newService(lister, notifiers, cfg.MaxItems, logger), nil
}

func newService(lister Lister, notifiers []Notifier, maxItems int, logger *zap.Logger) *Service {
	if maxItems <= 0 {
		maxItems = 50
	}
	return &Service{lister: lister, notifiers: notifiers, maxItems: maxItems, logger: logger}
}

// NotifyActionRequired sends an alert for summary if it needs review. Every
// notifier is tried; their errors are joined.
func (s *Service) NotifyActionRequired(ctx context.Context, summary *reconcile.RunSummary) error {
	if summary == nil || !summary.ActionRequired() {
		return nil
	}

	a, err := s.build(ctx, summary)
	if err != nil {
		return err
	}

	var errs []error
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			s.logger.Error("Failed to send discrepancy alert", zap.String("notifier", n.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) build(ctx context.Context, summary *reconcile.RunSummary) (Alert, error) {
	a := Alert{
		RunID:        summary.RunID,
		FinishedAt:   summary.FinishedAt,
		Variance:     summary.Variance,
		Failed:       summary.Failed,
		StalePending: summary.StalePending,
	}

	for _, status := range []reconcile.Status{reconcile.StatusVariance, reconcile.StatusFailed} {
		left := s.maxItems - len(a.Discrepancies)
		page, err := s.lister.List(ctx, store.Filter{Status: status, Limit: max(left, 1)})
		if err != nil {
			return Alert{}, fmt.Errorf("list %s transactions: %w", status, err)
		}
		if left <= 0 {
			a.Truncated = a.Truncated || len(page.Transactions) > 0
			continue
		}
		for _, tx := range page.Transactions {
			a.Discrepancies = append(a.Discrepancies, discrepancy(tx))
		}
		if page.NextCursor != "" {
			a.Truncated = true
		}
	}

	a.Subject = fmt.Sprintf("Action required: %d reconciliation discrepancies", len(a.Discrepancies))
	if a.Truncated {
		a.Subject = fmt.Sprintf("Action required: more than %d reconciliation discrepancies", len(a.Discrepancies))
	}
	return a, nil
}

func discrepancy(tx reconcile.Transaction) Discrepancy {
	d := Discrepancy{
		PayoutID:     tx.PayoutID,
		Status:       string(tx.Status),
		PayoutDate:   tx.PayoutDate,
		NetAmount:    tx.NetAmount.StringFixed(2),
		VarianceKind: string(tx.VarianceKind),
		Reason:       tx.Reason,
	}
	if tx.VarianceAmount.Valid {
		d.VarianceAmount = tx.VarianceAmount.Decimal.StringFixed(2)
	}
	return d
}
