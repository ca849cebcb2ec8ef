package alert

import (
	"context"
	"time"

	"payout-reconciler/core/apiclient"

	"go.uber.org/zap"
)

// Discrepancy is one transaction listed in an alert.
type Discrepancy struct {
	PayoutID       string    `json:"payout_id"`
	Status         string    `json:"status"`
	PayoutDate     time.Time `json:"payout_date"`
	NetAmount      string    `json:"net_amount"`
	VarianceAmount string    `json:"variance_amount,omitempty"`
	VarianceKind   string    `json:"variance_kind,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// Alert reports a run that needs operator review.
type Alert struct {
	Subject      string    `json:"subject"`
	RunID        string    `json:"run_id"`
	FinishedAt   time.Time `json:"finished_at"`
	Variance     int       `json:"variance"`
	Failed       int       `json:"failed"`
	StalePending int       `json:"stale_pending"`
	// Discrepancies lists VARIANCE then FAILED transactions, capped by
	// MaxItems. Truncated is set when more exist.
	Discrepancies []Discrepancy `json:"discrepancies"`
	Truncated     bool          `json:"truncated"`
}

// Notifier delivers an alert.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the application log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	n.logger.Warn(a.Subject,
		zap.String("run_id", a.RunID),
		zap.Int("variance", a.Variance),
		zap.Int("failed", a.Failed),
		zap.Int("stale_pending", a.StalePending),
		zap.Bool("truncated", a.Truncated),
	)
	for _, d := range a.Discrepancies {
		n.logger.Warn("Discrepancy",
			zap.String("payout_id", d.PayoutID),
			zap.String("status", d.Status),
			zap.String("variance", d.VarianceAmount),
			zap.String("kind", d.VarianceKind),
			zap.String("reason", d.Reason),
		)
	}
	return nil
}

// WebhookNotifier posts alerts as JSON.
type WebhookNotifier struct {
	client *apiclient.Client
	path   string
}

// NewWebhookNotifier creates a notifier posting to cfg.BaseURL + cfg.Path.
func NewWebhookNotifier(cfg Config) (*WebhookNotifier, error) {
	client, err := apiclient.New(cfg.Config)
	if err != nil {
		return nil, err
	}
	return &WebhookNotifier{client: client, path: cfg.Path}, nil
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	return n.client.Post(ctx, "send_alert", n.path, nil, a, nil)
}
