package scheduler

import (
	"context"
	"errors"
	"time"

	"payout-reconciler/core/reconcile"

	"go.uber.org/zap"
)

// Config controls when reconciliation runs are started.
type Config struct {
	// Interval between scheduled runs. Zero disables the timer; runs then
	// only start on demand.
	Interval time.Duration `mapstructure:"interval" default:"1h"`
	// RunOnStart triggers a run as soon as the scheduler starts.
	RunOnStart bool `mapstructure:"run_on_start" default:"true"`
	// Prune deletes expired MATCHED transactions after every run.
	Prune bool `mapstructure:"prune" default:"true"`
}

// Runner is the reconciliation engine as seen by the scheduler.
type Runner interface {
	Run(ctx context.Context) (*reconcile.RunSummary, error)
	Prune(ctx context.Context) (int64, error)
	Running() bool
}

// Notifier is told about runs that left payouts needing review.
type Notifier interface {
	NotifyActionRequired(ctx context.Context, summary *reconcile.RunSummary) error
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithNotifier sends an alert after every run that needs review.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) {
		s.notifier = n
	}
}

// notifyTimeout bounds alert delivery, which still happens during shutdown.
const notifyTimeout = 30 * time.Second

// Scheduler starts runs on a fixed interval and on demand. At most one run
// is active at a time: triggers that arrive while a run is active are
// dropped, never queued behind it.
type Scheduler struct {
	runner   Runner
	cfg      Config
	logger   *zap.Logger
	notifier Notifier
	trigger  chan struct{}
	newTick  func(d time.Duration) (<-chan time.Time, func())
}

// New creates a scheduler.
func New(runner Runner, cfg Config, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		newTick: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger requests a run. It returns reconcile.ErrRunInProgress when a run
// is active or already requested.
func (s *Scheduler) Trigger() error {
	if s.runner.Running() {
		return reconcile.ErrRunInProgress
	}
	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return reconcile.ErrRunInProgress
	}
}

// Start runs the schedule until ctx is cancelled. A run in flight when ctx
// is cancelled is allowed to wind down before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		c, stop := s.newTick(s.cfg.Interval)
		defer stop()
		tick = c
	}

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Bool("run_on_start", s.cfg.RunOnStart),
	)
	if s.cfg.RunOnStart {
		s.RunOnce(ctx, "startup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-tick:
			s.RunOnce(ctx, "schedule")
		case <-s.trigger:
			s.RunOnce(ctx, "manual")
		}
	}
}

// RunOnce performs one run followed by retention pruning.
func (s *Scheduler) RunOnce(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	log := s.logger.With(zap.String("trigger", reason))

	summary, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, reconcile.ErrRunInProgress):
		log.Warn("Skipping run, another run is active")
		return
	case err != nil:
		log.Error("Reconciliation run failed", zap.Error(err))
	case summary.ActionRequired():
		log.Warn("Reconciliation run needs review",
			zap.String("run_id", summary.RunID),
			zap.Int("variance", summary.Variance),
			zap.Int("failed", summary.Failed),
		)
		s.notify(ctx, log, summary)
	}

	if !s.cfg.Prune || ctx.Err() != nil {
		return
	}
	if _, err := s.runner.Prune(ctx); err != nil && !errors.Is(err, reconcile.ErrRunInProgress) {
		log.Error("Retention pruning failed", zap.Error(err))
	}
}

func (s *Scheduler) notify(ctx context.Context, log *zap.Logger, summary *reconcile.RunSummary) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyActionRequired(ctx, summary); err != nil {
		log.Error("Discrepancy alert failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}
