package cmd

import (
	"context"
	"fmt"
	"time"

	"payout-reconciler/core/config"
	"payout-reconciler/core/database"
	"payout-reconciler/core/logger"
	"payout-reconciler/core/metrics"
	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/storage"
	"payout-reconciler/core/store"
	"payout-reconciler/feature/alert"
	"payout-reconciler/feature/ledger"
	"payout-reconciler/feature/processor"
	"payout-reconciler/feature/simulated"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// stack holds the components every command builds from configuration.
type stack struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	storage  storage.Client
	registry *prometheus.Registry
	metrics  metrics.Collector
}

// loadConfig loads configuration and the logger. Overrides run before
// validation so flags can fix what the environment left out.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, l, nil
}

// setup connects the state store and, when enabled, object storage and
// metrics. migrate creates or updates the transactions table first.
func setup(ctx context.Context, cfg *config.Config, l *zap.Logger, migrate bool) (*stack, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	st := store.New(db)
	if migrate {
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	l.Info("Connected to state store", zap.String("driver", cfg.Database.Driver))

	rt := &stack{cfg: cfg, logger: l, store: st, metrics: metrics.NewNop()}

	if cfg.Metrics.Enabled {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.metrics = metrics.NewPrometheus(rt.registry, cfg.Metrics.Namespace)
	}

	if cfg.Storage.Enabled {
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, err
		}
		rt.storage = client
	}
	return rt, nil
}

// engine wires the reconciliation engine to the configured connectors.
func (rt *stack) engine() (*reconcile.Engine, error) {
	source, ledgerSource, err := rt.connectors()
	if err != nil {
		return nil, err
	}
	return reconcile.NewEngine(rt.cfg.Reconcile, reconcile.Dependencies{
		Source:  source,
		Ledger:  ledgerSource,
		Store:   rt.store,
		Lease:   rt.store.Lease(store.RunLease),
		Logger:  rt.logger,
		Metrics: rt.metrics,
	})
}

// alerts builds the discrepancy alert service, or nil when alerts are off.
func (rt *stack) alerts() (*alert.Service, error) {
	return alert.NewService(rt.cfg.Alert, rt.store, rt.logger)
}

// holdRunLease takes the shared run lease for commands that change state
// outside an engine run. The returned func releases it.
func (rt *stack) holdRunLease(ctx context.Context) (func(), error) {
	lease := rt.store.Lease(store.RunLease)
	holder := uuid.NewString()
	ok, err := lease.Acquire(ctx, holder, rt.cfg.Reconcile.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reconcile.ErrRunInProgress
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx), holder); err != nil {
			rt.logger.Warn("Failed to release run lease", zap.Error(err))
		}
	}, nil
}

func (rt *stack) connectors() (reconcile.PayoutSource, reconcile.LedgerSource, error) {
	if rt.cfg.Simulation.Enabled {
		rule, err := reconcile.NewReferenceRule(rt.cfg.Reconcile.ReferenceTemplate, rt.cfg.Reconcile.ReferencePattern)
		if err != nil {
			return nil, nil, err
		}
		dataset, err := simulated.NewDataset(rt.cfg.Simulation.Config, rule, time.Now())
		if err != nil {
			return nil, nil, err
		}
		rt.logger.Warn("Using simulated processor and ledger", zap.Int("payouts", rt.cfg.Simulation.Payouts))
		return dataset, dataset, nil
	}

	source, err := processor.NewSource(rt.cfg.Processor)
	if err != nil {
		return nil, nil, fmt.Errorf("processor: %w", err)
	}
	ledgerSource, err := ledger.NewSource(rt.cfg.Ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: %w", err)
	}
	return source, ledgerSource, nil
}
