package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payout-reconciler/core/config"
	"payout-reconciler/core/reconcile"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	simulateRun    bool
	autoCorrectRun bool
	deadlineRun    time.Duration
)

// runCmd performs a single reconciliation run and exits.
var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"reconcile"},
	Short:   "Run one reconciliation pass",
	Long: `Fetches payouts from the processor, matches them against ledger deposits
and records the outcome of each. The run summary is printed as JSON.

Examples:
  # Reconcile against the configured APIs
  run

  # Try the engine on generated data
  run --simulate

  # Post correcting entries for variances, stop admitting payouts after 5 minutes
  run --auto-correct --deadline 5m`,
	RunE: runReconcile,
}

func init() {
	runCmd.Flags().BoolVar(&simulateRun, "simulate", false, "Use the simulated processor and ledger")
	runCmd.Flags().BoolVar(&autoCorrectRun, "auto-correct", false, "Post correcting entries for variances")
	runCmd.Flags().DurationVar(&deadlineRun, "deadline", 0, "Override the run deadline (e.g. 10m)")

	RootCmd.AddCommand(runCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, l, err := loadConfig(func(c *config.Config) {
		if simulateRun {
			c.Simulation.Enabled = true
		}
		if autoCorrectRun {
			c.Reconcile.AutoCorrect = true
		}
		if cmd.Flags().Changed("deadline") {
			c.Reconcile.RunDeadline = deadlineRun
		}
	})
	if err != nil {
		return err
	}
	defer l.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	rt, err := setup(ctx, cfg, l, true)
	if err != nil {
		return err
	}
	engine, err := rt.engine()
	if err != nil {
		return err
	}
	alerts, err := rt.alerts()
	if err != nil {
		return err
	}

	summary, err := engine.Run(ctx)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	if summary.ActionRequired() {
		l.Warn("Payouts need attention",
			zap.Int("variance", summary.Variance),
			zap.Int("failed", summary.Failed),
			zap.Int("stale_pending", summary.StalePending),
		)
		if alerts != nil {
			if err := alerts.NotifyActionRequired(context.WithoutCancel(ctx), summary); err != nil {
				l.Error("Discrepancy alert failed", zap.Error(err))
			}
		}
	}
	return nil
}

// printSummary writes the run summary to stdout.
func printSummary(s *reconcile.RunSummary) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(data))
}
