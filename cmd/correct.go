package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"payout-reconciler/core/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// correctCmd posts ledger corrections for VARIANCE transactions.
var correctCmd = &cobra.Command{
	Use:   "correct <payout_id>...",
	Short: "Post the ledger correction of VARIANCE transactions",
	Long: `Posts the correcting ledger entry of each VARIANCE transaction right away,
without waiting for a run with auto-correct. The command takes the run lock, so it
fails while a reconciliation run or prune is active.

Examples:
  # Correct one payout
  correct po_1N8xYz

  # Correct several, simulated collaborators
  correct --simulate po_1 po_2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCorrect,
}

var correctSimulate bool

func init() {
	correctCmd.Flags().BoolVar(&correctSimulate, "simulate", false, "Use the simulated processor and ledger")

	RootCmd.AddCommand(correctCmd)
}

func runCorrect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, l, err := loadConfig(func(c *config.Config) {
		if correctSimulate {
			c.Simulation.Enabled = true
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

	var errs []error
	for _, id := range args {
		tx, err := engine.Correct(ctx, id)
		if err != nil {
			l.Error("Correction failed", zap.String("payout_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		l.Info("Correction processed",
			zap.String("payout_id", id),
			zap.String("status", string(tx.Status)),
			zap.String("reason", tx.Reason),
		)
	}
	return errors.Join(errs...)
}
