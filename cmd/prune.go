package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"payout-reconciler/core/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	retentionDays int
	yesConfirm    bool
)

// pruneCmd deletes old MATCHED transactions.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete MATCHED transactions past the retention window",
	Long: `Deletes MATCHED transactions whose last attempt is older than the retention
window. PENDING, VARIANCE and FAILED transactions are never pruned.

Examples:
  # Prune with the configured retention (interactive confirmation)
  prune

  # Keep 30 days, non-interactive
  prune --retention-days 30 --yes`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Override RECONCILE_RETENTION_DAYS")
	pruneCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")

	RootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, l, err := loadConfig(func(c *config.Config) {
		if cmd.Flags().Changed("retention-days") {
			c.Reconcile.RetentionDays = retentionDays
		}
	})
	if err != nil {
		return err
	}
	defer l.Sync()

	days := cfg.Reconcile.RetentionDays
	if days <= 0 {
		l.Info("Retention is disabled, nothing to prune.")
		return nil
	}

	rt, err := setup(ctx, cfg, l, true)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	l.Info("Pruning matched transactions", zap.Int("retention_days", days), zap.Time("older_than", cutoff))

	if !confirmDestructiveAction() {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	release, err := rt.holdRunLease(ctx)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	defer release()

	n, err := rt.store.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	rt.metrics.RecordPruned(n)
	l.Info("Pruned matched transactions", zap.Int64("deleted", n))
	return nil
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm destructive actions: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
