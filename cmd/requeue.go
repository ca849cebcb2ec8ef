package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// requeueCmd returns FAILED transactions to PENDING.
var requeueCmd = &cobra.Command{
	Use:   "requeue <payout_id>...",
	Short: "Move FAILED transactions back to PENDING",
	Long:  `Requeued transactions are picked up again by the next run. Only FAILED transactions can be requeued.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}
		defer l.Sync()

		rt, err := setup(ctx, cfg, l, true)
		if err != nil {
			return err
		}

		var errs []error
		for _, id := range args {
			if _, err := rt.store.Requeue(ctx, id); err != nil {
				l.Error("Requeue failed", zap.String("payout_id", id), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			l.Info("Transaction requeued", zap.String("payout_id", id))
		}
		return errors.Join(errs...)
	},
}

func init() {
	RootCmd.AddCommand(requeueCmd)
}
