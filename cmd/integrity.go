package cmd

import (
	"context"
	"errors"
	"fmt"

	"payout-reconciler/feature/integrity"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fixFlag bool

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check the state store schema and the export bucket",
	Long: `Verifies that the transactions table matches the model and that the export
bucket is usable. With --fix the table is migrated and the bucket created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}
		defer l.Sync()

		rt, err := setup(ctx, cfg, l, false)
		if err != nil {
			return err
		}

		svc := integrity.NewService(rt.store.DB(), rt.storage, cfg.Storage.Bucket, cfg.Storage.Region, l)
		report := svc.Run(ctx, fixFlag)

		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))

		if !report.Healthy {
			if !fixFlag {
				l.Info("Run with --fix to repair what is missing.")
			}
			return errors.New("integrity checks failed")
		}
		l.Info("All integrity checks passed", zap.Bool("fix", fixFlag))
		return nil
	},
}

func init() {
	integrityCmd.Flags().BoolVar(&fixFlag, "fix", false, "Migrate the schema and create the export bucket")
	RootCmd.AddCommand(integrityCmd)
}
