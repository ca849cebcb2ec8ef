package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/store"
	"payout-reconciler/feature/export"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	exportOut    string
	exportUpload bool
	exportStatus string
)

// exportCmd writes transactions as CSV.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export transactions as CSV",
	Long: `Writes every transaction as CSV to stdout, a file, or the export bucket.

Examples:
  export --status variance > variances.csv
  export --out report.csv
  export --upload`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}
		defer l.Sync()

		var f store.Filter
		if exportStatus != "" {
			if f.Status, err = reconcile.ParseStatus(exportStatus); err != nil {
				return err
			}
		}

		rt, err := setup(ctx, cfg, l, true)
		if err != nil {
			return err
		}

		if exportUpload {
			if rt.storage == nil {
				return errors.New("export upload requires STORAGE_ENABLED=true")
			}
			res, err := export.NewUploader(rt.storage, cfg.Storage.Bucket, l).Upload(ctx, rt.store, f)
			if err != nil {
				return err
			}
			fmt.Printf("s3://%s/%s (%d rows)\n", res.Bucket, res.Object, res.Rows)
			return nil
		}

		var w io.Writer = os.Stdout
		if exportOut != "" {
			file, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOut, err)
			}
			defer file.Close()
			w = file
		}

		rows, err := export.WriteCSV(ctx, w, rt.store, f)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		l.Info("Export written", zap.Int("rows", rows), zap.String("out", exportOut))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Write to this file instead of stdout")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Upload to the export bucket")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only export this status")

	RootCmd.AddCommand(exportCmd)
}
