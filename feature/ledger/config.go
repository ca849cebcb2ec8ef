package ledger

import "payout-reconciler/core/apiclient"

// Config holds the accounting ledger connection settings.
type Config struct {
	apiclient.Config `mapstructure:",squash"`
	// MaxBatchSize is the largest number of entries one batch call may carry.
	MaxBatchSize int `mapstructure:"max_batch_size" default:"30"`
	// AdjustmentAccount is the account correction entries are booked against.
	AdjustmentAccount string `mapstructure:"adjustment_account" default:"Payout Variance"`
}
