package processor

import "payout-reconciler/core/apiclient"

// Config holds the payment processor connection settings.
type Config struct {
	apiclient.Config `mapstructure:",squash"`
	// PageSize is the number of payouts requested per page.
	PageSize int `mapstructure:"page_size" default:"100"`
	// LookbackDays limits ingestion to payouts created in the last N days.
	// Zero ingests everything the processor returns.
	LookbackDays int `mapstructure:"lookback_days" default:"30"`
	// Currency is assumed for payouts that do not carry one.
	Currency string `mapstructure:"currency" default:"USD"`
}
