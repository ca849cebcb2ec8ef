package alert

import "payout-reconciler/core/apiclient"

// Config holds the discrepancy alert settings.
type Config struct {
	// Enabled turns alerts on. The log notifier needs nothing else.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// The webhook is used only when BaseURL is set.
	apiclient.Config `mapstructure:",squash"`
	// Path is appended to BaseURL for the webhook call.
	Path string `mapstructure:"path" default:"/alerts"`
	// MaxItems caps the transactions listed in one alert.
	MaxItems int `mapstructure:"max_items" default:"50"`
}
