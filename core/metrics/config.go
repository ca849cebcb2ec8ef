package metrics

// Config controls the Prometheus exposition.
type Config struct {
	// Enabled exposes metrics on Path. When false a Nop collector is used.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Path is the HTTP path of the scrape endpoint.
	Path string `mapstructure:"path" default:"/metrics"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace" default:"payout_reconciler"`
}
