package apiclient

import "time"

// Config holds the connection settings of one external API.
type Config struct {
	// BaseURL is the API root, e.g. https://api.processor.example.
	BaseURL string `mapstructure:"base_url" default:""`
	// APIKey is sent as a bearer token.
	APIKey string `mapstructure:"api_key" default:""`
	// Timeout bounds one request including reading the response body.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" default:"5"`
	// Burst is the number of requests allowed above the steady rate.
	Burst int `mapstructure:"burst" default:"1"`
}
