package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"payout-reconciler/core/database"
	"payout-reconciler/core/logger"
	"payout-reconciler/core/metrics"
	"payout-reconciler/core/reconcile"
	"payout-reconciler/core/scheduler"
	"payout-reconciler/core/server"
	"payout-reconciler/core/storage"
	"payout-reconciler/feature/alert"
	"payout-reconciler/feature/ledger"
	"payout-reconciler/feature/processor"
	"payout-reconciler/feature/simulated"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP status API.
	Server server.Config `mapstructure:"server"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the state store.
	Database database.Config `mapstructure:"database"`
	// Storage holds configuration for the export bucket.
	Storage storage.Config `mapstructure:"storage"`
	// Reconcile holds the engine settings.
	Reconcile reconcile.Config `mapstructure:"reconcile"`
	// Scheduler controls periodic runs of the daemon.
	Scheduler scheduler.Config `mapstructure:"scheduler"`
	// Processor is the payment processor API.
	Processor processor.Config `mapstructure:"processor"`
	// Ledger is the accounting ledger API.
	Ledger ledger.Config `mapstructure:"ledger"`
	// Simulation replaces both APIs with generated data.
	Simulation Simulation `mapstructure:"simulation"`
	// Metrics controls the Prometheus endpoint.
	Metrics metrics.Config `mapstructure:"metrics"`
	// Alert controls discrepancy alerts after runs.
	Alert alert.Config `mapstructure:"alert"`
}

// Simulation configures the in-memory processor and ledger.
type Simulation struct {
	// Enabled swaps the real connectors for the simulated dataset.
	Enabled          bool `mapstructure:"enabled" default:"false"`
	simulated.Config `mapstructure:",squash"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks every section the daemon depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Enabled {
		errs = append(errs, c.Server.Validate())
	}
	errs = append(errs, c.Reconcile.Validate())
	if !c.Simulation.Enabled {
		if c.Processor.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: PROCESSOR_BASE_URL is required", reconcile.ErrInvalidConfig))
		}
		if c.Ledger.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: LEDGER_BASE_URL is required", reconcile.ErrInvalidConfig))
		}
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		errs = append(errs, fmt.Errorf("%w: STORAGE_BUCKET is required when storage is enabled", reconcile.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")

		// Squashed structs share the parent prefix
		if opts == "squash" && field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), prefix)
			continue
		}

		// Skip if no tag
		if name == "" {
			continue
		}

		// Build the key
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
