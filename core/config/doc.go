// Package config loads the reconciler configuration.
//
// Values come from environment variables, optionally seeded from a .env
// file. Every leaf field declares its key with a mapstructure tag and its
// default with a default tag; bindValues walks the struct tree so each key
// is registered with Viper and picks up its environment variable
// (SECTION_KEY, e.g. RECONCILE_TOLERANCE_AMOUNT). Structs tagged
// ",squash" share their parent's prefix, so PROCESSOR_BASE_URL reaches the
// embedded API client settings.
//
// # Sections
//
//   - Server, Log, Database, Storage, Metrics: process plumbing.
//   - Reconcile, Scheduler: engine behaviour and run cadence.
//   - Processor, Ledger: the two external APIs.
//   - Simulation: generated data in place of both APIs.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
