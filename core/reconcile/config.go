package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the tunables of the reconciliation engine.
type Config struct {
	// ToleranceAmount is the largest absolute difference still treated as a match.
	ToleranceAmount string `mapstructure:"tolerance_amount" default:"0.01"`
	// MaxRetries is the total number of attempts per external call.
	MaxRetries  int           `mapstructure:"max_retries" default:"5"`
	BackoffBase time.Duration `mapstructure:"backoff_base" default:"500ms"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap" default:"30s"`
	// BatchSize bounds correction batches. The ledger limit wins when smaller.
	BatchSize     int `mapstructure:"batch_size" default:"30"`
	RetentionDays int `mapstructure:"retention_days" default:"90"`
	// RunDeadline stops admitting payouts once exceeded. Zero disables it.
	RunDeadline  time.Duration `mapstructure:"run_deadline" default:"15m"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout" default:"2m"`
	Workers      int           `mapstructure:"workers" default:"4"`
	// LeaseTTL is how long a run lease survives without being extended.
	// Runs extend it every third of the TTL.
	LeaseTTL     time.Duration `mapstructure:"lease_ttl" default:"1m"`
	AutoCorrect  bool          `mapstructure:"auto_correct" default:"false"`
	// ReferenceTemplate builds the ledger reference for a payout. It must
	// contain the {payout_id} placeholder.
	ReferenceTemplate string `mapstructure:"reference_template" default:"{payout_id}"`
	// ReferencePattern optionally validates ledger references. It must
	// declare a named group payout_id.
	ReferencePattern string `mapstructure:"reference_pattern" default:""`
	// StalePendingAttempts flags PENDING payouts that stayed unmatched for
	// this many attempts. Zero disables the check.
	StalePendingAttempts int `mapstructure:"stale_pending_attempts" default:"5"`
}

// DefaultConfig mirrors the struct tag defaults for callers that do not go
// through viper.
func DefaultConfig() Config {
	return Config{
		ToleranceAmount:      "0.01",
		MaxRetries:           5,
		BackoffBase:          500 * time.Millisecond,
		BackoffCap:           30 * time.Second,
		BatchSize:            30,
		RetentionDays:        90,
		RunDeadline:          15 * time.Minute,
		FlushTimeout:         2 * time.Minute,
		Workers:              4,
		LeaseTTL:             time.Minute,
		ReferenceTemplate:    payoutIDPlaceholder,
		StalePendingAttempts: 5,
	}
}

// Tolerance parses ToleranceAmount.
func (c Config) Tolerance() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.ToleranceAmount)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: tolerance_amount %q: %v", ErrInvalidConfig, c.ToleranceAmount, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: tolerance_amount must not be negative", ErrInvalidConfig)
	}
	return d, nil
}

// RetryPolicy derives the backoff policy.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: c.MaxRetries, Base: c.BackoffBase, Cap: c.BackoffCap}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if _, err := c.Tolerance(); err != nil {
		return err
	}
	switch {
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: max_retries must be at least 1", ErrInvalidConfig)
	case c.BackoffBase < 0 || c.BackoffCap < 0:
		return fmt.Errorf("%w: backoff durations must not be negative", ErrInvalidConfig)
	case c.BackoffCap > 0 && c.BackoffBase > c.BackoffCap:
		return fmt.Errorf("%w: backoff_base %s exceeds backoff_cap %s", ErrInvalidConfig, c.BackoffBase, c.BackoffCap)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be at least 1", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case c.LeaseTTL < time.Second:
		return fmt.Errorf("%w: lease_ttl must be at least 1s", ErrInvalidConfig)
	case c.RetentionDays < 0:
		return fmt.Errorf("%w: retention_days must not be negative", ErrInvalidConfig)
	case c.RunDeadline < 0:
		return fmt.Errorf("%w: run_deadline must not be negative", ErrInvalidConfig)
	case c.StalePendingAttempts < 0:
		return fmt.Errorf("%w: stale_pending_attempts must not be negative", ErrInvalidConfig)
	}
	if _, err := NewReferenceRule(c.ReferenceTemplate, c.ReferencePattern); err != nil {
		return err
	}
	return nil
}
