package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"payout-reconciler/core/metrics"

	"go.uber.org/zap"
)

// RetryPolicy bounds the attempts of one external call.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// Delay returns the wait before retry number attempt (zero based):
// Base*2^attempt, capped at Cap.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			break
		}
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

// Call describes an external operation for the Backoff controller.
type Call struct {
	Op string
	// Idempotent marks calls that are safe to repeat after a 5xx or an
	// ambiguous transport failure: reads and writes that carry an
	// idempotency key.
	Idempotent bool
}

type decision int

const (
	retryCall decision = iota
	giveUpTransient
	giveUpPermanent
)

// Backoff retries external calls with exponential backoff.
//
// The operation itself always runs on a context detached from cancellation
// so an attempt that has started is never torn down halfway. Cancellation is
// honored before each attempt and while sleeping between attempts.
type Backoff struct {
	policy  RetryPolicy
	logger  *zap.Logger
	metrics metrics.Collector
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewBackoff creates a Backoff controller.
func NewBackoff(policy RetryPolicy, logger *zap.Logger, m metrics.Collector) *Backoff {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Backoff{policy: policy, logger: logger, metrics: m, sleep: sleepContext}
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts.
//
// Exhaustion yields a *TransientFailure. Permanent failures are wrapped with
// ErrPermanent. A cancelled ctx yields the context error.
func (b *Backoff) Do(ctx context.Context, call Call, fn func(context.Context) error) error {
	attempts := max(b.policy.MaxAttempts, 1)
	callCtx := context.WithoutCancel(ctx)

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := b.delay(attempt-1, last)
			b.metrics.RecordBackoff(call.Op, delay)
			b.logger.Debug("Retrying external call",
				zap.String("op", call.Op),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(last),
			)
			if err := b.sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s: %w", call.Op, err)
			}
			b.metrics.IncrementRetry(call.Op)
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", call.Op, err)
		}

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		last = err

		switch classify(call, err) {
		case giveUpPermanent:
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		case giveUpTransient:
			return &TransientFailure{Op: call.Op, Attempts: attempt + 1, Last: err}
		}
	}

	return &TransientFailure{Op: call.Op, Attempts: attempts, Last: last}
}

// Retry is Do for operations that return a value.
func Retry[T any](ctx context.Context, b *Backoff, call Call, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, call, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (b *Backoff) delay(attempt int, last error) time.Duration {
	d := b.policy.Delay(attempt)
	var ext *ExternalError
	if errors.As(last, &ext) && ext.RetryAfter > d {
		d = ext.RetryAfter
		if b.policy.Cap > 0 && d > b.policy.Cap {
			d = b.policy.Cap
		}
	}
	return d
}

// classify decides what to do after a failed attempt. Rate limiting is
// always retried because the server rejected the call before acting on it.
func classify(call Call, err error) decision {
	var ext *ExternalError
	if !errors.As(err, &ext) {
		return giveUpPermanent
	}

	switch {
	case ext.StatusCode == http.StatusTooManyRequests:
		return retryCall
	case ext.StatusCode >= http.StatusInternalServerError:
		if call.Idempotent {
			return retryCall
		}
		return giveUpTransient
	case ext.StatusCode == 0:
		if call.Idempotent || !ext.Ambiguous {
			return retryCall
		}
		return giveUpTransient
	}
	return giveUpPermanent
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
