package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRunInProgress is returned when a run or prune is requested while
	// another one holds the run lock.
	ErrRunInProgress = errors.New("reconciliation run already in progress")
	// ErrTransient marks failures that exhausted their retries.
	ErrTransient = errors.New("transient external failure")
	// ErrPermanent marks external failures that must not be retried.
	ErrPermanent = errors.New("permanent external failure")
	// ErrDataIntegrity marks ambiguous or inconsistent data.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrPersistence marks state store failures. They abort the run.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidConfig marks configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrMalformedPayload marks external payloads that fail strict parsing.
	ErrMalformedPayload = errors.New("malformed external payload")
	// ErrNotFound is returned when a payout has no transaction.
	ErrNotFound = errors.New("transaction not found")
	// ErrNotCorrectable is returned when a manual correction targets a
	// transaction that is not in VARIANCE.
	ErrNotCorrectable = errors.New("only VARIANCE transactions can be corrected")
)

// ExternalError describes a failed call to the processor or the ledger.
type ExternalError struct {
	Op         string
	StatusCode int // 0 when no response was received
	RetryAfter time.Duration
	// Ambiguous is set when the request may have reached the server before
	// the failure, e.g. a response timeout.
	Ambiguous bool
	Err       error
}

func (e *ExternalError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// RateLimited reports whether the server throttled the call.
func (e *ExternalError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// TransientFailure is returned by the backoff controller once an operation
// keeps failing with retryable errors. It matches ErrTransient.
type TransientFailure struct {
	Op       string
	Attempts int
	Last     error
}

func (e *TransientFailure) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempt(s): %v", e.Op, e.Attempts, e.Last)
}

func (e *TransientFailure) Unwrap() []error {
	return []error{ErrTransient, e.Last}
}

// failureKind names the error class stored in transaction diagnostics.
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrMalformedPayload):
		return "permanent"
	}
	return "unknown"
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
