package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup by key finds no row.
// Alias resolution and artifact reads use this; callers check with errors.Is.
var ErrNotFound = errors.New("not found")

// ErrRawNotReady is returned by the derived phase when the raw row for
// (symbol, business date) has not been committed yet. It is retryable: the
// message goes back on the queue and succeeds once the raw phase commits.
var ErrRawNotReady = errors.New("raw series not yet committed")

// ErrPrecomputeMissing is returned by the read API layer when the requested
// artifact does not exist or is not in completed state. The API never
// recomputes on demand; front-ends surface this as "data not yet available".
var ErrPrecomputeMissing = errors.New("precomputed report not available")

// OperationFailedError indicates a write that should have affected at least
// one row affected zero. Silent no-op writes are forbidden.
type OperationFailedError struct {
	Op    string
	Table string
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s affected zero rows on %s", e.Op, e.Table)
}

// SchemaMismatchError indicates a write failed because the live schema does
// not match what the repository expects (e.g. a missing column). Not retryable;
// it blocks the run and points at a deployment-order violation.
type SchemaMismatchError struct {
	Table string
	Cause error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch on %s: %v", e.Table, e.Cause)
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.Cause
}

// FetchErrorKind classifies market-data provider failures.
type FetchErrorKind string

const (
	FetchTimeout   FetchErrorKind = "timeout"
	FetchRateLimit FetchErrorKind = "rate_limit"
	FetchEmpty     FetchErrorKind = "empty"
	FetchTransport FetchErrorKind = "transport"
)

// FetchError is the typed failure returned by the fetcher. The fetcher never
// retries internally; the Retryable bit tells the worker whether redelivery
// makes sense.
type FetchError struct {
	Kind      FetchErrorKind
	Symbol    string
	Retryable bool
	Cause     error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s failed (%s): %v", e.Symbol, e.Kind, e.Cause)
	}
	return fmt.Sprintf("fetch %s failed (%s)", e.Symbol, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewFetchError builds a FetchError with the retryable bit implied by kind:
// timeouts, rate limits, and transport failures are retryable, data-quality
// failures (empty, duplicate dates) are not.
func NewFetchError(kind FetchErrorKind, symbol string, cause error) *FetchError {
	retryable := kind == FetchTimeout || kind == FetchRateLimit || kind == FetchTransport
	return &FetchError{Kind: kind, Symbol: symbol, Retryable: retryable, Cause: cause}
}

// InvariantError indicates a pipeline invariant was violated (e.g. derived
// write attempted before the raw row exists). Treated as a bug: it fails
// loudly with the correlation id and is never retried.
type InvariantError struct {
	CorrelationID string
	Detail        string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation [%s]: %s", e.CorrelationID, e.Detail)
}

// IsRetryable reports whether an error should be redelivered by the queue.
// Unknown errors default to retryable so transient infrastructure failures
// (locked database, network blips) get another chance up to the retry cap.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	var sme *SchemaMismatchError
	if errors.As(err, &sme) {
		return false
	}
	var ive *InvariantError
	if errors.As(err, &ive) {
		return false
	}
	var ofe *OperationFailedError
	if errors.As(err, &ofe) {
		return false
	}
	if errors.Is(err, ErrRawNotReady) {
		return true
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrPrecomputeMissing) {
		return false
	}
	return true
}
