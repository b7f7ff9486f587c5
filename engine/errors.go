/*
errors.go - Centralized error types for the reconciliation engine

ERROR CATEGORIES:
  1. Resolution errors - no order key derivable from an event
  2. Commission errors - unrecognized actor tags, non-numeric values
  3. Store errors - duplicate keys (expected) and transient failures (retried)

USAGE:
  Duplicate idempotency keys are EXPECTED under replay and are counted as
  "skipped", never surfaced as failures:

    if errors.Is(err, engine.ErrDuplicateIdempotencyKey) {
        result.EntriesSkipped++
    }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnresolvableOrder is returned when no order key can be derived from
	// an event. The event is recorded as an error outcome, never guessed.
	ErrUnresolvableOrder = errors.New("unresolvable order key")

	// ErrDuplicateIdempotencyKey is returned when a ledger entry with the same
	// idempotency key already exists. Expected behavior under replay.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateLineItem is returned when a line item already exists for the
	// same (order, product) pair. Expected behavior under replay.
	ErrDuplicateLineItem = errors.New("duplicate line item")

	// ErrDuplicateEvent is returned when a raw event with the same provider
	// event id has already been recorded for the tenant.
	ErrDuplicateEvent = errors.New("duplicate provider event")

	// ErrOrderNotFound is returned when a referenced order doesn't exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrRunNotFound is returned when a referenced backfill run doesn't exist.
	ErrRunNotFound = errors.New("backfill run not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedCommissionError reports one unusable commission entry. The rest of
// the event's commissions still process.
type MalformedCommissionError struct {
	Source string
	Raw    any
}

func (e *MalformedCommissionError) Error() string {
	return fmt.Sprintf("malformed commission entry: source=%q value=%v", e.Source, e.Raw)
}

// TransientStoreError wraps a store failure that may succeed on retry
// (timeout, lock contention). Exhausted retries surface as a page-level error.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store failure in %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	var transient *TransientStoreError
	return errors.As(err, &transient)
}

// IsDuplicate returns true for expected idempotency collisions.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicateLineItem) ||
		errors.Is(err, ErrDuplicateEvent)
}
