/*
errors.go - Centralized error types for the stock engine

ERROR CATEGORIES:
  1. Not found   - unknown stocked item
  2. Validation  - zero quantity change, bad change type, negative count
  3. Concurrency - the item transaction could not be committed; retryable
  4. Stock       - movement would drive the balance negative under a
                   no-oversell policy
  5. Duplicate   - source reference already recorded; signals a replayed
                   workflow event

Every failure path leaves the ledger and cache in their pre-call state.
Transport layers map these to their own responses (HTTP 404/400/409/422).

USAGE:
  if errors.Is(err, ledger.ErrConcurrency) { retry with backoff }

  var nf *ledger.NotFoundError
  if errors.As(err, &nf) { ... nf.ItemID ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced stocked item doesn't exist.
	ErrNotFound = errors.New("stocked item not found")

	// ErrValidation is returned for malformed movement or count input.
	// Detected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrency is returned when the item transaction cannot commit
	// due to contention. The caller decides whether to retry; the engine
	// never retries silently.
	ErrConcurrency = errors.New("concurrent balance mutation")

	// ErrInsufficientStock is returned when a movement would drive the
	// balance negative and the policy disallows overselling.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicateSource is returned when a movement carries a
	// (SourceType, SourceID) pair the ledger has already recorded.
	// Workflow adapters treat it as a replayed event.
	ErrDuplicateSource = errors.New("duplicate source reference")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies the missing item.
type NotFoundError struct {
	ItemID ItemID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("stocked item %s not found", e.ItemID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConcurrencyError wraps a storage-level commit conflict.
type ConcurrencyError struct {
	ItemID ItemID
	Cause  error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrent balance mutation on item %s: %v", e.ItemID, e.Cause)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrency }

// InsufficientStockError details a rejected oversell.
type InsufficientStockError struct {
	ItemID    ItemID
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock on item %s: available %d, requested %d",
		e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// DuplicateSourceError identifies the already-recorded source reference.
// The uniqueness of (SourceType, SourceID) is enforced by the store, so
// two racing writers of the same workflow event cannot both commit.
type DuplicateSourceError struct {
	SourceType string
	SourceID   string
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("movement for source %s/%s already recorded", e.SourceType, e.SourceID)
}

func (e *DuplicateSourceError) Unwrap() error { return ErrDuplicateSource }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrency)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing item.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
