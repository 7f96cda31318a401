/*
errors.go - Error taxonomy for the ledger

ERROR CATEGORIES:
  1. NotFound         - a referenced customer, invoice or movement is missing
  2. Validation       - an entity would violate one of its invariants
  3. InvalidOperation - a workflow precondition fails on otherwise valid data

Structured errors carry context and unwrap to the sentinel so callers can
use errors.Is without caring about the concrete type:

    if errors.Is(err, account.ErrInvalidOperation) {
        // surface to the user
    }

Nothing in this package retries. Storage failures are wrapped with %w and
propagate unchanged.
*/
package account

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrDuplicateIdempotencyKey is returned when a movement with the same
	// idempotency key was already appended.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrMovementExists is returned when saving a movement whose id is
	// already stored. Movements are insert-only.
	ErrMovementExists = errors.New("movement already exists")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Resource string // "customer", "invoice", "movement"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports the first invariant an entity violates.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidOperationError reports a failed workflow precondition.
type InvalidOperationError struct {
	Op     string
	Reason string
	Err    error // optional cause, e.g. ErrDuplicateIdempotencyKey
}

func (e *InvalidOperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *InvalidOperationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidOperation, e.Err}
	}
	return []error{ErrInvalidOperation}
}

func notFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func rejected(op, reason string) error {
	return &InvalidOperationError{Op: op, Reason: reason}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool         { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool       { return errors.Is(err, ErrValidation) }
func IsInvalidOperation(err error) bool { return errors.Is(err, ErrInvalidOperation) }

// IsClientError returns true if the error is caused by the caller's input
// rather than by the system.
func IsClientError(err error) bool {
	return IsNotFound(err) || IsValidation(err) || IsInvalidOperation(err) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}
