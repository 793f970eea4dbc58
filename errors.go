package creditledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("creditledger: not found")
	ErrInvalidInput = errors.New("creditledger: invalid input")

	// Validation errors (caller-recoverable rejections, log untouched)
	ErrInsufficientBalance   = errors.New("creditledger: insufficient balance")
	ErrDuplicateExternalTx   = errors.New("creditledger: duplicate external transaction hash")
	ErrInvalidTransferTarget = errors.New("creditledger: invalid transfer target")
	ErrAgentOwnerMismatch    = errors.New("creditledger: agent belongs to a different owner")
	ErrInvalidAmountSign     = errors.New("creditledger: invalid amount sign for transaction kind")
	ErrInvalidCreditKind     = errors.New("creditledger: invalid credit kind")

	// State machine errors (an integration bug, fatal to the operation)
	ErrInvalidStateTransition = errors.New("creditledger: invalid status transition")
	ErrNotPending             = errors.New("creditledger: transaction is not pending")
	ErrHashMismatch           = errors.New("creditledger: external transaction hash mismatch")

	// Lookup errors
	ErrTransactionNotFound = errors.New("creditledger: transaction not found")
	ErrAccountNotFound     = errors.New("creditledger: account not found")
	ErrAgentNotFound       = errors.New("creditledger: agent not found")
	ErrAgentExists         = errors.New("creditledger: agent already registered")

	// Store errors (retry the whole submission)
	ErrStoreNotReady   = errors.New("creditledger: store not ready")
	ErrStoreClosed     = errors.New("creditledger: store is closed")
	ErrAppendFailed    = errors.New("creditledger: log append failed")
	ErrMigrationFailed = errors.New("creditledger: migration failed")

	// Projection errors
	ErrProjectionDrift = errors.New("creditledger: projected balances diverge from replay")
)

// ValidationError represents a validation rejection with details.
// It wraps one of the validation sentinels so callers can branch with
// errors.Is while surfacing the offending field to the UI.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("creditledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap exposes the wrapped sentinel for errors.Is checks.
func (e ValidationError) Unwrap() error { return e.Err }

// newValidationError builds a ValidationError around a sentinel.
func newValidationError(sentinel error, field, format string, args ...any) error {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "creditledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("creditledger: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsValidationError returns true if the error is a caller-recoverable
// validation rejection. The log is untouched for these.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateExternalTx) ||
		errors.Is(err, ErrInvalidTransferTarget) ||
		errors.Is(err, ErrAgentOwnerMismatch) ||
		errors.Is(err, ErrInvalidAmountSign) ||
		errors.Is(err, ErrInvalidCreditKind) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAgentNotFound)
}

// IsRetryable returns true if the error is temporary and the whole
// submission can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrAppendFailed)
}
