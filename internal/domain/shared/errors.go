package shared

import (
	"errors"
	"fmt"
)

// DomainError is a business-level failure identified by Code.
// Two DomainErrors match under errors.Is when their codes are equal.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound                 = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists            = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput             = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState             = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrConcurrencyConflict      = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInsufficientStock        = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock on hand")
	ErrInsufficientAvailability = NewDomainError("INSUFFICIENT_AVAILABILITY", "Insufficient quantity available to reserve")
	ErrReservationExpired       = NewDomainError("RESERVATION_EXPIRED", "Reservation has expired")
	ErrReconciliationMismatch   = NewDomainError("RECONCILIATION_MISMATCH", "Ledger does not match on-hand quantity")
	ErrTransientStore           = NewDomainError("TRANSIENT_STORE_ERROR", "Inventory store temporarily unavailable")
)

// TransientError wraps a store failure that may succeed on retry.
// CleanAbort is set when the store guarantees nothing was committed.
type TransientError struct {
	Op         string
	Cause      error
	CleanAbort bool
}

// NewTransientError wraps cause as a retryable store failure
func NewTransientError(op string, cause error, cleanAbort bool) *TransientError {
	return &TransientError{Op: op, Cause: cause, CleanAbort: cleanAbort}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransientStore.Message, e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrTransientStore) hold for every TransientError
func (e *TransientError) Is(target error) bool {
	return errors.Is(ErrTransientStore, target)
}

// IsTransient reports whether err is a retryable store failure
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsCleanAbort reports whether err is a transient failure with no partial commit
func IsCleanAbort(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.CleanAbort
}

// ErrorCode extracts the domain code from err, or "" when err carries none
func ErrorCode(err error) string {
	if IsTransient(err) {
		return ErrTransientStore.Code
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
