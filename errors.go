package loanbook

import (
	"errors"
	"fmt"

	"github.com/xraph/loanbook/gate"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("loanbook: not found")
	ErrAlreadyExists = errors.New("loanbook: already exists")

	// Entity lookups
	ErrClientNotFound       = errors.New("loanbook: client not found")
	ErrDisbursementNotFound = errors.New("loanbook: disbursement not found")
	ErrPaymentNotFound      = errors.New("loanbook: payment not found")
	ErrUserNotFound         = errors.New("loanbook: user not found")

	// Ledger preconditions, checked inside the transaction
	ErrBalanceNotZero         = errors.New("loanbook: balance must be zero")
	ErrNothingToReconstruct   = errors.New("loanbook: balance must be positive to reconstruct")
	ErrPaymentExceedsBalance  = errors.New("loanbook: payment exceeds balance")
	ErrNoActiveDisbursement   = errors.New("loanbook: no active disbursement")
	ErrNotCurrentDisbursement = errors.New("loanbook: disbursement is not the client's current loan")
	ErrPaymentOutsideTerm     = errors.New("loanbook: payment date outside loan term")
	ErrInvariant              = errors.New("loanbook: ledger invariant violated")

	// Store errors
	ErrStoreUnavailable = errors.New("loanbook: store unavailable")
	ErrStoreClosed      = errors.New("loanbook: store is closed")
	ErrTxConflict       = errors.New("loanbook: transaction conflict")
	ErrMigrationFailed  = errors.New("loanbook: migration failed")

	// Engine errors
	ErrNoSession = errors.New("loanbook: no session user")
)

// ValidationError represents a request that failed validation before any
// transaction was opened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("loanbook: validation failed for %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "loanbook: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("loanbook: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

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

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Kind classifies a failure for callers that translate errors into
// user-facing messages.
type Kind string

// Failure kinds.
const (
	KindNone             Kind = ""
	KindValidation       Kind = "validation"
	KindPrecondition     Kind = "precondition"
	KindAuth             Kind = "auth"
	KindStoreUnavailable Kind = "store_unavailable"
	KindInternal         Kind = "internal"
)

// KindOf returns the failure kind of err.
func KindOf(err error) Kind {
	var verr *ValidationError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &verr):
		return KindValidation
	case IsAuthFailed(err):
		return KindAuth
	case IsPrecondition(err):
		return KindPrecondition
	case IsRetryable(err):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrDisbursementNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsPrecondition returns true if the error is a ledger rule that failed
// against the state read inside a transaction.
func IsPrecondition(err error) bool {
	return IsNotFound(err) ||
		errors.Is(err, ErrBalanceNotZero) ||
		errors.Is(err, ErrNothingToReconstruct) ||
		errors.Is(err, ErrPaymentExceedsBalance) ||
		errors.Is(err, ErrNoActiveDisbursement) ||
		errors.Is(err, ErrNotCurrentDisbursement) ||
		errors.Is(err, ErrPaymentOutsideTerm)
}

// IsAuthFailed returns true if a PIN check rejected the request.
func IsAuthFailed(err error) bool {
	return errors.Is(err, gate.ErrMismatch) ||
		errors.Is(err, gate.ErrLocked) ||
		errors.Is(err, ErrNoSession)
}

// IsRetryable returns true if the error is temporary and the operation can be
// retried. Every ledger operation is atomic, so a retry never double-applies.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrTxConflict)
}
