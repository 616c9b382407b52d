/*
errors.go - Error kinds returned by ledger operations

PURPOSE:
  Every operation fails synchronously with one of the kinds below. Callers
  (the HTTP layer, tests) branch on them with errors.Is and translate them
  into user-facing messages. The ledger itself never logs or retries.

SPECIALIZATIONS:
  ErrSelfPurchase and ErrAccessDenied are specializations of ErrUnauthorized:
  errors.Is(ErrSelfPurchase, ErrUnauthorized) is true.

SEE ALSO:
  - enrollment.go: PaymentMismatchError, SettlementError
  - settlement.go: InsufficientFundsError
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
	// ErrInvalidInput is returned for malformed creation or funding arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a course id is unknown, or when a purchase
	// targets a course that is no longer active.
	ErrNotFound = errors.New("course not found")

	// ErrUnauthorized is returned when the caller lacks the required
	// relationship to the course.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSelfPurchase is returned when an instructor tries to buy their own course.
	ErrSelfPurchase = fmt.Errorf("%w: instructor cannot purchase own course", ErrUnauthorized)

	// ErrAccessDenied is returned when the caller is neither the instructor
	// nor an enrolled student.
	ErrAccessDenied = fmt.Errorf("%w: access denied", ErrUnauthorized)

	// ErrAlreadyEnrolled is returned for a repeat purchase of the same course.
	ErrAlreadyEnrolled = errors.New("already enrolled")

	// ErrPaymentMismatch is returned when the tendered amount differs from the price.
	ErrPaymentMismatch = errors.New("payment mismatch")

	// ErrInsufficientFunds is returned when the payer cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSettlementFailed wraps any failure of the fund transfer inside a purchase.
	ErrSettlementFailed = errors.New("settlement failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InputError names the argument that violated a precondition.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// PaymentMismatchError reports the expected and tendered amounts.
type PaymentMismatchError struct {
	CourseID CourseID
	Expected Amount
	Tendered Amount
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment mismatch for course %s: expected %s %s, tendered %s",
		e.CourseID, e.Expected, NativeUnit, e.Tendered)
}

func (e *PaymentMismatchError) Unwrap() error { return ErrPaymentMismatch }

// InsufficientFundsError reports a balance shortage.
type InsufficientFundsError struct {
	Account   Identity
	Available Amount
	Required  Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %s has %s %s, needs %s",
		e.Account, e.Available, NativeUnit, e.Required)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// SettlementError wraps a settler failure. It matches both
// ErrSettlementFailed and the underlying cause.
type SettlementError struct {
	CourseID CourseID
	Err      error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement for course %s failed: %v", e.CourseID, e.Err)
}

func (e *SettlementError) Unwrap() []error { return []error{ErrSettlementFailed, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's request
// rather than a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrAlreadyEnrolled) ||
		errors.Is(err, ErrPaymentMismatch) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsNotFound returns true if the error indicates an unknown course.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
