/*
errors.go - Centralized error types for the billing core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations map database-level failures (e.g. unique
  constraint violations) onto these errors so the engine never inspects
  driver errors directly.

ERROR CATEGORIES:
  1. Skip conditions - expected, no state change (no group, already billed)
  2. Contract faults - must never occur given a correct engine
  3. Store errors - persistence-level failures

USAGE:
  if errors.Is(err, billing.ErrAlreadyGenerated) {
      // reported as a skip, not a failure
  }
*/
package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoBillingGroup is returned when a student has no enrollment.
	// The student is skipped; no debt is generated.
	ErrNoBillingGroup = errors.New("student has no billing group")

	// ErrAlreadyGenerated is returned when a debt already exists for the
	// (student, period) pair. Expected on reruns; reported as a skip.
	ErrAlreadyGenerated = errors.New("debt already generated for period")

	// ErrInsufficientBalance is returned when a debit exceeds the current
	// balance. The engine never requests such a debit; triggering this is
	// a programming-contract fault, not a user-facing condition.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNegativeBalance is returned when a stored balance is negative on
	// entry to settlement. Balances are validated at the ledger boundary
	// rather than silently producing negative outstanding amounts.
	ErrNegativeBalance = errors.New("negative balance")

	// ErrNegativeFee is returned when a group's monthly fee is negative.
	ErrNegativeFee = errors.New("negative monthly fee")

	// ErrInvalidPaymentAmount is returned when recording a non-positive payment.
	ErrInvalidPaymentAmount = errors.New("payment amount must be positive")

	// ErrStudentNotFound is returned when a referenced student doesn't exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrDebtNotFound is returned when a referenced debt doesn't exist.
	ErrDebtNotFound = errors.New("debt not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a debit that exceeds the stored balance.
type InsufficientBalanceError struct {
	StudentID StudentID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for student %s: available %s, requested %s",
		e.StudentID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NegativeBalanceError reports a corrupt (negative) stored balance.
type NegativeBalanceError struct {
	StudentID StudentID
	Balance   decimal.Decimal
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("student %s has negative balance %s", e.StudentID, e.Balance)
}

func (e *NegativeBalanceError) Unwrap() error { return ErrNegativeBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsSkip reports whether err is an expected skip condition rather than a
// failure. Skips leave no state behind.
func IsSkip(err error) bool {
	return errors.Is(err, ErrNoBillingGroup) || errors.Is(err, ErrAlreadyGenerated)
}

// IsContractFault reports whether err indicates a bug in the engine or
// corrupt stored state, as opposed to an infrastructure failure.
func IsContractFault(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrNegativeBalance)
}
