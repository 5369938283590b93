/*
Package billing provides the tuition billing core.

PURPOSE:
  This package contains the domain types and algorithms for monthly tuition
  billing: student balances, group fees, per-period debt generation, and the
  payment ledger that records every settlement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Student/Teacher/Group/Enrollment: registry records
  - Debt: the obligation for one student for one billing period
  - Payment: an append-only ledger entry recording money applied
  - Typed IDs: prevent mixing student/group/debt identifiers

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float
  2. Immutability: payments are never modified once written
  3. Single writer: Debt settlement fields and Student.Balance are only
     mutated by the reconciliation engine and by payment recording

SEE ALSO:
  - settle.go:  The settlement computation
  - engine.go:  Per-period debt generation
  - store.go:   Persistence interfaces
*/
package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	StudentID    string
	TeacherID    string
	GroupID      string
	EnrollmentID string
	DebtID       string
	PaymentID    string
)

func NewStudentID() StudentID       { return StudentID(uuid.NewString()) }
func NewTeacherID() TeacherID       { return TeacherID(uuid.NewString()) }
func NewGroupID() GroupID           { return GroupID(uuid.NewString()) }
func NewEnrollmentID() EnrollmentID { return EnrollmentID(uuid.NewString()) }
func NewDebtID() DebtID             { return DebtID(uuid.NewString()) }
func NewPaymentID() PaymentID       { return PaymentID(uuid.NewString()) }

// =============================================================================
// MONEY
// =============================================================================

// Money values are decimal.Decimal with 2-digit precision. Comparisons use
// exact decimal ordering, never floating-point approximation.

// MustMoney parses a decimal string, returning zero on failure.
// Intended for literals in tests and seed data.
func MustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// =============================================================================
// REGISTRY RECORDS
// =============================================================================

// Student is a tuition-center student. Balance is pre-paid credit
// (credit-positive) that the engine applies against monthly fees.
type Student struct {
	ID        StudentID
	FullName  string
	Phone     string
	BirthDate *time.Time
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Teacher leads one or more groups.
type Teacher struct {
	ID        TeacherID
	FullName  string
	Phone     string
	CreatedAt time.Time
}

// Group is a class with a monthly fee. The fee is authoritative for the
// period it is read in; changing it does not retroactively alter debts.
type Group struct {
	ID         GroupID
	Name       string
	TeacherID  TeacherID
	MonthlyFee decimal.Decimal
	StartDate  *time.Time
	Time       string // schedule label, e.g. "18:00-19:30"
	CreatedAt  time.Time
}

// Enrollment links a student to a group. A student may hold several
// enrollments; billing resolves to the most recently created one.
type Enrollment struct {
	ID        EnrollmentID
	GroupID   GroupID
	StudentID StudentID
	CreatedAt time.Time
}

// BillingGroup is the resolved (group, fee) pair used for one generation run.
type BillingGroup struct {
	GroupID    GroupID
	MonthlyFee decimal.Decimal
}

// =============================================================================
// DEBT - One obligation per student per billing period
// =============================================================================

type DebtStatus string

const (
	DebtUnpaid  DebtStatus = "unpaid"
	DebtPartial DebtStatus = "partial"
	DebtPaid    DebtStatus = "paid"
)

// Debt records the obligation for one student for one month.
//
// INVARIANTS:
//   - Amount and PaidAmount are non-negative
//   - Amount + PaidAmount == the group's monthly fee at creation time
//   - Exactly one Debt per (student, month), enforced by the store
type Debt struct {
	ID         DebtID
	StudentID  StudentID
	GroupID    GroupID
	Month      Period
	Amount     decimal.Decimal // outstanding
	PaidAmount decimal.Decimal
	IsPaid     bool
	Status     DebtStatus
	CreatedAt  time.Time
}

// StatusFor derives the debt status from settled amounts.
func StatusFor(outstanding, paid decimal.Decimal) DebtStatus {
	switch {
	case outstanding.IsZero():
		return DebtPaid
	case paid.IsPositive():
		return DebtPartial
	default:
		return DebtUnpaid
	}
}

// =============================================================================
// PAYMENT - Append-only ledger entry
// =============================================================================

type PaymentType string

const (
	// PaymentDebt is money applied against an outstanding debt.
	PaymentDebt PaymentType = "debt"
	// PaymentBalance is money that settled a fee in full from balance,
	// or a manual balance top-up.
	PaymentBalance PaymentType = "balance"
)

// Payment is immutable once written. Corrections are new payments, not edits.
type Payment struct {
	ID        PaymentID
	StudentID StudentID
	Amount    decimal.Decimal // always positive
	Date      time.Time
	Note      string
	Type      PaymentType
	DebtID    *DebtID
	CreatedAt time.Time
}
