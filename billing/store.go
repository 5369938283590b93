/*
store.go - Persistence interfaces for the billing core

PURPOSE:
  Defines the interface between the billing logic and the database. The
  surrounding application supplies an implementation; the engine never
  touches SQL directly.

KEY INTERFACES:
  Gateway:   Everything the engine reads and writes during one run
  TxGateway: Gateway plus atomic per-student transactions

ATOMICITY CONTRACT:
  One student's unit of work (read balance, debit, write debt, write
  payment) executes inside a single WithTx call. If any write fails the
  whole unit rolls back and the student's state is untouched.

UNIQUENESS CONTRACT:
  CreateDebt must enforce one debt per (student, month) and return
  ErrAlreadyGenerated on violation. The engine's DebtExists pre-check is a
  fast-path optimization only; the constraint is authoritative under
  concurrent runs.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - billing/store: in-memory store for tests
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GATEWAY - Reads and writes used by the engine
// =============================================================================

// Gateway bundles the repositories the reconciliation engine depends on.
type Gateway interface {
	// ListStudentIDs returns every student in the registry.
	ListStudentIDs(ctx context.Context) ([]StudentID, error)

	// GetStudent returns the student or (nil, nil) when missing.
	// Balance reflects the latest committed value.
	GetStudent(ctx context.Context, id StudentID) (*Student, error)

	// BillingGroupFor resolves the student's billing group, or (nil, nil)
	// when the student has no enrollment. With multiple enrollments the
	// most recently created one wins.
	BillingGroupFor(ctx context.Context, id StudentID) (*BillingGroup, error)

	// DebitBalance atomically decreases the balance. Fails with
	// ErrInsufficientBalance when amount exceeds the stored balance and
	// with ErrNegativeBalance when the stored balance is already negative.
	DebitBalance(ctx context.Context, id StudentID, amount decimal.Decimal) error

	// CreditBalance atomically increases the balance.
	CreditBalance(ctx context.Context, id StudentID, amount decimal.Decimal) error

	// DebtExists reports whether a debt exists for (student, period).
	DebtExists(ctx context.Context, id StudentID, period Period) (bool, error)

	// GetDebt returns the debt or (nil, nil) when missing.
	GetDebt(ctx context.Context, id DebtID) (*Debt, error)

	// CreateDebt persists a new debt. Returns ErrAlreadyGenerated when a
	// debt for (student, month) already exists.
	CreateDebt(ctx context.Context, d *Debt) error

	// UpdateDebtSettlement rewrites Amount/PaidAmount/IsPaid/Status after a
	// manual payment. All other fields are immutable.
	UpdateDebtSettlement(ctx context.Context, d *Debt) error

	// CreatePayment appends a payment. Payments are never updated or deleted.
	CreatePayment(ctx context.Context, p *Payment) error
}

// =============================================================================
// TRANSACTIONAL GATEWAY
// =============================================================================

// TxGateway adds atomic multi-write transactions to Gateway.
type TxGateway interface {
	Gateway

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Gateway) error) error
}
