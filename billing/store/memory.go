// Package store provides an in-memory billing.TxGateway for tests and dev.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bilim/tuition-engine/billing"
)

// =============================================================================
// MEMORY GATEWAY - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.Mutex

	students    map[billing.StudentID]*billing.Student
	groups      map[billing.GroupID]*billing.Group
	enrollments []*billing.Enrollment
	debts       map[billing.DebtID]*billing.Debt
	debtIndex   map[debtKey]billing.DebtID
	payments    []*billing.Payment

	// Preserves registry insertion order so runs are deterministic.
	studentOrder []billing.StudentID
}

type debtKey struct {
	StudentID billing.StudentID
	Month     string
}

func NewMemory() *Memory {
	return &Memory{
		students:  make(map[billing.StudentID]*billing.Student),
		groups:    make(map[billing.GroupID]*billing.Group),
		debts:     make(map[billing.DebtID]*billing.Debt),
		debtIndex: make(map[debtKey]billing.DebtID),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) PutStudent(s billing.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.ID]; !ok {
		m.studentOrder = append(m.studentOrder, s.ID)
	}
	cp := s
	m.students[s.ID] = &cp
}

func (m *Memory) PutGroup(g billing.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := g
	m.groups[g.ID] = &cp
}

func (m *Memory) PutEnrollment(e billing.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := e
	m.enrollments = append(m.enrollments, &cp)
}

// Payments returns a copy of the payment ledger, in append order.
func (m *Memory) Payments() []billing.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]billing.Payment, len(m.payments))
	for i, p := range m.payments {
		out[i] = *p
	}
	return out
}

// Debts returns a copy of all debts.
func (m *Memory) Debts() []billing.Debt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []billing.Debt
	for _, d := range m.debts {
		out = append(out, *d)
	}
	return out
}

// =============================================================================
// GATEWAY
// =============================================================================

func (m *Memory) ListStudentIDs(_ context.Context) ([]billing.StudentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]billing.StudentID, len(m.studentOrder))
	copy(out, m.studentOrder)
	return out, nil
}

func (m *Memory) GetStudent(_ context.Context, id billing.StudentID) (*billing.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getStudentLocked(id), nil
}

func (m *Memory) getStudentLocked(id billing.StudentID) *billing.Student {
	s, ok := m.students[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (m *Memory) BillingGroupFor(_ context.Context, id billing.StudentID) (*billing.BillingGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.billingGroupLocked(id), nil
}

func (m *Memory) billingGroupLocked(id billing.StudentID) *billing.BillingGroup {
	// Most recent enrollment wins; later insertion breaks CreatedAt ties.
	var latest *billing.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID != id {
			continue
		}
		if latest == nil || !e.CreatedAt.Before(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil
	}
	g, ok := m.groups[latest.GroupID]
	if !ok {
		return nil
	}
	return &billing.BillingGroup{GroupID: g.ID, MonthlyFee: g.MonthlyFee}
}

func (m *Memory) DebitBalance(_ context.Context, id billing.StudentID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debitLocked(id, amount)
}

func (m *Memory) debitLocked(id billing.StudentID, amount decimal.Decimal) error {
	s, ok := m.students[id]
	if !ok {
		return billing.ErrStudentNotFound
	}
	if s.Balance.IsNegative() {
		return &billing.NegativeBalanceError{StudentID: id, Balance: s.Balance}
	}
	if amount.GreaterThan(s.Balance) {
		return &billing.InsufficientBalanceError{StudentID: id, Available: s.Balance, Requested: amount}
	}
	s.Balance = s.Balance.Sub(amount)
	return nil
}

func (m *Memory) CreditBalance(_ context.Context, id billing.StudentID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(id, amount)
}

func (m *Memory) creditLocked(id billing.StudentID, amount decimal.Decimal) error {
	s, ok := m.students[id]
	if !ok {
		return billing.ErrStudentNotFound
	}
	s.Balance = s.Balance.Add(amount)
	return nil
}

func (m *Memory) DebtExists(_ context.Context, id billing.StudentID, period billing.Period) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.debtIndex[debtKey{StudentID: id, Month: period.String()}]
	return ok, nil
}

func (m *Memory) GetDebt(_ context.Context, id billing.DebtID) (*billing.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debts[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) CreateDebt(_ context.Context, d *billing.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createDebtLocked(d)
}

func (m *Memory) createDebtLocked(d *billing.Debt) error {
	k := debtKey{StudentID: d.StudentID, Month: d.Month.String()}
	if _, ok := m.debtIndex[k]; ok {
		return billing.ErrAlreadyGenerated
	}
	cp := *d
	m.debts[d.ID] = &cp
	m.debtIndex[k] = d.ID
	return nil
}

func (m *Memory) UpdateDebtSettlement(_ context.Context, d *billing.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateDebtLocked(d)
}

func (m *Memory) updateDebtLocked(d *billing.Debt) error {
	existing, ok := m.debts[d.ID]
	if !ok {
		return billing.ErrDebtNotFound
	}
	existing.Amount = d.Amount
	existing.PaidAmount = d.PaidAmount
	existing.IsPaid = d.IsPaid
	existing.Status = d.Status
	return nil
}

func (m *Memory) CreatePayment(_ context.Context, p *billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPaymentLocked(p)
}

func (m *Memory) createPaymentLocked(p *billing.Payment) error {
	cp := *p
	m.payments = append(m.payments, &cp)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx simulates a transaction with a snapshot + rollback on error. The
// gateway lock is held for the whole call, which also serializes concurrent
// per-student units of work the way a database would.
func (m *Memory) WithTx(_ context.Context, fn func(billing.Gateway) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked()
	if err := fn(&txView{parent: m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	students  map[billing.StudentID]*billing.Student
	debts     map[billing.DebtID]*billing.Debt
	debtIndex map[debtKey]billing.DebtID
	payments  []*billing.Payment
}

func (m *Memory) snapshotLocked() memorySnapshot {
	students := make(map[billing.StudentID]*billing.Student, len(m.students))
	for k, v := range m.students {
		cp := *v
		students[k] = &cp
	}
	debts := make(map[billing.DebtID]*billing.Debt, len(m.debts))
	for k, v := range m.debts {
		cp := *v
		debts[k] = &cp
	}
	index := make(map[debtKey]billing.DebtID, len(m.debtIndex))
	for k, v := range m.debtIndex {
		index[k] = v
	}
	payments := make([]*billing.Payment, len(m.payments))
	copy(payments, m.payments)
	return memorySnapshot{students: students, debts: debts, debtIndex: index, payments: payments}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.students = s.students
	m.debts = s.debts
	m.debtIndex = s.debtIndex
	m.payments = s.payments
}

// txView exposes the locked parent as a billing.Gateway inside WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) ListStudentIDs(_ context.Context) ([]billing.StudentID, error) {
	out := make([]billing.StudentID, len(tv.parent.studentOrder))
	copy(out, tv.parent.studentOrder)
	return out, nil
}

func (tv *txView) GetStudent(_ context.Context, id billing.StudentID) (*billing.Student, error) {
	return tv.parent.getStudentLocked(id), nil
}

func (tv *txView) BillingGroupFor(_ context.Context, id billing.StudentID) (*billing.BillingGroup, error) {
	return tv.parent.billingGroupLocked(id), nil
}

func (tv *txView) DebitBalance(_ context.Context, id billing.StudentID, amount decimal.Decimal) error {
	return tv.parent.debitLocked(id, amount)
}

func (tv *txView) CreditBalance(_ context.Context, id billing.StudentID, amount decimal.Decimal) error {
	return tv.parent.creditLocked(id, amount)
}

func (tv *txView) DebtExists(_ context.Context, id billing.StudentID, period billing.Period) (bool, error) {
	_, ok := tv.parent.debtIndex[debtKey{StudentID: id, Month: period.String()}]
	return ok, nil
}

func (tv *txView) GetDebt(_ context.Context, id billing.DebtID) (*billing.Debt, error) {
	d, ok := tv.parent.debts[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (tv *txView) CreateDebt(_ context.Context, d *billing.Debt) error {
	return tv.parent.createDebtLocked(d)
}

func (tv *txView) UpdateDebtSettlement(_ context.Context, d *billing.Debt) error {
	return tv.parent.updateDebtLocked(d)
}

func (tv *txView) CreatePayment(_ context.Context, p *billing.Payment) error {
	return tv.parent.createPaymentLocked(p)
}

// NewEnrollmentAt is a convenience for tests seeding ordered enrollments.
func NewEnrollmentAt(studentID billing.StudentID, groupID billing.GroupID, at time.Time) billing.Enrollment {
	return billing.Enrollment{
		ID:        billing.NewEnrollmentID(),
		GroupID:   groupID,
		StudentID: studentID,
		CreatedAt: at,
	}
}
