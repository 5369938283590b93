package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilim/tuition-engine/billing"
	"github.com/bilim/tuition-engine/billing/store"
)

func TestRecordPayment_BalanceTopUp(t *testing.T) {
	// GIVEN: a student with 10000 on the balance
	mem := store.NewMemory()
	id := billing.NewStudentID()
	mem.PutStudent(billing.Student{ID: id, FullName: "Aziza", Balance: money("10000")})

	// WHEN: recording a payment with no debt reference
	p, err := billing.RecordPayment(context.Background(), mem, testClock(), billing.PaymentInput{
		StudentID: id,
		Amount:    money("50000"),
		Note:      "cash at front desk",
	})
	require.NoError(t, err)

	// THEN: the whole amount becomes pre-paid credit
	assert.Equal(t, billing.PaymentBalance, p.Type)
	assert.Nil(t, p.DebtID)
	assert.True(t, mustStudent(t, mem, id).Balance.Equal(money("60000")))

	payments := mem.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "cash at front desk", payments[0].Note)
}

func TestRecordPayment_PaysDownDebt(t *testing.T) {
	// GIVEN: an unpaid 150000 debt from a generation run
	mem := store.NewMemory()
	group := billing.Group{ID: billing.NewGroupID(), Name: "Math A", MonthlyFee: money("150000")}
	mem.PutGroup(group)
	id := seedEnrolled(mem, group, "Comil", "0")

	engine := billing.NewEngine(mem, testClock())
	report, err := engine.GenerateDebtsForPeriod(context.Background(), testPeriod)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created())
	debtID := debtsByStudent(mem)[id].ID

	// WHEN: paying 60000 against it
	p, err := billing.RecordPayment(context.Background(), mem, testClock(), billing.PaymentInput{
		StudentID: id,
		Amount:    money("60000"),
		DebtID:    &debtID,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentDebt, p.Type)

	// THEN: the debt shrinks, status moves to partial, balance untouched
	d := debtsByStudent(mem)[id]
	assert.True(t, d.Amount.Equal(money("90000")))
	assert.True(t, d.PaidAmount.Equal(money("60000")))
	assert.Equal(t, billing.DebtPartial, d.Status)
	assert.False(t, d.IsPaid)
	assert.True(t, mustStudent(t, mem, id).Balance.IsZero())
}

func TestRecordPayment_OverpaymentSpillsToBalance(t *testing.T) {
	mem := store.NewMemory()
	group := billing.Group{ID: billing.NewGroupID(), Name: "Math A", MonthlyFee: money("150000")}
	mem.PutGroup(group)
	id := seedEnrolled(mem, group, "Comil", "0")

	engine := billing.NewEngine(mem, testClock())
	_, err := engine.GenerateDebtsForPeriod(context.Background(), testPeriod)
	require.NoError(t, err)
	debtID := debtsByStudent(mem)[id].ID

	// WHEN: paying 200000 against a 150000 debt
	_, err = billing.RecordPayment(context.Background(), mem, testClock(), billing.PaymentInput{
		StudentID: id,
		Amount:    money("200000"),
		DebtID:    &debtID,
	})
	require.NoError(t, err)

	// THEN: the debt closes and the 50000 remainder is credited
	d := debtsByStudent(mem)[id]
	assert.True(t, d.Amount.IsZero())
	assert.Equal(t, billing.DebtPaid, d.Status)
	assert.True(t, d.IsPaid)
	assert.True(t, mustStudent(t, mem, id).Balance.Equal(money("50000")))
}

func TestRecordPayment_RejectsNonPositiveAmount(t *testing.T) {
	mem := store.NewMemory()
	id := billing.NewStudentID()
	mem.PutStudent(billing.Student{ID: id, Balance: decimal.Zero})

	for _, amount := range []string{"0", "-100"} {
		_, err := billing.RecordPayment(context.Background(), mem, testClock(), billing.PaymentInput{
			StudentID: id,
			Amount:    money(amount),
		})
		assert.True(t, errors.Is(err, billing.ErrInvalidPaymentAmount), "amount %s", amount)
	}
	assert.Empty(t, mem.Payments())
}

func TestRecordPayment_UnknownStudent(t *testing.T) {
	mem := store.NewMemory()

	_, err := billing.RecordPayment(context.Background(), mem, testClock(), billing.PaymentInput{
		StudentID: billing.NewStudentID(),
		Amount:    money("100"),
	})
	assert.True(t, errors.Is(err, billing.ErrStudentNotFound))
}

func TestRecordPayment_DebtOwnershipEnforced(t *testing.T) {
	// A payment must not be applied to another student's debt.
	mem := store.NewMemory()
	group := billing.Group{ID: billing.NewGroupID(), Name: "Math A", MonthlyFee: money("150000")}
	mem.PutGroup(group)
	debtor := seedEnrolled(mem, group, "Comil", "0")

	other := billing.NewStudentID()
	mem.PutStudent(billing.Student{ID: other, FullName: "Davron", Balance: decimal.Zero})

	engine := billing.NewEngine(mem, testClock())
	_, err := engine.GenerateDebtsForPeriod(context.Background(), testPeriod)
	require.NoError(t, err)
	debtID := debtsByStudent(mem)[debtor].ID

	_, err = billing.RecordPayment(context.Background(), mem, testClock(), billing.PaymentInput{
		StudentID: other,
		Amount:    money("60000"),
		DebtID:    &debtID,
	})
	require.Error(t, err)

	// Rolled back: the debt and both balances are untouched.
	d := debtsByStudent(mem)[debtor]
	assert.True(t, d.Amount.Equal(money("150000")))
	assert.True(t, mustStudent(t, mem, other).Balance.IsZero())
	assert.Len(t, mem.Payments(), 0)
}
