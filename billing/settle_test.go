package billing_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilim/tuition-engine/billing"
)

func money(s string) decimal.Decimal {
	return billing.MustMoney(s)
}

func TestSettle_FullCoverage(t *testing.T) {
	// GIVEN: fee 150000, balance 200000
	// THEN: fee fully paid from balance, nothing outstanding

	s, err := billing.Settle(money("150000"), money("200000"))
	require.NoError(t, err)

	assert.True(t, s.PaidAmount.Equal(money("150000")), "paid amount should equal fee")
	assert.True(t, s.Outstanding.IsZero(), "nothing should remain outstanding")
	assert.Equal(t, billing.DebtPaid, s.Status)
	assert.True(t, s.IsPaid)
	assert.Equal(t, billing.PaymentBalance, billing.PaymentTypeFor(s))
}

func TestSettle_PartialCoverage(t *testing.T) {
	// GIVEN: fee 150000, balance 60000
	// THEN: balance fully consumed, 90000 outstanding

	s, err := billing.Settle(money("150000"), money("60000"))
	require.NoError(t, err)

	assert.True(t, s.PaidAmount.Equal(money("60000")))
	assert.True(t, s.Outstanding.Equal(money("90000")))
	assert.Equal(t, billing.DebtPartial, s.Status)
	assert.False(t, s.IsPaid)
	assert.Equal(t, billing.PaymentDebt, billing.PaymentTypeFor(s))
}

func TestSettle_NoBalance(t *testing.T) {
	// GIVEN: fee 150000, balance 0
	// THEN: whole fee outstanding, nothing paid

	s, err := billing.Settle(money("150000"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, s.PaidAmount.IsZero())
	assert.True(t, s.Outstanding.Equal(money("150000")))
	assert.Equal(t, billing.DebtUnpaid, s.Status)
	assert.False(t, s.IsPaid)
}

func TestSettle_ExactBalance(t *testing.T) {
	// Boundary: balance == fee counts as full coverage.
	s, err := billing.Settle(money("150000"), money("150000"))
	require.NoError(t, err)

	assert.True(t, s.PaidAmount.Equal(money("150000")))
	assert.True(t, s.Outstanding.IsZero())
	assert.True(t, s.IsPaid)
}

func TestSettle_ZeroFee(t *testing.T) {
	// A zero-fee group produces a paid debt with no money moving.
	s, err := billing.Settle(decimal.Zero, money("50000"))
	require.NoError(t, err)

	assert.True(t, s.PaidAmount.IsZero())
	assert.True(t, s.Outstanding.IsZero())
	assert.Equal(t, billing.DebtPaid, s.Status)
}

func TestSettle_InvariantPaidPlusOutstandingEqualsFee(t *testing.T) {
	cases := []struct{ fee, balance string }{
		{"150000", "200000"},
		{"150000", "150000"},
		{"150000", "60000"},
		{"150000", "0.01"},
		{"150000", "0"},
		{"99.99", "33.33"},
		{"0", "0"},
	}
	for _, tc := range cases {
		s, err := billing.Settle(money(tc.fee), money(tc.balance))
		require.NoError(t, err, "fee=%s balance=%s", tc.fee, tc.balance)

		sum := s.PaidAmount.Add(s.Outstanding)
		assert.True(t, sum.Equal(money(tc.fee)),
			"fee=%s balance=%s: paid %s + outstanding %s != fee", tc.fee, tc.balance, s.PaidAmount, s.Outstanding)
		assert.False(t, s.PaidAmount.IsNegative())
		assert.False(t, s.Outstanding.IsNegative())
	}
}

func TestSettle_NegativeBalanceRejected(t *testing.T) {
	_, err := billing.Settle(money("150000"), money("-1"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, billing.ErrNegativeBalance))
}

func TestSettle_NegativeFeeRejected(t *testing.T) {
	_, err := billing.Settle(money("-150000"), money("0"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, billing.ErrNegativeFee))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, billing.DebtPaid, billing.StatusFor(decimal.Zero, money("100")))
	assert.Equal(t, billing.DebtPaid, billing.StatusFor(decimal.Zero, decimal.Zero))
	assert.Equal(t, billing.DebtPartial, billing.StatusFor(money("50"), money("50")))
	assert.Equal(t, billing.DebtUnpaid, billing.StatusFor(money("100"), decimal.Zero))
}
