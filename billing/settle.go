/*
settle.go - Balance-against-fee settlement computation

PURPOSE:
  Pure computation at the heart of debt generation: given a monthly fee and
  a student's pre-paid balance, decide how much of the fee the balance
  covers and what remains outstanding.

THE THREE BRANCHES:
  balance >= fee      paid = fee,     outstanding = 0,             status = paid
  0 < balance < fee   paid = balance, outstanding = fee - balance, status = partial
  balance == 0        paid = 0,       outstanding = fee,           status = unpaid

INVARIANT:
  PaidAmount + Outstanding == fee, always. Neither is ever negative.

SEE ALSO:
  - engine.go: Applies the settlement inside a storage transaction
*/
package billing

import "github.com/shopspring/decimal"

// Settlement is the outcome of applying a balance against one month's fee.
type Settlement struct {
	PaidAmount  decimal.Decimal
	Outstanding decimal.Decimal
	Status      DebtStatus
	IsPaid      bool
}

// Settle computes the settlement for one student for one period.
// Both inputs must be non-negative; violations are contract faults.
func Settle(fee, balance decimal.Decimal) (Settlement, error) {
	if fee.IsNegative() {
		return Settlement{}, ErrNegativeFee
	}
	if balance.IsNegative() {
		return Settlement{}, &NegativeBalanceError{Balance: balance}
	}

	switch {
	case balance.GreaterThanOrEqual(fee):
		return Settlement{
			PaidAmount:  fee,
			Outstanding: decimal.Zero,
			Status:      DebtPaid,
			IsPaid:      true,
		}, nil

	case balance.IsPositive():
		return Settlement{
			PaidAmount:  balance,
			Outstanding: fee.Sub(balance),
			Status:      DebtPartial,
			IsPaid:      false,
		}, nil

	default: // balance == 0
		return Settlement{
			PaidAmount:  decimal.Zero,
			Outstanding: fee,
			Status:      DebtUnpaid,
			IsPaid:      false,
		}, nil
	}
}

// PaymentTypeFor returns the ledger entry type for an automatic settlement:
// "balance" when the fee was covered in full, "debt" when only partially.
func PaymentTypeFor(s Settlement) PaymentType {
	if s.IsPaid {
		return PaymentBalance
	}
	return PaymentDebt
}
