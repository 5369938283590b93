/*
payments.go - Manual payment recording

PURPOSE:
  Handles money arriving outside a generation run: paying down an existing
  debt, or topping up a student's pre-paid balance. This is the only other
  writer of Student.Balance besides the engine.

TWO SHAPES:
  - DebtID set:   the amount pays down that debt's outstanding portion;
                  anything beyond it is credited to the balance.
  - DebtID unset: the whole amount is credited to the balance and will be
                  consumed by the next generation run.
*/
package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// PaymentInput describes a manual payment to record.
type PaymentInput struct {
	StudentID StudentID
	Amount    decimal.Decimal
	Note      string
	DebtID    *DebtID
}

// RecordPayment applies a manual payment atomically and appends the ledger
// entry. Returns the created payment.
func RecordPayment(ctx context.Context, gw TxGateway, clock Clock, in PaymentInput) (*Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidPaymentAmount
	}

	payment := &Payment{
		ID:        NewPaymentID(),
		StudentID: in.StudentID,
		Amount:    in.Amount,
		Date:      clock.Now(),
		Note:      in.Note,
		Type:      PaymentBalance,
		DebtID:    in.DebtID,
		CreatedAt: clock.Now(),
	}

	err := gw.WithTx(ctx, func(g Gateway) error {
		student, err := g.GetStudent(ctx, in.StudentID)
		if err != nil {
			return err
		}
		if student == nil {
			return ErrStudentNotFound
		}

		remainder := in.Amount

		if in.DebtID != nil {
			debt, err := g.GetDebt(ctx, *in.DebtID)
			if err != nil {
				return err
			}
			if debt == nil {
				return ErrDebtNotFound
			}
			if debt.StudentID != in.StudentID {
				return fmt.Errorf("debt %s does not belong to student %s", debt.ID, in.StudentID)
			}

			applied := decimal.Min(remainder, debt.Amount)
			if applied.IsPositive() {
				debt.Amount = debt.Amount.Sub(applied)
				debt.PaidAmount = debt.PaidAmount.Add(applied)
				debt.Status = StatusFor(debt.Amount, debt.PaidAmount)
				debt.IsPaid = debt.Status == DebtPaid
				if err := g.UpdateDebtSettlement(ctx, debt); err != nil {
					return err
				}
				payment.Type = PaymentDebt
				remainder = remainder.Sub(applied)
			}
		}

		// Whatever was not absorbed by a debt becomes pre-paid credit.
		if remainder.IsPositive() {
			if err := g.CreditBalance(ctx, in.StudentID, remainder); err != nil {
				return err
			}
		}

		return g.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}
