/*
engine.go - Monthly debt generation

PURPOSE:
  The reconciliation engine walks the student registry once per billing
  period and, for every student with a resolvable billing group, creates
  the month's Debt, applies any pre-paid balance against it, and records a
  Payment for the applied portion.

IDEMPOTENCY:
  Safe to re-run for the same period. A fast-path DebtExists check skips
  already-billed students; the store's unique (student, month) constraint
  is the authoritative guard under concurrent runs. A rerun never
  re-debits a balance and never writes a second debt.

ATOMICITY:
  Each student's unit of work (read balance, settle, debit, write debt,
  write payment) runs inside one WithTx call. A failure rolls back that
  student only; the batch continues.

CONCURRENCY:
  Students are independent units of work, fanned out over a small worker
  pool. No cross-student coordination is needed.

SEE ALSO:
  - settle.go:  The pure settlement computation
  - report.go:  Per-student outcomes
  - store.go:   The gateway contract the engine relies on
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const defaultWorkers = 4

// Engine generates monthly debts. Construct with NewEngine.
type Engine struct {
	gateway TxGateway
	clock   Clock
	logger  *slog.Logger
	workers int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers sets the per-run worker pool size.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(gateway TxGateway, clock Clock, opts ...EngineOption) *Engine {
	e := &Engine{
		gateway: gateway,
		clock:   clock,
		logger:  slog.Default(),
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateDebtsForCurrentPeriod runs generation for the clock's current month.
func (e *Engine) GenerateDebtsForCurrentPeriod(ctx context.Context) (*Report, error) {
	return e.GenerateDebtsForPeriod(ctx, e.clock.CurrentPeriod())
}

// GenerateDebtsForPeriod creates one debt per enrolled student for the given
// period. It returns an error only when the student roster cannot be listed;
// per-student failures are collected in the report and never abort the batch.
func (e *Engine) GenerateDebtsForPeriod(ctx context.Context, period Period) (*Report, error) {
	started := e.clock.Now()

	ids, err := e.gateway.ListStudentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing students: %w", err)
	}

	results := make([]StudentResult, len(ids))
	jobs := make(chan int)

	workers := e.workers
	if workers > len(ids) {
		workers = len(ids)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.processStudent(ctx, period, ids[i])
			}
		}()
	}
	for i := range ids {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report := &Report{
		Period:     period,
		StartedAt:  started,
		FinishedAt: e.clock.Now(),
		Results:    results,
	}

	e.logger.Info("debt generation finished",
		"period", period.String(),
		"students", len(ids),
		"created", report.Created(),
		"skipped", report.Skipped(),
		"failed", report.Failed(),
	)
	return report, nil
}

// processStudent runs one student's unit of work. All outcomes, including
// failures, are returned as a StudentResult; nothing escapes to the batch.
func (e *Engine) processStudent(ctx context.Context, period Period, id StudentID) StudentResult {
	group, err := e.gateway.BillingGroupFor(ctx, id)
	if err != nil {
		return failed(id, fmt.Errorf("resolving billing group: %w", err))
	}
	if group == nil {
		return skipped(id, SkipNoBillingGroup)
	}

	// Fast path. The unique constraint inside the transaction is the
	// authoritative check.
	exists, err := e.gateway.DebtExists(ctx, id, period)
	if err != nil {
		return failed(id, fmt.Errorf("checking existing debt: %w", err))
	}
	if exists {
		return skipped(id, SkipAlreadyGenerated)
	}

	var debtID DebtID
	var paymentID PaymentID

	err = e.gateway.WithTx(ctx, func(g Gateway) error {
		student, err := g.GetStudent(ctx, id)
		if err != nil {
			return err
		}
		if student == nil {
			return ErrStudentNotFound
		}

		settlement, err := Settle(group.MonthlyFee, student.Balance)
		if err != nil {
			if errors.Is(err, ErrNegativeBalance) {
				return &NegativeBalanceError{StudentID: id, Balance: student.Balance}
			}
			return err
		}

		if settlement.PaidAmount.IsPositive() {
			if err := g.DebitBalance(ctx, id, settlement.PaidAmount); err != nil {
				return err
			}
		}

		debt := &Debt{
			ID:         NewDebtID(),
			StudentID:  id,
			GroupID:    group.GroupID,
			Month:      period,
			Amount:     settlement.Outstanding,
			PaidAmount: settlement.PaidAmount,
			IsPaid:     settlement.IsPaid,
			Status:     settlement.Status,
			CreatedAt:  e.clock.Now(),
		}
		if err := g.CreateDebt(ctx, debt); err != nil {
			return err
		}
		debtID = debt.ID

		if settlement.PaidAmount.IsPositive() {
			payment := &Payment{
				ID:        NewPaymentID(),
				StudentID: id,
				Amount:    settlement.PaidAmount,
				Date:      e.clock.Now(),
				Note:      "automatic debt settlement",
				Type:      PaymentTypeFor(settlement),
				DebtID:    &debt.ID,
				CreatedAt: e.clock.Now(),
			}
			if err := g.CreatePayment(ctx, payment); err != nil {
				return err
			}
			paymentID = payment.ID
		}
		return nil
	})

	if errors.Is(err, ErrAlreadyGenerated) {
		// Lost the race to a concurrent run. Nothing was written.
		return skipped(id, SkipAlreadyGenerated)
	}
	if err != nil {
		e.logger.Warn("student billing failed",
			"student", string(id), "period", period.String(), "error", err)
		return failed(id, err)
	}

	return StudentResult{
		StudentID: id,
		Outcome:   OutcomeCreated,
		DebtID:    debtID,
		PaymentID: paymentID,
	}
}

func skipped(id StudentID, reason SkipReason) StudentResult {
	return StudentResult{StudentID: id, Outcome: OutcomeSkipped, Reason: reason}
}

func failed(id StudentID, err error) StudentResult {
	return StudentResult{StudentID: id, Outcome: OutcomeFailed, Err: err}
}
