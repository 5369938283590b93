package billing

import "time"

// =============================================================================
// GENERATION REPORT - Per-student outcomes of one run
// =============================================================================

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type SkipReason string

const (
	SkipNoBillingGroup   SkipReason = "no_billing_group"
	SkipAlreadyGenerated SkipReason = "already_generated"
)

// StudentResult is the outcome of one student's unit of work.
type StudentResult struct {
	StudentID StudentID
	Outcome   Outcome

	// Set when Outcome == OutcomeCreated. PaymentID is empty when no
	// balance was applied.
	DebtID    DebtID
	PaymentID PaymentID

	// Set when Outcome == OutcomeSkipped.
	Reason SkipReason

	// Set when Outcome == OutcomeFailed.
	Err error
}

// Report summarizes one GenerateDebtsForPeriod run. Failures are local to
// individual students; the caller decides whether a non-empty failed list
// warrants alerting.
type Report struct {
	Period      Period
	StartedAt   time.Time
	FinishedAt  time.Time
	Results     []StudentResult
}

func (r *Report) count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

func (r *Report) Created() int { return r.count(OutcomeCreated) }
func (r *Report) Skipped() int { return r.count(OutcomeSkipped) }
func (r *Report) Failed() int  { return r.count(OutcomeFailed) }

// Failures returns the failed results only.
func (r *Report) Failures() []StudentResult {
	var out []StudentResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}
