package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Calendar month, the unit over which one debt is generated
// =============================================================================

// Period identifies a billing month. Its textual form is "YYYY-MM", which
// sorts chronologically as a plain string.
type Period struct {
	Year  int
	Month time.Month
}

func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses the "YYYY-MM" form.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q (want YYYY-MM): %w", s, err)
	}
	return PeriodOf(t), nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

func (p Period) Next() Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return PeriodOf(t)
}

func (p Period) Previous() Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return PeriodOf(t)
}

func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Start returns midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock resolves the current billing period. Wall-clock time is never read
// directly by the engine so tests can pin the period.
type Clock interface {
	// CurrentPeriod returns the calendar month at invocation time.
	CurrentPeriod() Period

	// Now returns the current instant, used to timestamp payments.
	Now() time.Time
}

// SystemClock reads the process wall clock.
type SystemClock struct{}

func (SystemClock) CurrentPeriod() Period { return PeriodOf(time.Now()) }
func (SystemClock) Now() time.Time        { return time.Now().UTC() }

// FixedClock always reports the same period and instant. For tests.
type FixedClock struct {
	Period Period
	Time   time.Time
}

func (c FixedClock) CurrentPeriod() Period { return c.Period }
func (c FixedClock) Now() time.Time        { return c.Time }
