/*
scheduler.go - Automated monthly debt generation

PURPOSE:
  Periodically invokes the reconciliation engine for the current billing
  period. Because generation is idempotent, the scheduler can tick far
  more often than once a month - every tick past the first for a given
  period produces a full skip report and writes nothing.

DESIGN:
  - Background goroutine with a configurable check interval
  - Runs once immediately on start
  - Records each run for audit and UI display
  - RunNow hook for admin/manual triggering

SEE ALSO:
  - billing/engine.go: The idempotent generation entry point
  - handlers.go: Manual trigger endpoint (POST /api/billing/generate)
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bilim/tuition-engine/billing"
	"github.com/bilim/tuition-engine/store/sqlite"
)

// GenerationScheduler drives automated monthly debt generation.
type GenerationScheduler struct {
	Store         *sqlite.Store
	Engine        *billing.Engine
	Clock         billing.Clock
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewGenerationScheduler creates a scheduler with a daily check interval.
func NewGenerationScheduler(store *sqlite.Store, engine *billing.Engine, clock billing.Clock, logger *slog.Logger) *GenerationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationScheduler{
		Store:         store,
		Engine:        engine,
		Clock:         clock,
		Logger:        logger,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (gs *GenerationScheduler) Start() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if !gs.Enabled {
		gs.Logger.Info("generation scheduler disabled, not starting")
		return
	}

	gs.ticker = time.NewTicker(gs.CheckInterval)
	gs.wg.Add(1)
	go gs.run()

	gs.Logger.Info("generation scheduler started", "interval", gs.CheckInterval.String())
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (gs *GenerationScheduler) Stop() {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.ticker != nil {
		gs.ticker.Stop()
		close(gs.stop)
		gs.wg.Wait()
		gs.Logger.Info("generation scheduler stopped")
	}
}

func (gs *GenerationScheduler) run() {
	defer gs.wg.Done()

	// Run immediately on start: if the process was down on the 1st of the
	// month, this catches the period up.
	gs.generate()

	for {
		select {
		case <-gs.ticker.C:
			gs.generate()
		case <-gs.stop:
			return
		}
	}
}

func (gs *GenerationScheduler) generate() {
	ctx := context.Background()
	period := gs.Clock.CurrentPeriod()

	report, err := gs.Engine.GenerateDebtsForPeriod(ctx, period)
	if err != nil {
		gs.Logger.Error("scheduled debt generation failed", "period", period.String(), "error", err)
		return
	}
	observeGeneration(report)

	run := sqlite.GenerationRun{
		ID:         uuid.NewString(),
		Period:     period.String(),
		Created:    report.Created(),
		Skipped:    report.Skipped(),
		Failed:     report.Failed(),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if err := gs.Store.SaveGenerationRun(ctx, run); err != nil {
		gs.Logger.Warn("failed to record generation run", "error", err)
	}

	if report.Failed() > 0 {
		for _, f := range report.Failures() {
			gs.Logger.Warn("student billing failed in scheduled run",
				"student", string(f.StudentID), "period", period.String(), "error", f.Err)
		}
	}
}

// RunNow triggers an immediate generation (for testing/admin).
func (gs *GenerationScheduler) RunNow() {
	gs.generate()
}
