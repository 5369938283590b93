package api_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilim/tuition-engine/api"
	"github.com/bilim/tuition-engine/billing"
	"github.com/bilim/tuition-engine/store/sqlite"
)

func newTestScheduler(t *testing.T) (*api.GenerationScheduler, *testAPI) {
	t.Helper()
	a := newTestAPI(t)
	clock := testClock()
	engine := billing.NewEngine(a.store, clock)
	return api.NewGenerationScheduler(a.store, engine, clock, nil), a
}

func TestScheduler_RunNowGeneratesAndAudits(t *testing.T) {
	sched, a := newTestScheduler(t)

	teacher := a.createTeacher(t, "Dilnoza")
	group := a.createGroup(t, teacher.ID, "Math A", "150000")
	st := a.createStudent(t, "Aziza", "200000")
	a.enroll(t, st.ID, group.ID)

	sched.RunNow()

	rec := a.do(t, http.MethodGet, "/api/debts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	debts := decode[listBody[api.DebtDTO]](t, rec)
	require.Len(t, debts.Items, 1)
	assert.Equal(t, testPeriod.String(), debts.Items[0].Month)

	runs := listRuns(t, a)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Created)

	// A second tick is a no-op thanks to idempotent generation.
	sched.RunNow()

	rec = a.do(t, http.MethodGet, "/api/debts", nil)
	debts = decode[listBody[api.DebtDTO]](t, rec)
	assert.Len(t, debts.Items, 1)

	runs = listRuns(t, a)
	require.Len(t, runs, 2)
}

func TestScheduler_StartStop(t *testing.T) {
	sched, a := newTestScheduler(t)

	a.createStudent(t, "Aziza", "0")

	sched.CheckInterval = time.Hour
	sched.Start()
	sched.Stop()

	// The immediate startup run was recorded before Stop returned.
	runs := listRuns(t, a)
	assert.Len(t, runs, 1)
}

func TestScheduler_DisabledDoesNothing(t *testing.T) {
	sched, a := newTestScheduler(t)

	sched.Enabled = false
	sched.Start()
	sched.Stop()

	assert.Empty(t, listRuns(t, a))
}

func listRuns(t *testing.T, a *testAPI) []sqlite.GenerationRun {
	t.Helper()
	runs, err := a.store.ListGenerationRuns(context.Background(), 10)
	require.NoError(t, err)
	return runs
}
