package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilim/tuition-engine/api"
	"github.com/bilim/tuition-engine/billing"
	"github.com/bilim/tuition-engine/store/sqlite"
)

// =============================================================================
// FIXTURE
// =============================================================================

var testPeriod = billing.NewPeriod(2026, time.September)

func testClock() billing.FixedClock {
	return billing.FixedClock{
		Period: testPeriod,
		Time:   time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC),
	}
}

type testAPI struct {
	router http.Handler
	store  *sqlite.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := testClock()
	engine := billing.NewEngine(store, clock)
	h := api.NewHandler(store, engine, clock, nil)
	return &testAPI{router: api.NewRouter(h), store: store}
}

// do sends a JSON request through the router and returns the recorder.
func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

// listBody mirrors the paginated list envelope.
type listBody[T any] struct {
	Items      []T               `json:"items"`
	Pagination api.PaginationDTO `json:"pagination"`
	Search     string            `json:"search"`
}

func (a *testAPI) createTeacher(t *testing.T, name string) api.TeacherDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/teachers", map[string]string{
		"full_name": name, "phone": "+998901234567",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.TeacherDTO](t, rec)
}

func (a *testAPI) createGroup(t *testing.T, teacherID, name, fee string) api.GroupDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/groups", map[string]string{
		"name": name, "teacher_id": teacherID, "monthly_fee": fee, "time": "18:00-19:30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.GroupDTO](t, rec)
}

func (a *testAPI) createStudent(t *testing.T, name, balance string) api.StudentDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/students", map[string]string{
		"full_name": name, "phone": "+998909998877", "balance": balance,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.StudentDTO](t, rec)
}

func (a *testAPI) enroll(t *testing.T, studentID, groupID string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/enrollments", map[string]string{
		"student_id": studentID, "group_id": groupID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// REGISTRY ENDPOINTS
// =============================================================================

func TestAPI_TeacherLifecycle(t *testing.T) {
	a := newTestAPI(t)

	created := a.createTeacher(t, "Dilnoza Karimova")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Dilnoza Karimova", created.FullName)

	rec := a.do(t, http.MethodPut, "/api/teachers/"+created.ID, map[string]string{
		"full_name": "Dilnoza K.", "phone": "+998900000000",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dilnoza K.", decode[api.TeacherDTO](t, rec).FullName)

	rec = a.do(t, http.MethodGet, "/api/teachers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listBody[api.TeacherDTO]](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Pagination.Total)

	rec = a.do(t, http.MethodDelete, "/api/teachers/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/teachers", nil)
	assert.Empty(t, decode[listBody[api.TeacherDTO]](t, rec).Items)
}

func TestAPI_UpdateMissingTeacher(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPut, "/api/teachers/nope", map[string]string{
		"full_name": "Ghost", "phone": "+998900000000",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CreateStudentValidation(t *testing.T) {
	a := newTestAPI(t)

	// Missing required fields.
	rec := a.do(t, http.MethodPost, "/api/students", map[string]string{"full_name": "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Negative starting balance.
	rec = a.do(t, http.MethodPost, "/api/students", map[string]string{
		"full_name": "Aziza", "phone": "+998901112233", "balance": "-100",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed birth date.
	rec = a.do(t, http.MethodPost, "/api/students", map[string]string{
		"full_name": "Aziza", "phone": "+998901112233", "birth_date": "15.03.2010",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UpdateStudentKeepsBalance(t *testing.T) {
	a := newTestAPI(t)

	st := a.createStudent(t, "Aziza", "150000")
	assert.Equal(t, "150000.00", st.Balance)

	rec := a.do(t, http.MethodPut, "/api/students/"+st.ID, map[string]string{
		"full_name": "Aziza K.", "phone": "+998909998877", "balance": "0",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[api.StudentDTO](t, rec)
	assert.Equal(t, "Aziza K.", updated.FullName)
	assert.Equal(t, "150000.00", updated.Balance, "balance is not writable through the registry")
}

func TestAPI_EnrollmentRequiresExistingRecords(t *testing.T) {
	a := newTestAPI(t)

	teacher := a.createTeacher(t, "Dilnoza")
	group := a.createGroup(t, teacher.ID, "Math A", "150000")
	st := a.createStudent(t, "Aziza", "0")

	rec := a.do(t, http.MethodPost, "/api/enrollments", map[string]string{
		"student_id": "missing", "group_id": group.ID,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/enrollments", map[string]string{
		"student_id": st.ID, "group_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	a.enroll(t, st.ID, group.ID)

	rec = a.do(t, http.MethodGet, "/api/enrollments", nil)
	list := decode[listBody[api.EnrollmentDTO]](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Aziza", list.Items[0].StudentName)
	assert.Equal(t, "Math A", list.Items[0].GroupName)
}

// =============================================================================
// BILLING ENDPOINTS
// =============================================================================

func TestAPI_GenerateDebtsFlow(t *testing.T) {
	a := newTestAPI(t)

	teacher := a.createTeacher(t, "Dilnoza")
	group := a.createGroup(t, teacher.ID, "Math A", "150000")

	full := a.createStudent(t, "Aziza", "200000")
	partial := a.createStudent(t, "Bobur", "60000")
	broke := a.createStudent(t, "Kamola", "0")
	for _, st := range []api.StudentDTO{full, partial, broke} {
		a.enroll(t, st.ID, group.ID)
	}

	// WHEN: generating for the clock's current month
	rec := a.do(t, http.MethodPost, "/api/billing/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[api.GenerationReportDTO](t, rec)

	assert.Equal(t, testPeriod.String(), report.Period)
	assert.Equal(t, 3, report.Created)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Results, 3)

	// Debt listing reflects the three settlement outcomes.
	rec = a.do(t, http.MethodGet, "/api/debts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	debts := decode[listBody[api.DebtDTO]](t, rec)
	require.Len(t, debts.Items, 3)

	byStudent := make(map[string]api.DebtDTO)
	for _, d := range debts.Items {
		byStudent[d.StudentID] = d
	}
	assert.Equal(t, "paid", byStudent[full.ID].Status)
	assert.Equal(t, "0.00", byStudent[full.ID].Amount)
	assert.Equal(t, "partial", byStudent[partial.ID].Status)
	assert.Equal(t, "90000.00", byStudent[partial.ID].Amount)
	assert.Equal(t, "unpaid", byStudent[broke.ID].Status)
	assert.Equal(t, "150000.00", byStudent[broke.ID].Amount)

	// Settlement payments for the two students whose balance moved.
	rec = a.do(t, http.MethodGet, "/api/payments", nil)
	payments := decode[listBody[api.PaymentDTO]](t, rec)
	require.Len(t, payments.Items, 2)
	for _, p := range payments.Items {
		assert.NotEmpty(t, p.DebtID)
	}

	// Rerun: nothing new, everything skipped.
	rec = a.do(t, http.MethodPost, "/api/billing/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rerun := decode[api.GenerationReportDTO](t, rec)
	assert.Equal(t, 0, rerun.Created)
	assert.Equal(t, 3, rerun.Skipped)

	// Both runs were audited.
	rec = a.do(t, http.MethodGet, "/api/billing/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]api.GenerationRunDTO](t, rec)
	require.Len(t, runs, 2)
	assert.Equal(t, testPeriod.String(), runs[0].Period)
}

func TestAPI_GenerateDebtsExplicitPeriod(t *testing.T) {
	a := newTestAPI(t)

	teacher := a.createTeacher(t, "Dilnoza")
	group := a.createGroup(t, teacher.ID, "Math A", "150000")
	st := a.createStudent(t, "Aziza", "400000")
	a.enroll(t, st.ID, group.ID)

	rec := a.do(t, http.MethodPost, "/api/billing/generate", map[string]string{"period": "2026-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[api.GenerationReportDTO](t, rec)
	assert.Equal(t, "2026-10", report.Period)
	assert.Equal(t, 1, report.Created)

	rec = a.do(t, http.MethodPost, "/api/billing/generate", map[string]string{"period": "26-10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RecordPayment(t *testing.T) {
	a := newTestAPI(t)

	st := a.createStudent(t, "Aziza", "0")

	rec := a.do(t, http.MethodPost, "/api/payments", map[string]string{
		"student_id": st.ID, "amount": "75000", "note": "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[api.PaymentDTO](t, rec)
	assert.Equal(t, "75000.00", p.Amount)
	assert.Equal(t, "balance", p.Type)

	// The student's pre-paid credit grew.
	rec = a.do(t, http.MethodGet, "/api/students", nil)
	students := decode[listBody[api.StudentDTO]](t, rec)
	require.Len(t, students.Items, 1)
	assert.Equal(t, "75000.00", students.Items[0].Balance)
}

func TestAPI_RecordPaymentErrors(t *testing.T) {
	a := newTestAPI(t)
	st := a.createStudent(t, "Aziza", "0")

	rec := a.do(t, http.MethodPost, "/api/payments", map[string]string{
		"student_id": "missing", "amount": "100",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/payments", map[string]string{
		"student_id": st.ID, "amount": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/payments", map[string]string{
		"student_id": st.ID, "amount": "not-a-number",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/payments", map[string]string{
		"student_id": st.ID, "amount": "100", "debt_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_PayDownGeneratedDebt(t *testing.T) {
	a := newTestAPI(t)

	teacher := a.createTeacher(t, "Dilnoza")
	group := a.createGroup(t, teacher.ID, "Math A", "150000")
	st := a.createStudent(t, "Kamola", "0")
	a.enroll(t, st.ID, group.ID)

	rec := a.do(t, http.MethodPost, "/api/billing/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/debts", nil)
	debts := decode[listBody[api.DebtDTO]](t, rec)
	require.Len(t, debts.Items, 1)
	debtID := debts.Items[0].ID

	rec = a.do(t, http.MethodPost, "/api/payments", map[string]string{
		"student_id": st.ID, "amount": "150000", "debt_id": debtID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "debt", decode[api.PaymentDTO](t, rec).Type)

	rec = a.do(t, http.MethodGet, "/api/debts", nil)
	debts = decode[listBody[api.DebtDTO]](t, rec)
	require.Len(t, debts.Items, 1)
	assert.Equal(t, "paid", debts.Items[0].Status)
	assert.True(t, debts.Items[0].IsPaid)
	assert.Equal(t, "0.00", debts.Items[0].Amount)
}

// =============================================================================
// DASHBOARD & SEED
// =============================================================================

func TestAPI_Dashboard(t *testing.T) {
	a := newTestAPI(t)

	teacher := a.createTeacher(t, "Dilnoza")
	group := a.createGroup(t, teacher.ID, "Math A", "150000")
	full := a.createStudent(t, "Aziza", "200000")
	broke := a.createStudent(t, "Kamola", "0")
	a.enroll(t, full.ID, group.ID)
	a.enroll(t, broke.ID, group.ID)

	rec := a.do(t, http.MethodPost, "/api/billing/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[api.DashboardDTO](t, rec)

	assert.Equal(t, 2, dash.StudentCount)
	assert.Equal(t, 1, dash.TeacherCount)
	assert.Equal(t, 1, dash.GroupCount)
	assert.Equal(t, "150000.00", dash.TodaysRevenue)
	assert.Equal(t, "150000.00", dash.TotalDebt)
}

func TestAPI_SeedThenGenerate(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/seed", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/api/billing/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[api.GenerationReportDTO](t, rec)
	assert.Equal(t, 4, report.Created)
	assert.Equal(t, 0, report.Failed)
}

func TestAPI_MetricsExposed(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
