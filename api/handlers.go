/*
handlers.go - HTTP API handlers for the tuition administration backend

PURPOSE:
  Exposes the registry and billing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Registry:
    GET/POST       /api/teachers            List (search+page) / create
    PUT/DELETE     /api/teachers/{id}       Update / delete
    GET/POST       /api/students            List / create
    PUT/DELETE     /api/students/{id}       Update / delete
    GET/POST       /api/groups              List / create
    PUT/DELETE     /api/groups/{id}         Update / delete
    GET/POST       /api/enrollments         List / create
    DELETE         /api/enrollments/{id}    Delete

  Billing:
    GET            /api/debts               List debts (search+page)
    GET            /api/payments            List payments
    POST           /api/payments            Record a manual payment
    POST           /api/billing/generate    Run debt generation for a period
    GET            /api/billing/runs        Past generation runs
    GET            /api/dashboard           Summary counters

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: validation errors, invalid input
  - 404: resource not found
  - 409: conflict (debt already generated)
  - 500: internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Automated monthly generation
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bilim/tuition-engine/billing"
	"github.com/bilim/tuition-engine/store/sqlite"
)

const defaultPerPage = 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Engine   *billing.Engine
	Clock    billing.Clock
	Logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler creates a handler over the given store and engine.
func NewHandler(store *sqlite.Store, engine *billing.Engine, clock billing.Clock, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:    store,
		Engine:   engine,
		Clock:    clock,
		Logger:   logger,
		validate: validator.New(),
	}
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func listPageFrom(r *http.Request) sqlite.ListPage {
	page := sqlite.ListPage{
		Search:  r.URL.Query().Get("search"),
		Page:    1,
		PerPage: defaultPerPage,
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && v > 0 && v <= 100 {
		page.PerPage = v
	}
	return page
}

// =============================================================================
// TEACHER HANDLERS
// =============================================================================

func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	page := listPageFrom(r)
	teachers, total, err := h.Store.ListTeachers(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list teachers", err)
		return
	}

	items := make([]TeacherDTO, len(teachers))
	for i, t := range teachers {
		items[i] = toTeacherDTO(t)
	}
	writeJSON(w, http.StatusOK, listResponse[TeacherDTO]{
		Items:      items,
		Pagination: paginationFor(page, total),
		Search:     page.Search,
	})
}

func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req TeacherRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	t := billing.Teacher{
		ID:        billing.NewTeacherID(),
		FullName:  req.FullName,
		Phone:     req.Phone,
		CreatedAt: h.Clock.Now(),
	}
	if err := h.Store.SaveTeacher(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create teacher", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTeacherDTO(t))
}

func (h *Handler) UpdateTeacher(w http.ResponseWriter, r *http.Request) {
	id := billing.TeacherID(chi.URLParam(r, "id"))

	var req TeacherRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	existing, err := h.Store.GetTeacher(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get teacher", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Teacher not found", nil)
		return
	}

	existing.FullName = req.FullName
	existing.Phone = req.Phone
	if err := h.Store.SaveTeacher(r.Context(), *existing); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update teacher", err)
		return
	}
	writeJSON(w, http.StatusOK, toTeacherDTO(*existing))
}

func (h *Handler) DeleteTeacher(w http.ResponseWriter, r *http.Request) {
	id := billing.TeacherID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteTeacher(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete teacher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	page := listPageFrom(r)
	students, total, err := h.Store.ListStudents(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	items := make([]StudentDTO, len(students))
	for i, s := range students {
		items[i] = toStudentDTO(s)
	}
	writeJSON(w, http.StatusOK, listResponse[StudentDTO]{
		Items:      items,
		Pagination: paginationFor(page, total),
		Search:     page.Search,
	})
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	balance := decimal.Zero
	if req.Balance != "" {
		var err error
		balance, err = decimal.NewFromString(req.Balance)
		if err != nil || balance.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid balance", err)
			return
		}
	}

	st := billing.Student{
		ID:        billing.NewStudentID(),
		FullName:  req.FullName,
		Phone:     req.Phone,
		Balance:   balance.Round(2),
		CreatedAt: h.Clock.Now(),
	}
	if req.BirthDate != "" {
		t, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid birth_date format (use YYYY-MM-DD)", err)
			return
		}
		st.BirthDate = &t
	}

	if err := h.Store.SaveStudent(r.Context(), st); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create student", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(st))
}

func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id := billing.StudentID(chi.URLParam(r, "id"))

	var req StudentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	existing, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get student", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return
	}

	existing.FullName = req.FullName
	existing.Phone = req.Phone
	existing.BirthDate = nil
	if req.BirthDate != "" {
		t, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid birth_date format (use YYYY-MM-DD)", err)
			return
		}
		existing.BirthDate = &t
	}

	// Balance is deliberately not writable here: it belongs to the
	// reconciliation engine and payment recording.
	if err := h.Store.SaveStudent(r.Context(), *existing); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update student", err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(*existing))
}

func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := billing.StudentID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteStudent(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete student", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	page := listPageFrom(r)
	groups, total, err := h.Store.ListGroups(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}

	items := make([]GroupDTO, len(groups))
	for i, g := range groups {
		items[i] = toGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, listResponse[GroupDTO]{
		Items:      items,
		Pagination: paginationFor(page, total),
		Search:     page.Search,
	})
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	fee, err := decimal.NewFromString(req.MonthlyFee)
	if err != nil || fee.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid monthly_fee", err)
		return
	}

	g := billing.Group{
		ID:         billing.NewGroupID(),
		Name:       req.Name,
		TeacherID:  billing.TeacherID(req.TeacherID),
		MonthlyFee: fee.Round(2),
		Time:       req.Time,
		CreatedAt:  h.Clock.Now(),
	}
	if req.StartDate != "" {
		t, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
			return
		}
		g.StartDate = &t
	}

	if err := h.Store.SaveGroup(r.Context(), g); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g))
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id := billing.GroupID(chi.URLParam(r, "id"))

	var req GroupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	existing, err := h.Store.GetGroup(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get group", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return
	}

	fee, err := decimal.NewFromString(req.MonthlyFee)
	if err != nil || fee.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid monthly_fee", err)
		return
	}

	// Fee changes apply to future generation runs only; existing debts
	// keep the fee they were created with.
	existing.Name = req.Name
	existing.TeacherID = billing.TeacherID(req.TeacherID)
	existing.MonthlyFee = fee.Round(2)
	existing.Time = req.Time
	if err := h.Store.SaveGroup(r.Context(), *existing); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update group", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(*existing))
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := billing.GroupID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteGroup(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ENROLLMENT HANDLERS
// =============================================================================

func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	page := listPageFrom(r)
	rows, total, err := h.Store.ListEnrollments(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list enrollments", err)
		return
	}

	items := make([]EnrollmentDTO, len(rows))
	for i, row := range rows {
		items[i] = EnrollmentDTO{
			ID:          string(row.Enrollment.ID),
			StudentID:   string(row.Enrollment.StudentID),
			StudentName: row.StudentName,
			GroupID:     string(row.Enrollment.GroupID),
			GroupName:   row.GroupName,
			CreatedAt:   row.Enrollment.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, listResponse[EnrollmentDTO]{
		Items:      items,
		Pagination: paginationFor(page, total),
		Search:     page.Search,
	})
}

func (h *Handler) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req EnrollmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	student, err := h.Store.GetStudent(r.Context(), billing.StudentID(req.StudentID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get student", err)
		return
	}
	if student == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return
	}
	group, err := h.Store.GetGroup(r.Context(), billing.GroupID(req.GroupID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get group", err)
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return
	}

	e := billing.Enrollment{
		ID:        billing.NewEnrollmentID(),
		GroupID:   group.ID,
		StudentID: student.ID,
		CreatedAt: h.Clock.Now(),
	}
	if err := h.Store.SaveEnrollment(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create enrollment", err)
		return
	}
	writeJSON(w, http.StatusCreated, EnrollmentDTO{
		ID:          string(e.ID),
		StudentID:   string(e.StudentID),
		StudentName: student.FullName,
		GroupID:     string(e.GroupID),
		GroupName:   group.Name,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) DeleteEnrollment(w http.ResponseWriter, r *http.Request) {
	id := billing.EnrollmentID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteEnrollment(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete enrollment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DEBT / PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListDebts(w http.ResponseWriter, r *http.Request) {
	page := listPageFrom(r)
	rows, total, err := h.Store.ListDebts(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list debts", err)
		return
	}

	items := make([]DebtDTO, len(rows))
	for i, row := range rows {
		items[i] = toDebtDTO(row)
	}
	writeJSON(w, http.StatusOK, listResponse[DebtDTO]{
		Items:      items,
		Pagination: paginationFor(page, total),
		Search:     page.Search,
	})
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	page := listPageFrom(r)
	rows, total, err := h.Store.ListPayments(r.Context(), page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	items := make([]PaymentDTO, len(rows))
	for i, row := range rows {
		items[i] = toPaymentDTO(row.Payment, row.StudentName)
	}
	writeJSON(w, http.StatusOK, listResponse[PaymentDTO]{
		Items:      items,
		Pagination: paginationFor(page, total),
		Search:     page.Search,
	})
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	in := billing.PaymentInput{
		StudentID: billing.StudentID(req.StudentID),
		Amount:    amount.Round(2),
		Note:      req.Note,
	}
	if req.DebtID != "" {
		id := billing.DebtID(req.DebtID)
		in.DebtID = &id
	}

	payment, err := billing.RecordPayment(r.Context(), h.Store, h.Clock, in)
	switch {
	case errors.Is(err, billing.ErrInvalidPaymentAmount):
		writeError(w, http.StatusBadRequest, "Payment amount must be positive", err)
		return
	case errors.Is(err, billing.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, "Student not found", err)
		return
	case errors.Is(err, billing.ErrDebtNotFound):
		writeError(w, http.StatusNotFound, "Debt not found", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to record payment", err)
		return
	}

	paymentsRecorded.Inc()
	writeJSON(w, http.StatusCreated, toPaymentDTO(*payment, ""))
}

// =============================================================================
// BILLING HANDLERS
// =============================================================================

// GenerateDebts triggers debt generation for a period (default: current month).
// POST /api/billing/generate
func (h *Handler) GenerateDebts(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if r.ContentLength > 0 {
		if !h.decodeAndValidate(w, r, &req) {
			return
		}
	}

	period := h.Clock.CurrentPeriod()
	if req.Period != "" {
		var err error
		period, err = billing.ParsePeriod(req.Period)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
	}

	report, err := h.Engine.GenerateDebtsForPeriod(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Debt generation failed", err)
		return
	}
	h.recordRun(r, report)

	writeJSON(w, http.StatusOK, toReportDTO(report))
}

func (h *Handler) recordRun(r *http.Request, report *billing.Report) {
	observeGeneration(report)
	run := sqlite.GenerationRun{
		ID:         uuid.NewString(),
		Period:     report.Period.String(),
		Created:    report.Created(),
		Skipped:    report.Skipped(),
		Failed:     report.Failed(),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if err := h.Store.SaveGenerationRun(r.Context(), run); err != nil {
		h.Logger.Warn("failed to record generation run", "error", err)
	}
}

// ListGenerationRuns returns past generation batches, newest first.
// GET /api/billing/runs
func (h *Handler) ListGenerationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	runs, err := h.Store.ListGenerationRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list generation runs", err)
		return
	}

	dtos := make([]GenerationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = GenerationRunDTO{
			ID:         run.ID,
			Period:     run.Period,
			Created:    run.Created,
			Skipped:    run.Skipped,
			Failed:     run.Failed,
			StartedAt:  run.StartedAt.Format(time.RFC3339),
			FinishedAt: run.FinishedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Dashboard returns the admin landing summary.
// GET /api/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Store.Dashboard(r.Context(), h.Clock.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		StudentCount:  sum.StudentCount,
		TeacherCount:  sum.TeacherCount,
		GroupCount:    sum.GroupCount,
		TodaysRevenue: sum.TodaysRevenue.StringFixed(2),
		TotalDebt:     sum.TotalDebt.StringFixed(2),
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
