/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract. Money travels as decimal strings so clients never
  see floating-point artifacts.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Request types carry validator/v10 struct tags; handlers run them through
  the shared validator before touching the store.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/bilim/tuition-engine/billing"
	"github.com/bilim/tuition-engine/store/sqlite"
)

// =============================================================================
// PAGINATION
// =============================================================================

// PaginationDTO mirrors the admin UI's page controls.
type PaginationDTO struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	Total       int `json:"total"`
	PerPage     int `json:"per_page"`
}

func paginationFor(page sqlite.ListPage, total int) PaginationDTO {
	pages := total / page.PerPage
	if total%page.PerPage != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}
	return PaginationDTO{
		CurrentPage: page.Page,
		TotalPages:  pages,
		Total:       total,
		PerPage:     page.PerPage,
	}
}

type listResponse[T any] struct {
	Items      []T           `json:"items"`
	Pagination PaginationDTO `json:"pagination"`
	Search     string        `json:"search"`
}

// =============================================================================
// REGISTRY TYPES
// =============================================================================

type TeacherDTO struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
}

func toTeacherDTO(t billing.Teacher) TeacherDTO {
	return TeacherDTO{
		ID:        string(t.ID),
		FullName:  t.FullName,
		Phone:     t.Phone,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

type TeacherRequest struct {
	FullName string `json:"full_name" validate:"required,min=2"`
	Phone    string `json:"phone" validate:"required"`
}

type StudentDTO struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date,omitempty"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"created_at"`
}

func toStudentDTO(s billing.Student) StudentDTO {
	dto := StudentDTO{
		ID:        string(s.ID),
		FullName:  s.FullName,
		Phone:     s.Phone,
		Balance:   s.Balance.StringFixed(2),
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
	if s.BirthDate != nil {
		dto.BirthDate = s.BirthDate.Format("2006-01-02")
	}
	return dto
}

type StudentRequest struct {
	FullName  string `json:"full_name" validate:"required,min=2"`
	Phone     string `json:"phone" validate:"required"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	// Initial balance; only honored on create.
	Balance string `json:"balance" validate:"omitempty"`
}

type GroupDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TeacherID  string `json:"teacher_id"`
	MonthlyFee string `json:"monthly_fee"`
	StartDate  string `json:"start_date,omitempty"`
	Time       string `json:"time"`
	CreatedAt  string `json:"created_at"`
}

func toGroupDTO(g billing.Group) GroupDTO {
	dto := GroupDTO{
		ID:         string(g.ID),
		Name:       g.Name,
		TeacherID:  string(g.TeacherID),
		MonthlyFee: g.MonthlyFee.StringFixed(2),
		Time:       g.Time,
		CreatedAt:  g.CreatedAt.Format(time.RFC3339),
	}
	if g.StartDate != nil {
		dto.StartDate = g.StartDate.Format("2006-01-02")
	}
	return dto
}

type GroupRequest struct {
	Name       string `json:"name" validate:"required,min=2"`
	TeacherID  string `json:"teacher_id" validate:"required"`
	MonthlyFee string `json:"monthly_fee" validate:"required"`
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Time       string `json:"time" validate:"omitempty"`
}

type EnrollmentDTO struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	GroupID     string `json:"group_id"`
	GroupName   string `json:"group_name"`
	CreatedAt   string `json:"created_at"`
}

type EnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	GroupID   string `json:"group_id" validate:"required"`
}

// =============================================================================
// DEBT / PAYMENT TYPES
// =============================================================================

type DebtDTO struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	GroupID     string `json:"group_id"`
	GroupName   string `json:"group_name"`
	Month       string `json:"month"`
	Amount      string `json:"amount"`
	PaidAmount  string `json:"paid_amount"`
	IsPaid      bool   `json:"is_paid"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

func toDebtDTO(row sqlite.DebtRow) DebtDTO {
	d := row.Debt
	return DebtDTO{
		ID:          string(d.ID),
		StudentID:   string(d.StudentID),
		StudentName: row.StudentName,
		GroupID:     string(d.GroupID),
		GroupName:   row.GroupName,
		Month:       d.Month.String(),
		Amount:      d.Amount.StringFixed(2),
		PaidAmount:  d.PaidAmount.StringFixed(2),
		IsPaid:      d.IsPaid,
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
	}
}

type PaymentDTO struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name,omitempty"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Note        string `json:"note,omitempty"`
	Type        string `json:"type"`
	DebtID      string `json:"debt_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toPaymentDTO(p billing.Payment, studentName string) PaymentDTO {
	dto := PaymentDTO{
		ID:          string(p.ID),
		StudentID:   string(p.StudentID),
		StudentName: studentName,
		Amount:      p.Amount.StringFixed(2),
		Date:        p.Date.Format(time.RFC3339),
		Note:        p.Note,
		Type:        string(p.Type),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.DebtID != nil {
		dto.DebtID = string(*p.DebtID)
	}
	return dto
}

type RecordPaymentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Note      string `json:"note" validate:"omitempty,max=500"`
	DebtID    string `json:"debt_id" validate:"omitempty"`
}

// =============================================================================
// GENERATION TYPES
// =============================================================================

type GenerateRequest struct {
	// Period in YYYY-MM form. Empty means the current month.
	Period string `json:"period" validate:"omitempty,len=7"`
}

type GenerationResultDTO struct {
	StudentID string `json:"student_id"`
	Outcome   string `json:"outcome"`
	DebtID    string `json:"debt_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

type GenerationReportDTO struct {
	Period   string                `json:"period"`
	Created  int                   `json:"created"`
	Skipped  int                   `json:"skipped"`
	Failed   int                   `json:"failed"`
	Results  []GenerationResultDTO `json:"results"`
	Started  string                `json:"started_at"`
	Finished string                `json:"finished_at"`
}

func toReportDTO(r *billing.Report) GenerationReportDTO {
	dto := GenerationReportDTO{
		Period:   r.Period.String(),
		Created:  r.Created(),
		Skipped:  r.Skipped(),
		Failed:   r.Failed(),
		Started:  r.StartedAt.Format(time.RFC3339),
		Finished: r.FinishedAt.Format(time.RFC3339),
		Results:  make([]GenerationResultDTO, len(r.Results)),
	}
	for i, res := range r.Results {
		rd := GenerationResultDTO{
			StudentID: string(res.StudentID),
			Outcome:   string(res.Outcome),
			DebtID:    string(res.DebtID),
			PaymentID: string(res.PaymentID),
			Reason:    string(res.Reason),
		}
		if res.Err != nil {
			rd.Error = res.Err.Error()
		}
		dto.Results[i] = rd
	}
	return dto
}

type GenerationRunDTO struct {
	ID         string `json:"id"`
	Period     string `json:"period"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// =============================================================================
// DASHBOARD
// =============================================================================

type DashboardDTO struct {
	StudentCount  int    `json:"student_count"`
	TeacherCount  int    `json:"teacher_count"`
	GroupCount    int    `json:"group_count"`
	TodaysRevenue string `json:"todays_revenue"`
	TotalDebt     string `json:"total_debt"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
