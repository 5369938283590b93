/*
registry.go - CRUD and listing queries for the admin API

PURPOSE:
  Persistence for the registry screens: teachers, students, groups,
  enrollments, plus the read models for debt/payment listings, the
  dashboard summary, and generation-run audit records.

SEARCH & PAGINATION:
  Listings take a free-text search (matched case-insensitively against
  names/phones) and a page/perPage pair, returning the page plus the total
  row count so callers can render page controls.

SEE ALSO:
  - sqlite.go: Schema and the billing gateway
  - api/handlers.go: The HTTP surface over these queries
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bilim/tuition-engine/billing"
)

// ListPage bounds a paginated query.
type ListPage struct {
	Search  string
	Page    int
	PerPage int
}

func (p ListPage) normalize() ListPage {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	return p
}

func (p ListPage) offset() int { return (p.Page - 1) * p.PerPage }

func likePattern(search string) string {
	return "%" + strings.ToLower(search) + "%"
}

// =============================================================================
// TEACHERS
// =============================================================================

func (s *Store) SaveTeacher(ctx context.Context, t billing.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teachers (id, full_name, phone, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			phone = excluded.phone
	`, string(t.ID), t.FullName, t.Phone, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save teacher: %w", err)
	}
	return nil
}

func (s *Store) GetTeacher(ctx context.Context, id billing.TeacherID) (*billing.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t billing.Teacher
	var tid, createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, full_name, phone, created_at FROM teachers WHERE id = ?",
		string(id),
	).Scan(&tid, &t.FullName, &t.Phone, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.ID = billing.TeacherID(tid)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func (s *Store) ListTeachers(ctx context.Context, page ListPage) ([]billing.Teacher, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = page.normalize()

	where := ""
	args := []any{}
	if page.Search != "" {
		where = "WHERE LOWER(full_name) LIKE ? OR LOWER(phone) LIKE ?"
		args = append(args, likePattern(page.Search), likePattern(page.Search))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM teachers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, full_name, phone, created_at FROM teachers "+where+
			" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, page.PerPage, page.offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var teachers []billing.Teacher
	for rows.Next() {
		var t billing.Teacher
		var id, createdAt string
		if err := rows.Scan(&id, &t.FullName, &t.Phone, &createdAt); err != nil {
			return nil, 0, err
		}
		t.ID = billing.TeacherID(id)
		t.CreatedAt = parseTime(createdAt)
		teachers = append(teachers, t)
	}
	return teachers, total, rows.Err()
}

func (s *Store) DeleteTeacher(ctx context.Context, id billing.TeacherID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM teachers WHERE id = ?", string(id))
	return err
}

// =============================================================================
// STUDENTS
// =============================================================================

func (s *Store) SaveStudent(ctx context.Context, st billing.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var birthDate sql.NullString
	if st.BirthDate != nil {
		birthDate = sql.NullString{String: st.BirthDate.Format("2006-01-02"), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, full_name, phone, birth_date, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			phone = excluded.phone,
			birth_date = excluded.birth_date
	`, string(st.ID), st.FullName, st.Phone, birthDate, st.Balance.String(), formatTime(st.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

func (s *Store) ListStudents(ctx context.Context, page ListPage) ([]billing.Student, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = page.normalize()

	where := ""
	args := []any{}
	if page.Search != "" {
		where = "WHERE LOWER(full_name) LIKE ? OR LOWER(phone) LIKE ?"
		args = append(args, likePattern(page.Search), likePattern(page.Search))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM students "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, full_name, phone, birth_date, balance, created_at FROM students "+where+
			" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, page.PerPage, page.offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var students []billing.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, 0, err
		}
		students = append(students, *st)
	}
	return students, total, rows.Err()
}

func (s *Store) DeleteStudent(ctx context.Context, id billing.StudentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", string(id))
	return err
}

// =============================================================================
// GROUPS
// =============================================================================

func (s *Store) SaveGroup(ctx context.Context, g billing.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var startDate sql.NullString
	if g.StartDate != nil {
		startDate = sql.NullString{String: g.StartDate.Format("2006-01-02"), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name, teacher_id, monthly_fee, start_date, time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			teacher_id = excluded.teacher_id,
			monthly_fee = excluded.monthly_fee,
			start_date = excluded.start_date,
			time = excluded.time
	`, string(g.ID), g.Name, string(g.TeacherID), g.MonthlyFee.String(), startDate, g.Time, formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id billing.GroupID) (*billing.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, teacher_id, monthly_fee, start_date, time, created_at FROM groups WHERE id = ?",
		string(id))
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func scanGroup(r rowScanner) (*billing.Group, error) {
	var g billing.Group
	var id, teacherID, fee, createdAt string
	var startDate sql.NullString

	if err := r.Scan(&id, &g.Name, &teacherID, &fee, &startDate, &g.Time, &createdAt); err != nil {
		return nil, err
	}
	g.ID = billing.GroupID(id)
	g.TeacherID = billing.TeacherID(teacherID)
	g.MonthlyFee = parseMoney(fee)
	g.CreatedAt = parseTime(createdAt)
	if startDate.Valid && startDate.String != "" {
		if t, err := time.Parse("2006-01-02", startDate.String); err == nil {
			g.StartDate = &t
		}
	}
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context, page ListPage) ([]billing.Group, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = page.normalize()

	where := ""
	args := []any{}
	if page.Search != "" {
		where = "WHERE LOWER(name) LIKE ?"
		args = append(args, likePattern(page.Search))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM groups "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, teacher_id, monthly_fee, start_date, time, created_at FROM groups "+where+
			" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, page.PerPage, page.offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var groups []billing.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		groups = append(groups, *g)
	}
	return groups, total, rows.Err()
}

func (s *Store) DeleteGroup(ctx context.Context, id billing.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", string(id))
	return err
}

// =============================================================================
// ENROLLMENTS
// =============================================================================

func (s *Store) SaveEnrollment(ctx context.Context, e billing.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_student (id, group_id, student_id, created_at)
		VALUES (?, ?, ?, ?)
	`, string(e.ID), string(e.GroupID), string(e.StudentID), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}
	return nil
}

// EnrollmentRow is an enrollment joined with its student and group names.
type EnrollmentRow struct {
	Enrollment  billing.Enrollment
	StudentName string
	GroupName   string
}

func (s *Store) ListEnrollments(ctx context.Context, page ListPage) ([]EnrollmentRow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = page.normalize()

	where := ""
	args := []any{}
	if page.Search != "" {
		where = "WHERE LOWER(st.full_name) LIKE ? OR LOWER(g.name) LIKE ?"
		args = append(args, likePattern(page.Search), likePattern(page.Search))
	}

	base := `
		FROM group_student gs
		JOIN students st ON st.id = gs.student_id
		JOIN groups g ON g.id = gs.group_id
	` + where

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) "+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT gs.id, gs.group_id, gs.student_id, gs.created_at, st.full_name, g.name `+base+`
		ORDER BY gs.created_at DESC LIMIT ? OFFSET ?`,
		append(args, page.PerPage, page.offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []EnrollmentRow
	for rows.Next() {
		var row EnrollmentRow
		var id, groupID, studentID, createdAt string
		if err := rows.Scan(&id, &groupID, &studentID, &createdAt, &row.StudentName, &row.GroupName); err != nil {
			return nil, 0, err
		}
		row.Enrollment = billing.Enrollment{
			ID:        billing.EnrollmentID(id),
			GroupID:   billing.GroupID(groupID),
			StudentID: billing.StudentID(studentID),
			CreatedAt: parseTime(createdAt),
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

func (s *Store) DeleteEnrollment(ctx context.Context, id billing.EnrollmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM group_student WHERE id = ?", string(id))
	return err
}

// =============================================================================
// DEBT / PAYMENT LISTINGS
// =============================================================================

// DebtRow is a debt joined with its student and group names.
type DebtRow struct {
	Debt        billing.Debt
	StudentName string
	GroupName   string
}

func (s *Store) ListDebts(ctx context.Context, page ListPage) ([]DebtRow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = page.normalize()

	where := ""
	args := []any{}
	if page.Search != "" {
		where = "WHERE LOWER(st.full_name) LIKE ? OR LOWER(g.name) LIKE ?"
		args = append(args, likePattern(page.Search), likePattern(page.Search))
	}

	base := `
		FROM debts d
		JOIN students st ON st.id = d.student_id
		JOIN groups g ON g.id = d.group_id
	` + where

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) "+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.student_id, d.group_id, d.month, d.amount, d.paid_amount,
		       d.is_paid, d.status, d.created_at, st.full_name, g.name `+base+`
		ORDER BY d.created_at DESC LIMIT ? OFFSET ?`,
		append(args, page.PerPage, page.offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []DebtRow
	for rows.Next() {
		var row DebtRow
		var id, studentID, groupID, month, amount, paidAmount, status, createdAt string
		var isPaid bool
		if err := rows.Scan(&id, &studentID, &groupID, &month, &amount, &paidAmount,
			&isPaid, &status, &createdAt, &row.StudentName, &row.GroupName); err != nil {
			return nil, 0, err
		}
		period, err := billing.ParsePeriod(month)
		if err != nil {
			return nil, 0, err
		}
		row.Debt = billing.Debt{
			ID:         billing.DebtID(id),
			StudentID:  billing.StudentID(studentID),
			GroupID:    billing.GroupID(groupID),
			Month:      period,
			Amount:     parseMoney(amount),
			PaidAmount: parseMoney(paidAmount),
			IsPaid:     isPaid,
			Status:     billing.DebtStatus(status),
			CreatedAt:  parseTime(createdAt),
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// PaymentRow is a payment joined with its student name.
type PaymentRow struct {
	Payment     billing.Payment
	StudentName string
}

func (s *Store) ListPayments(ctx context.Context, page ListPage) ([]PaymentRow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page = page.normalize()

	where := ""
	args := []any{}
	if page.Search != "" {
		where = "WHERE LOWER(st.full_name) LIKE ?"
		args = append(args, likePattern(page.Search))
	}

	base := `
		FROM payments p
		JOIN students st ON st.id = p.student_id
	` + where

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) "+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.student_id, p.amount, p.date, p.note, p.type, p.debt_id, p.created_at, st.full_name `+base+`
		ORDER BY p.created_at DESC LIMIT ? OFFSET ?`,
		append(args, page.PerPage, page.offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []PaymentRow
	for rows.Next() {
		var row PaymentRow
		var id, studentID, amount, date, createdAt string
		var note, ptype string
		var debtID sql.NullString
		if err := rows.Scan(&id, &studentID, &amount, &date, &note, &ptype, &debtID, &createdAt, &row.StudentName); err != nil {
			return nil, 0, err
		}
		row.Payment = billing.Payment{
			ID:        billing.PaymentID(id),
			StudentID: billing.StudentID(studentID),
			Amount:    parseMoney(amount),
			Date:      parseTime(date),
			Note:      note,
			Type:      billing.PaymentType(ptype),
			CreatedAt: parseTime(createdAt),
		}
		if debtID.Valid {
			d := billing.DebtID(debtID.String)
			row.Payment.DebtID = &d
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// =============================================================================
// DASHBOARD
// =============================================================================

// DashboardSummary mirrors the admin landing screen: headcounts, today's
// collected payments, and the total outstanding debt.
type DashboardSummary struct {
	StudentCount  int
	TeacherCount  int
	GroupCount    int
	TodaysRevenue decimal.Decimal
	TotalDebt     decimal.Decimal
}

func (s *Store) Dashboard(ctx context.Context, today time.Time) (*DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum DashboardSummary
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM students", &sum.StudentCount},
		{"SELECT COUNT(*) FROM teachers", &sum.TeacherCount},
		{"SELECT COUNT(*) FROM groups", &sum.GroupCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	dayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	sum.TodaysRevenue = decimal.Zero
	rows, err := s.db.QueryContext(ctx,
		"SELECT amount FROM payments WHERE date >= ? AND date < ?",
		formatTime(dayStart), formatTime(dayEnd))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return nil, err
		}
		sum.TodaysRevenue = sum.TodaysRevenue.Add(parseMoney(amount))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Amounts are stored as decimal strings, so the sum is computed here
	// rather than with SQL SUM() to keep exact semantics.
	sum.TotalDebt = decimal.Zero
	debtRows, err := s.db.QueryContext(ctx, "SELECT amount FROM debts")
	if err != nil {
		return nil, err
	}
	defer debtRows.Close()
	for debtRows.Next() {
		var amount string
		if err := debtRows.Scan(&amount); err != nil {
			return nil, err
		}
		sum.TotalDebt = sum.TotalDebt.Add(parseMoney(amount))
	}
	return &sum, debtRows.Err()
}

// =============================================================================
// GENERATION RUNS
// =============================================================================

// GenerationRun is the audit record of one debt generation batch.
type GenerationRun struct {
	ID         string
	Period     string
	Created    int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (s *Store) SaveGenerationRun(ctx context.Context, run GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_runs (id, period, created_count, skipped_count, failed_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Period, run.Created, run.Skipped, run.Failed,
		formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to save generation run: %w", err)
	}
	return nil
}

func (s *Store) ListGenerationRuns(ctx context.Context, limit int) ([]GenerationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period, created_count, skipped_count, failed_count, started_at, finished_at
		FROM generation_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []GenerationRun
	for rows.Next() {
		var r GenerationRun
		var startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.Period, &r.Created, &r.Skipped, &r.Failed, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
