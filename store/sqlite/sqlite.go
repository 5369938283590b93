/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements billing.TxGateway plus the registry persistence the admin API
  needs (teachers, students, groups, enrollments, debts, payments,
  generation runs). The same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  teachers, students, groups:  registry records
  group_student:               enrollments (student-to-group links)
  debts:                       one row per student per month
  payments:                    append-only payment ledger
  generation_runs:             audit of debt generation batches

CORRECTNESS BACKSTOPS:
  - idx_debts_student_month UNIQUE(student_id, month): the authoritative
    idempotency guard. Two concurrent generation runs cannot both insert a
    debt for the same student and month; the loser gets
    billing.ErrAlreadyGenerated.
  - Balance debits run as a single conditional UPDATE so a concurrent
    manual payment cannot be lost.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block
  and crash recovery is cleaner.

USAGE:
  store, err := sqlite.New("./data/tuition.db")
  if err != nil { ... }
  defer store.Close()
  engine := billing.NewEngine(store, billing.SystemClock{})

SEE ALSO:
  - billing/store.go: Interface contracts
  - billing/store/memory.go: In-memory implementation for tests
  - registry.go: CRUD and listing queries
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/bilim/tuition-engine/billing"
)

// Store implements billing.TxGateway and the registry persistence.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		birth_date TEXT,
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		teacher_id TEXT NOT NULL REFERENCES teachers(id),
		monthly_fee TEXT NOT NULL DEFAULT '0',
		start_date TEXT,
		time TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS group_student (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES groups(id),
		student_id TEXT NOT NULL REFERENCES students(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_group_student_student
		ON group_student(student_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_group_student_group
		ON group_student(group_id);

	CREATE TABLE IF NOT EXISTS debts (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		group_id TEXT NOT NULL REFERENCES groups(id),
		month TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		is_paid INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one debt per student per billing month. This is the
	-- authoritative idempotency guard; the engine's pre-check is only a
	-- fast path.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_debts_student_month
		ON debts(student_id, month);
	CREATE INDEX IF NOT EXISTS idx_debts_month
		ON debts(month);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		debt_id TEXT REFERENCES debts(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_student
		ON payments(student_id);
	CREATE INDEX IF NOT EXISTS idx_payments_date
		ON payments(date);

	CREATE TABLE IF NOT EXISTS generation_runs (
		id TEXT PRIMARY KEY,
		period TEXT NOT NULL,
		created_count INTEGER NOT NULL,
		skipped_count INTEGER NOT NULL,
		failed_count INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_generation_runs_period
		ON generation_runs(period);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so the same code serves both.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// BILLING GATEWAY (billing.Gateway interface)
// =============================================================================

func (s *Store) ListStudentIDs(ctx context.Context) ([]billing.StudentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listStudentIDs(ctx, s.db)
}

func listStudentIDs(ctx context.Context, q querier) ([]billing.StudentID, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM students ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var ids []billing.StudentID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, billing.StudentID(id))
	}
	return ids, rows.Err()
}

func (s *Store) GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStudent(ctx, s.db, id)
}

func getStudent(ctx context.Context, q querier, id billing.StudentID) (*billing.Student, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, full_name, phone, birth_date, balance, created_at FROM students WHERE id = ?",
		string(id))
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return st, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(r rowScanner) (*billing.Student, error) {
	var st billing.Student
	var id, balance, createdAt string
	var birthDate sql.NullString

	if err := r.Scan(&id, &st.FullName, &st.Phone, &birthDate, &balance, &createdAt); err != nil {
		return nil, err
	}
	st.ID = billing.StudentID(id)
	st.Balance = parseMoney(balance)
	st.CreatedAt = parseTime(createdAt)
	if birthDate.Valid && birthDate.String != "" {
		t, err := time.Parse("2006-01-02", birthDate.String)
		if err == nil {
			st.BirthDate = &t
		}
	}
	return &st, nil
}

func (s *Store) BillingGroupFor(ctx context.Context, id billing.StudentID) (*billing.BillingGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return billingGroupFor(ctx, s.db, id)
}

func billingGroupFor(ctx context.Context, q querier, id billing.StudentID) (*billing.BillingGroup, error) {
	// Most recent enrollment wins. Order by rowid as well so ties within
	// the same second resolve to the latest insert.
	row := q.QueryRowContext(ctx, `
		SELECT g.id, g.monthly_fee
		FROM group_student gs
		JOIN groups g ON g.id = gs.group_id
		WHERE gs.student_id = ?
		ORDER BY gs.created_at DESC, gs.rowid DESC
		LIMIT 1
	`, string(id))

	var groupID, fee string
	err := row.Scan(&groupID, &fee)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve billing group: %w", err)
	}
	return &billing.BillingGroup{
		GroupID:    billing.GroupID(groupID),
		MonthlyFee: parseMoney(fee),
	}, nil
}

func (s *Store) DebitBalance(ctx context.Context, id billing.StudentID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return debitBalance(ctx, s.db, id, amount)
}

func debitBalance(ctx context.Context, q querier, id billing.StudentID, amount decimal.Decimal) error {
	student, err := getStudent(ctx, q, id)
	if err != nil {
		return err
	}
	if student == nil {
		return billing.ErrStudentNotFound
	}
	if student.Balance.IsNegative() {
		return &billing.NegativeBalanceError{StudentID: id, Balance: student.Balance}
	}
	if amount.GreaterThan(student.Balance) {
		return &billing.InsufficientBalanceError{StudentID: id, Available: student.Balance, Requested: amount}
	}

	newBalance := student.Balance.Sub(amount)

	// Conditional write: fails the unit of work instead of losing an
	// update if another writer changed the balance since we read it.
	res, err := q.ExecContext(ctx,
		"UPDATE students SET balance = ? WHERE id = ? AND balance = ?",
		newBalance.String(), string(id), student.Balance.String())
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("balance for student %s changed concurrently", id)
	}
	return nil
}

func (s *Store) CreditBalance(ctx context.Context, id billing.StudentID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return creditBalance(ctx, s.db, id, amount)
}

func creditBalance(ctx context.Context, q querier, id billing.StudentID, amount decimal.Decimal) error {
	student, err := getStudent(ctx, q, id)
	if err != nil {
		return err
	}
	if student == nil {
		return billing.ErrStudentNotFound
	}
	_, err = q.ExecContext(ctx,
		"UPDATE students SET balance = ? WHERE id = ?",
		student.Balance.Add(amount).String(), string(id))
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

func (s *Store) DebtExists(ctx context.Context, id billing.StudentID, period billing.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return debtExists(ctx, s.db, id, period)
}

func debtExists(ctx context.Context, q querier, id billing.StudentID, period billing.Period) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM debts WHERE student_id = ? AND month = ?",
		string(id), period.String(),
	).Scan(&count)
	return count > 0, err
}

func (s *Store) GetDebt(ctx context.Context, id billing.DebtID) (*billing.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDebt(ctx, s.db, id)
}

func getDebt(ctx context.Context, q querier, id billing.DebtID) (*billing.Debt, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, student_id, group_id, month, amount, paid_amount, is_paid, status, created_at
		FROM debts WHERE id = ?
	`, string(id))
	d, err := scanDebt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func scanDebt(r rowScanner) (*billing.Debt, error) {
	var d billing.Debt
	var id, studentID, groupID, month, amount, paidAmount, status, createdAt string
	var isPaid bool

	if err := r.Scan(&id, &studentID, &groupID, &month, &amount, &paidAmount, &isPaid, &status, &createdAt); err != nil {
		return nil, err
	}
	period, err := billing.ParsePeriod(month)
	if err != nil {
		return nil, err
	}
	d.ID = billing.DebtID(id)
	d.StudentID = billing.StudentID(studentID)
	d.GroupID = billing.GroupID(groupID)
	d.Month = period
	d.Amount = parseMoney(amount)
	d.PaidAmount = parseMoney(paidAmount)
	d.IsPaid = isPaid
	d.Status = billing.DebtStatus(status)
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

func (s *Store) CreateDebt(ctx context.Context, d *billing.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createDebt(ctx, s.db, d)
}

func createDebt(ctx context.Context, q querier, d *billing.Debt) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO debts (id, student_id, group_id, month, amount, paid_amount, is_paid, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(d.ID), string(d.StudentID), string(d.GroupID), d.Month.String(),
		d.Amount.String(), d.PaidAmount.String(), d.IsPaid, string(d.Status),
		formatTime(d.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrAlreadyGenerated
		}
		return fmt.Errorf("failed to create debt: %w", err)
	}
	return nil
}

func (s *Store) UpdateDebtSettlement(ctx context.Context, d *billing.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateDebtSettlement(ctx, s.db, d)
}

func updateDebtSettlement(ctx context.Context, q querier, d *billing.Debt) error {
	res, err := q.ExecContext(ctx, `
		UPDATE debts SET amount = ?, paid_amount = ?, is_paid = ?, status = ?
		WHERE id = ?
	`, d.Amount.String(), d.PaidAmount.String(), d.IsPaid, string(d.Status), string(d.ID))
	if err != nil {
		return fmt.Errorf("failed to update debt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrDebtNotFound
	}
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p *billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPayment(ctx, s.db, p)
}

func createPayment(ctx context.Context, q querier, p *billing.Payment) error {
	var debtID sql.NullString
	if p.DebtID != nil {
		debtID = sql.NullString{String: string(*p.DebtID), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, student_id, amount, date, note, type, debt_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(p.ID), string(p.StudentID), p.Amount.String(), formatTime(p.Date),
		p.Note, string(p.Type), debtID, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL GATEWAY (billing.TxGateway interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Gateway) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txGateway{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txGateway struct {
	tx *sql.Tx
}

func (tg *txGateway) ListStudentIDs(ctx context.Context) ([]billing.StudentID, error) {
	return listStudentIDs(ctx, tg.tx)
}

func (tg *txGateway) GetStudent(ctx context.Context, id billing.StudentID) (*billing.Student, error) {
	return getStudent(ctx, tg.tx, id)
}

func (tg *txGateway) BillingGroupFor(ctx context.Context, id billing.StudentID) (*billing.BillingGroup, error) {
	return billingGroupFor(ctx, tg.tx, id)
}

func (tg *txGateway) DebitBalance(ctx context.Context, id billing.StudentID, amount decimal.Decimal) error {
	return debitBalance(ctx, tg.tx, id, amount)
}

func (tg *txGateway) CreditBalance(ctx context.Context, id billing.StudentID, amount decimal.Decimal) error {
	return creditBalance(ctx, tg.tx, id, amount)
}

func (tg *txGateway) DebtExists(ctx context.Context, id billing.StudentID, period billing.Period) (bool, error) {
	return debtExists(ctx, tg.tx, id, period)
}

func (tg *txGateway) GetDebt(ctx context.Context, id billing.DebtID) (*billing.Debt, error) {
	return getDebt(ctx, tg.tx, id)
}

func (tg *txGateway) CreateDebt(ctx context.Context, d *billing.Debt) error {
	return createDebt(ctx, tg.tx, d)
}

func (tg *txGateway) UpdateDebtSettlement(ctx context.Context, d *billing.Debt) error {
	return updateDebtSettlement(ctx, tg.tx, d)
}

func (tg *txGateway) CreatePayment(ctx context.Context, p *billing.Payment) error {
	return createPayment(ctx, tg.tx, p)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
