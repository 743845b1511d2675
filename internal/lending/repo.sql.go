package lending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prestana/prestana/internal/platform/db"
	"github.com/prestana/prestana/internal/shared"
)

// Repository provides PostgreSQL backed persistence for loans, schedules
// and payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateLoan inserts the loan and its full schedule in one transaction.
func (r *Repository) CreateLoan(ctx context.Context, loan *Loan) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return createLoanTx(ctx, tx, loan)
	})
}

func createLoanTx(ctx context.Context, tx pgx.Tx, loan *Loan) error {
	_, err := tx.Exec(ctx, `INSERT INTO loans
(id, business_id, amount, current_capital, interest_rate_monthly, duration, frequency, lending_type,
 penalty_basis, penalty_value, penalty_grace_period, penalty_period_mode, penalty_apply_on,
 penalty_per_installment, penalty_max, penalty_paid, status, start_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		loan.ID, loan.BusinessID, loan.Amount, loan.CurrentCapital, loan.InterestRateMonthly,
		loan.Duration, loan.Frequency, loan.LendingType,
		loan.Penalty.Basis, loan.Penalty.Value, loan.Penalty.GracePeriod, loan.Penalty.PeriodMode,
		loan.Penalty.ApplyOn, loan.Penalty.ApplyPerInstallment, loan.Penalty.MaxPenalty,
		loan.Penalty.PaidPenalty, loan.Status, loan.StartDate, loan.CreatedAt, loan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("lending: insert loan: %w", err)
	}
	for i := range loan.Schedule {
		if err := insertInstallment(ctx, tx, loan.ID, &loan.Schedule[i]); err != nil {
			return err
		}
	}
	return nil
}

func insertInstallment(ctx context.Context, tx pgx.Tx, loanID uuid.UUID, q *Installment) error {
	_, err := tx.Exec(ctx, `INSERT INTO loan_installments
(loan_id, number, due_date, amount, interest_amount, principal_amount, status,
 paid_amount, paid_interest, paid_capital, paid_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		loanID, q.Number, q.DueDate, q.Amount, q.InterestAmount, q.PrincipalAmount,
		q.Status, q.PaidAmount, q.PaidInterest, q.PaidCapital, q.PaidDate)
	if err != nil {
		return fmt.Errorf("lending: insert installment %d: %w", q.Number, err)
	}
	return nil
}

const loanColumns = `id, business_id, amount, current_capital, interest_rate_monthly, duration,
frequency, lending_type, penalty_basis, penalty_value, penalty_grace_period, penalty_period_mode,
penalty_apply_on, penalty_per_installment, penalty_max, penalty_paid, status, start_date,
created_at, updated_at`

func scanLoan(row pgx.Row, loan *Loan) error {
	return row.Scan(&loan.ID, &loan.BusinessID, &loan.Amount, &loan.CurrentCapital,
		&loan.InterestRateMonthly, &loan.Duration, &loan.Frequency, &loan.LendingType,
		&loan.Penalty.Basis, &loan.Penalty.Value, &loan.Penalty.GracePeriod,
		&loan.Penalty.PeriodMode, &loan.Penalty.ApplyOn, &loan.Penalty.ApplyPerInstallment,
		&loan.Penalty.MaxPenalty, &loan.Penalty.PaidPenalty, &loan.Status, &loan.StartDate,
		&loan.CreatedAt, &loan.UpdatedAt)
}

// GetLoan loads the loan and its complete schedule ordered by installment
// number. Partial schedule loads are never returned.
func (r *Repository) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	var loan Loan
	err := scanLoan(r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id), &loan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lending: get loan: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT number, due_date, amount, interest_amount, principal_amount,
status, paid_amount, paid_interest, paid_capital, paid_date
FROM loan_installments WHERE loan_id = $1 ORDER BY number`, id)
	if err != nil {
		return nil, fmt.Errorf("lending: load schedule: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var q Installment
		if err := rows.Scan(&q.Number, &q.DueDate, &q.Amount, &q.InterestAmount, &q.PrincipalAmount,
			&q.Status, &q.PaidAmount, &q.PaidInterest, &q.PaidCapital, &q.PaidDate); err != nil {
			return nil, fmt.Errorf("lending: scan installment: %w", err)
		}
		loan.Schedule = append(loan.Schedule, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &loan, nil
}

// ListLoans returns every loan of one business, without schedules.
func (r *Repository) ListLoans(ctx context.Context, businessID uuid.UUID) ([]Loan, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+loanColumns+` FROM loans WHERE business_id = $1 ORDER BY created_at`, businessID)
	if err != nil {
		return nil, fmt.Errorf("lending: list loans: %w", err)
	}
	defer rows.Close()
	var loans []Loan
	for rows.Next() {
		var loan Loan
		if err := scanLoan(rows, &loan); err != nil {
			return nil, fmt.Errorf("lending: scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// UpdateLoan persists the aggregate fields and every schedule row in one
// transaction.
func (r *Repository) UpdateLoan(ctx context.Context, loan *Loan) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return updateLoanTx(ctx, tx, loan)
	})
}

func updateLoanTx(ctx context.Context, tx pgx.Tx, loan *Loan) error {
	tag, err := tx.Exec(ctx, `UPDATE loans SET current_capital = $2, penalty_paid = $3,
status = $4, updated_at = $5 WHERE id = $1`,
		loan.ID, loan.CurrentCapital, loan.Penalty.PaidPenalty, loan.Status, loan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("lending: update loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	for i := range loan.Schedule {
		q := &loan.Schedule[i]
		_, err := tx.Exec(ctx, `UPDATE loan_installments SET status = $3, paid_amount = $4,
paid_interest = $5, paid_capital = $6, paid_date = $7 WHERE loan_id = $1 AND number = $2`,
			loan.ID, q.Number, q.Status, q.PaidAmount, q.PaidInterest, q.PaidCapital, q.PaidDate)
		if err != nil {
			return fmt.Errorf("lending: update installment %d: %w", q.Number, err)
		}
	}
	return nil
}

// SaveLoanWithPayment persists the mutated loan and the payment record
// atomically. A crash between the two must never leave the schedule and the
// payment history disagreeing.
func (r *Repository) SaveLoanWithPayment(ctx context.Context, loan *Loan, payment *Payment) error {
	breakdown, err := json.Marshal(payment.Distribution)
	if err != nil {
		return fmt.Errorf("lending: marshal distribution: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := updateLoanTx(ctx, tx, loan); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO loan_payments (id, loan_id, amount, distribution, paid_at, reversed, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET reversed = EXCLUDED.reversed`,
			payment.ID, payment.LoanID, payment.Amount, breakdown, payment.PaidAt, payment.Reversed, payment.CreatedAt)
		if err != nil {
			return fmt.Errorf("lending: insert payment: %w", err)
		}
		return nil
	})
}

// GetPayment loads one payment with its stored distribution.
func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	var breakdown []byte
	err := r.pool.QueryRow(ctx, `SELECT id, loan_id, amount, distribution, paid_at, reversed, created_at
FROM loan_payments WHERE id = $1`, id).
		Scan(&p.ID, &p.LoanID, &p.Amount, &breakdown, &p.PaidAt, &p.Reversed, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lending: get payment: %w", err)
	}
	if err := json.Unmarshal(breakdown, &p.Distribution); err != nil {
		return nil, fmt.Errorf("lending: unmarshal distribution: %w", err)
	}
	return &p, nil
}

// GetCalendarConfig loads the raw working-day configuration of a business.
// Missing rows yield shared.ErrNotFound.
func (r *Repository) GetCalendarConfig(ctx context.Context, businessID uuid.UUID) (CalendarConfig, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT config FROM business_calendars WHERE business_id = $1`, businessID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return CalendarConfig{}, shared.ErrNotFound
	}
	if err != nil {
		return CalendarConfig{}, fmt.Errorf("lending: get calendar config: %w", err)
	}
	var cfg CalendarConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return CalendarConfig{}, fmt.Errorf("%w: %v", ErrCalendarConfig, err)
	}
	return cfg, nil
}

// ListBusinessIDs returns the distinct businesses with at least one loan.
func (r *Repository) ListBusinessIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT business_id FROM loans`)
	if err != nil {
		return nil, fmt.Errorf("lending: list businesses: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
