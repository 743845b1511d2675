package lending

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/prestana/prestana/internal/shared"
	_ "github.com/prestana/prestana/internal/testing/guard"
)

type memoryLoanRepo struct {
	loans    map[uuid.UUID]*Loan
	payments map[uuid.UUID]*Payment
}

func newMemoryLoanRepo() *memoryLoanRepo {
	return &memoryLoanRepo{
		loans:    make(map[uuid.UUID]*Loan),
		payments: make(map[uuid.UUID]*Payment),
	}
}

func (r *memoryLoanRepo) CreateLoan(ctx context.Context, loan *Loan) error {
	r.loans[loan.ID] = cloneLoan(loan)
	return nil
}

func (r *memoryLoanRepo) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	loan, ok := r.loans[id]
	if !ok {
		return nil, nil
	}
	return cloneLoan(loan), nil
}

func (r *memoryLoanRepo) ListLoans(ctx context.Context, businessID uuid.UUID) ([]Loan, error) {
	var out []Loan
	for _, loan := range r.loans {
		if loan.BusinessID == businessID {
			out = append(out, *cloneLoan(loan))
		}
	}
	return out, nil
}

func (r *memoryLoanRepo) SaveLoanWithPayment(ctx context.Context, loan *Loan, payment *Payment) error {
	if _, ok := r.loans[loan.ID]; !ok {
		return shared.ErrNotFound
	}
	r.loans[loan.ID] = cloneLoan(loan)
	p := *payment
	r.payments[payment.ID] = &p
	return nil
}

func (r *memoryLoanRepo) UpdateLoan(ctx context.Context, loan *Loan) error {
	if _, ok := r.loans[loan.ID]; !ok {
		return shared.ErrNotFound
	}
	r.loans[loan.ID] = cloneLoan(loan)
	return nil
}

func (r *memoryLoanRepo) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

type staticCalendarSource struct {
	calendar *Calendar
}

func (s staticCalendarSource) CalendarFor(ctx context.Context, businessID uuid.UUID) (*Calendar, error) {
	return s.calendar, nil
}

func newTestService(repo *memoryLoanRepo) *Service {
	return NewService(repo, staticCalendarSource{calendar: IdentityCalendar()}, shared.NewKeyedMutex(), nil)
}

func futureFirstPayment() time.Time {
	return truncateToDay(time.Now()).AddDate(0, 1, 0)
}

func createFixedLoan(t *testing.T, svc *Service) *Loan {
	t.Helper()
	loan, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		BusinessID:          uuid.New(),
		Amount:              dec(30000),
		InterestRateMonthly: dec(0.15),
		Duration:            6,
		Frequency:           FrequencyMonthly,
		LendingType:         LendingFixed,
		StartDate:           truncateToDay(time.Now()),
		FirstPaymentDate:    futureFirstPayment(),
		Penalty: PenaltyConfig{
			Basis:      PenaltyFixed,
			Value:      dec(100),
			PeriodMode: PeriodDaily,
		},
	})
	require.NoError(t, err)
	return loan
}

func TestCreateLoanGeneratesSchedule(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)

	loan := createFixedLoan(t, svc)
	require.Len(t, loan.Schedule, 6)
	requireDecimal(t, dec(30000), loan.CurrentCapital)
	require.Equal(t, LoanStatusActive, loan.Status)

	stored, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, stored.Schedule, 6)
}

func TestCreateLoanRejectsBadTerms(t *testing.T) {
	svc := newTestService(newMemoryLoanRepo())

	_, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		BusinessID:          uuid.New(),
		Amount:              decimal.Zero,
		InterestRateMonthly: dec(0.10),
		Duration:            6,
		Frequency:           FrequencyMonthly,
		LendingType:         LendingFixed,
		FirstPaymentDate:    futureFirstPayment(),
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestGetLoanNotFound(t *testing.T) {
	svc := newTestService(newMemoryLoanRepo())
	_, err := svc.GetLoan(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrLoanNotFound)
}

func TestRegisterPaymentPersistsLoanAndPayment(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)
	loan := createFixedLoan(t, svc)

	// One full installment: 4500 interest + 5000 capital.
	payment, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		LoanID: loan.ID,
		Amount: dec(9500),
	})
	require.NoError(t, err)
	requireDecimal(t, dec(4500), payment.Distribution.AppliedInterest)
	requireDecimal(t, dec(5000), payment.Distribution.AppliedCapital)
	require.False(t, payment.Distribution.IsFullPayoff)

	stored, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	requireDecimal(t, dec(25000), stored.CurrentCapital)
	require.Equal(t, InstallmentPaid, stored.Schedule[0].Status)

	persisted, err := repo.GetPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	require.False(t, persisted.Reversed)
}

func TestRegisterPaymentRejectsGrossOverpayment(t *testing.T) {
	svc := newTestService(newMemoryLoanRepo())
	loan := createFixedLoan(t, svc)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		LoanID: loan.ID,
		Amount: dec(100000),
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestReversePaymentRestoresLoan(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)
	loan := createFixedLoan(t, svc)

	payment, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		LoanID: loan.ID,
		Amount: dec(9500),
	})
	require.NoError(t, err)

	restored, err := svc.ReversePayment(context.Background(), payment.ID)
	require.NoError(t, err)
	requireDecimal(t, dec(30000), restored.CurrentCapital)
	require.Equal(t, InstallmentPending, restored.Schedule[0].Status)
	requireDecimal(t, decimal.Zero, restored.Schedule[0].PaidAmount)

	// The reversal is recorded; a second attempt is rejected.
	_, err = svc.ReversePayment(context.Background(), payment.ID)
	require.ErrorIs(t, err, ErrValidation)
}

func TestReversePaymentNotFound(t *testing.T) {
	svc := newTestService(newMemoryLoanRepo())
	_, err := svc.ReversePayment(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestMarkBadDebtIsSticky(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)
	loan := createFixedLoan(t, svc)

	marked, err := svc.MarkBadDebt(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, LoanStatusBadDebt, marked.Status)

	// Status recomputation on read must not clear the flag.
	reloaded, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, LoanStatusBadDebt, reloaded.Status)
}

func TestPenaltyPreviewUsesBusinessCalendar(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)
	loan := createFixedLoan(t, svc)

	// Well past the first due date: the preview reports accrual without
	// mutating the stored loan.
	asOf := loan.Schedule[0].DueDate.AddDate(0, 0, 10)
	result, err := svc.PenaltyPreview(context.Background(), loan.ID, asOf)
	require.NoError(t, err)
	requireDecimal(t, dec(1000), result.TotalPenalty)

	stored, err := repo.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	requireDecimal(t, decimal.Zero, stored.Penalty.PaidPenalty)
}

func TestRefreshStatusesFlagsPastDue(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newTestService(repo)
	loan := createFixedLoan(t, svc)

	asOf := loan.Schedule[0].DueDate.AddDate(0, 0, 3)
	changed, err := svc.RefreshStatuses(context.Background(), loan.BusinessID, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, changed)

	stored, err := repo.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Equal(t, LoanStatusPastDue, stored.Status)
}
