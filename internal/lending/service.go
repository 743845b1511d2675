package lending

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prestana/prestana/internal/shared"
)

// Payment is one applied distribution, persisted so it can be reversed.
type Payment struct {
	ID           uuid.UUID
	LoanID       uuid.UUID
	Amount       decimal.Decimal
	Distribution PaymentDistribution
	PaidAt       time.Time
	Reversed     bool
	CreatedAt    time.Time
}

// RepositoryPort defines data access for loans and payments. GetLoan must
// return the full schedule: the sequential fill corrupts on partial loads.
type RepositoryPort interface {
	CreateLoan(ctx context.Context, loan *Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	ListLoans(ctx context.Context, businessID uuid.UUID) ([]Loan, error)
	// SaveLoanWithPayment persists the mutated loan (schedule rows and
	// aggregate fields) together with the payment record in one
	// transaction.
	SaveLoanWithPayment(ctx context.Context, loan *Loan, payment *Payment) error
	UpdateLoan(ctx context.Context, loan *Loan) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
}

// CalendarSource supplies the per-business working-day calendar.
type CalendarSource interface {
	CalendarFor(ctx context.Context, businessID uuid.UUID) (*Calendar, error)
}

// Service orchestrates the lending engine over persisted loans. Mutations
// to one loan are serialized through a keyed lock; the repository is
// expected to persist each mutation atomically.
type Service struct {
	repo      RepositoryPort
	calendars CalendarSource
	locks     *shared.KeyedMutex
	logger    *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, calendars CalendarSource, locks *shared.KeyedMutex, logger *slog.Logger) *Service {
	if locks == nil {
		locks = shared.NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, calendars: calendars, locks: locks, logger: logger}
}

// calendarFor resolves the tenant calendar, degrading to the identity
// calendar on configuration errors rather than failing the operation.
func (s *Service) calendarFor(ctx context.Context, businessID uuid.UUID) *Calendar {
	if s.calendars == nil {
		return IdentityCalendar()
	}
	cal, err := s.calendars.CalendarFor(ctx, businessID)
	if err != nil {
		s.logger.Warn("calendar config unavailable, treating all days as working",
			slog.String("business_id", businessID.String()), slog.Any("error", err))
		return IdentityCalendar()
	}
	return cal
}

// CreateLoanInput carries the terms of a new loan.
type CreateLoanInput struct {
	BusinessID          uuid.UUID
	Amount              decimal.Decimal
	InterestRateMonthly decimal.Decimal
	Duration            int
	Frequency           Frequency
	LendingType         LendingType
	StartDate           time.Time
	FirstPaymentDate    time.Time
	RoundToFive         bool
	Penalty             PenaltyConfig
}

// CreateLoan validates terms, generates the schedule and persists the loan.
func (s *Service) CreateLoan(ctx context.Context, input CreateLoanInput) (*Loan, error) {
	cal := s.calendarFor(ctx, input.BusinessID)
	gen := NewScheduleGenerator(cal)
	schedule, _, err := gen.Generate(LoanTerms{
		Principal:           input.Amount,
		InterestRateMonthly: input.InterestRateMonthly,
		Periods:             input.Duration,
		Frequency:           input.Frequency,
		LendingType:         input.LendingType,
		StartDate:           input.StartDate,
		FirstPaymentDate:    input.FirstPaymentDate,
		RoundToFive:         input.RoundToFive,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	loan := &Loan{
		ID:                  uuid.New(),
		BusinessID:          input.BusinessID,
		Amount:              input.Amount,
		CurrentCapital:      input.Amount,
		InterestRateMonthly: input.InterestRateMonthly,
		Duration:            input.Duration,
		Frequency:           input.Frequency,
		LendingType:         input.LendingType,
		Penalty:             input.Penalty,
		Schedule:            schedule,
		Status:              LoanStatusActive,
		StartDate:           input.StartDate,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// GetLoan loads a loan and rederives its status.
func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	loan, err := s.repo.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	loan.RefreshStatus(time.Now())
	return loan, nil
}

// ListLoans returns the loans of one business.
func (s *Service) ListLoans(ctx context.Context, businessID uuid.UUID) ([]Loan, error) {
	return s.repo.ListLoans(ctx, businessID)
}

// PenaltyPreview computes accrued penalty as of the given date without
// touching the loan. A zero date means now.
func (s *Service) PenaltyPreview(ctx context.Context, loanID uuid.UUID, asOf time.Time) (PenaltyResult, error) {
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return PenaltyResult{}, err
	}
	calc := NewPenaltyCalculator(s.calendarFor(ctx, loan.BusinessID))
	return calc.Calculate(loan, asOf), nil
}

// RegisterPaymentInput describes an incoming payment.
type RegisterPaymentInput struct {
	LoanID uuid.UUID
	Amount decimal.Decimal
	PaidAt time.Time
}

// RegisterPayment runs the penalty calculation, distributes the amount,
// applies the result and persists loan and payment atomically.
func (s *Service) RegisterPayment(ctx context.Context, input RegisterPaymentInput) (*Payment, error) {
	key := shared.LoanLockKey(input.LoanID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	loan, err := s.GetLoan(ctx, input.LoanID)
	if err != nil {
		return nil, err
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	calc := NewPenaltyCalculator(s.calendarFor(ctx, loan.BusinessID))
	penalty := calc.Calculate(loan, paidAt)

	distributor := NewPaymentDistributor()
	dist, err := distributor.Distribute(loan, input.Amount, penalty, paidAt)
	if err != nil {
		return nil, err
	}
	if err := distributor.Apply(loan, dist, paidAt); err != nil {
		return nil, err
	}

	payment := &Payment{
		ID:           uuid.New(),
		LoanID:       loan.ID,
		Amount:       input.Amount,
		Distribution: dist,
		PaidAt:       paidAt,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.SaveLoanWithPayment(ctx, loan, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// ReversePayment undoes a previously applied payment and persists the
// restored loan state. Reversing twice is rejected.
func (s *Service) ReversePayment(ctx context.Context, paymentID uuid.UUID) (*Loan, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Reversed {
		return nil, validationError("payment %s already reversed", payment.ID)
	}

	key := shared.LoanLockKey(payment.LoanID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	loan, err := s.GetLoan(ctx, payment.LoanID)
	if err != nil {
		return nil, err
	}
	distributor := NewPaymentDistributor()
	if err := distributor.Reverse(loan, payment.Distribution); err != nil {
		return nil, err
	}
	payment.Reversed = true
	if err := s.repo.SaveLoanWithPayment(ctx, loan, payment); err != nil {
		return nil, err
	}
	return loan, nil
}

// MarkBadDebt flags a loan as uncollectible. The flag is sticky: status
// recomputation never clears it.
func (s *Service) MarkBadDebt(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	key := shared.LoanLockKey(loanID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == LoanStatusPaid {
		return nil, validationError("loan %s is already settled", loanID)
	}
	loan.Status = LoanStatusBadDebt
	loan.UpdatedAt = time.Now()
	if err := s.repo.UpdateLoan(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// RefreshStatuses rederives the status of every loan in a business and
// persists the ones that changed. The background worker runs this nightly.
func (s *Service) RefreshStatuses(ctx context.Context, businessID uuid.UUID, asOf time.Time) (int, error) {
	loans, err := s.repo.ListLoans(ctx, businessID)
	if err != nil {
		return 0, err
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	changed := 0
	for i := range loans {
		loan := &loans[i]
		before := loan.Status
		loan.RefreshStatus(asOf)
		if loan.Status == before {
			continue
		}
		key := shared.LoanLockKey(loan.ID)
		s.locks.Lock(key)
		err := s.repo.UpdateLoan(ctx, loan)
		s.locks.Unlock(key)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return changed, err
		}
		changed++
	}
	return changed, nil
}
