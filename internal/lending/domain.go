package lending

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LendingType enumerates supported lending models.
type LendingType string

const (
	// LendingRedito is the interest-only model: installments carry interest
	// computed on a flat principal, capital is settled out of schedule.
	LendingRedito LendingType = "redito"
	// LendingFixed is the flat-rate model: even principal split plus a
	// constant interest charge computed on the original principal.
	LendingFixed LendingType = "fixed"
	// LendingAmortization is the reducing-balance (EMI) model.
	LendingAmortization LendingType = "amortization"
)

// Frequency enumerates installment cadences.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// LoanStatus enumerates loan lifecycle states.
type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "active"
	LoanStatusPastDue LoanStatus = "past_due"
	LoanStatusPaid    LoanStatus = "paid"
	LoanStatusBadDebt LoanStatus = "bad_debt"
)

// InstallmentStatus enumerates installment payment states.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
)

// PenaltyBasis selects how the per-period penalty value is interpreted.
type PenaltyBasis string

const (
	// PenaltyFixed charges Value currency units per overdue period.
	PenaltyFixed PenaltyBasis = "fixed"
	// PenaltyPercent charges Value percent of the ApplyOn base per period.
	PenaltyPercent PenaltyBasis = "percent"
)

// PenaltyApplyOn selects the base amount for percent penalties.
type PenaltyApplyOn string

const (
	PenaltyOnQuota    PenaltyApplyOn = "quota"
	PenaltyOnCapital  PenaltyApplyOn = "capital"
	PenaltyOnInterest PenaltyApplyOn = "interest"
	PenaltyOnBalance  PenaltyApplyOn = "balance"
)

// PeriodMode is the granularity penalty periods accrue per.
type PeriodMode string

const (
	PeriodDaily    PeriodMode = "daily"
	PeriodWeekly   PeriodMode = "weekly"
	PeriodBiweekly PeriodMode = "biweekly"
	PeriodMonthly  PeriodMode = "monthly"
)

// PenaltyConfig describes how late fees accrue for a loan.
type PenaltyConfig struct {
	Basis               PenaltyBasis
	Value               decimal.Decimal
	GracePeriod         int
	PeriodMode          PeriodMode
	ApplyOn             PenaltyApplyOn
	ApplyPerInstallment bool
	MaxPenalty          *decimal.Decimal
	// PaidPenalty is the cumulative penalty already collected. It never
	// enters accrual; pending penalty = accrued - PaidPenalty.
	PaidPenalty decimal.Decimal
}

// Installment is one scheduled obligation within a loan.
type Installment struct {
	Number          int
	DueDate         time.Time
	Amount          decimal.Decimal
	InterestAmount  decimal.Decimal
	PrincipalAmount decimal.Decimal
	Status          InstallmentStatus
	PaidAmount      decimal.Decimal
	PaidInterest    decimal.Decimal
	PaidCapital     decimal.Decimal
	PaidDate        *time.Time
}

// PendingInterest returns the unpaid interest portion, floored at zero.
func (q *Installment) PendingInterest() decimal.Decimal {
	p := q.InterestAmount.Sub(q.PaidInterest)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// PendingCapital returns the unpaid capital portion, floored at zero.
func (q *Installment) PendingCapital() decimal.Decimal {
	p := q.PrincipalAmount.Sub(q.PaidCapital)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// RefreshStatus recomputes the installment status from its paid fields.
func (q *Installment) RefreshStatus() {
	switch {
	case q.PaidInterest.GreaterThanOrEqual(q.InterestAmount.Sub(centTolerance)) &&
		q.PaidCapital.GreaterThanOrEqual(q.PrincipalAmount.Sub(centTolerance)):
		q.Status = InstallmentPaid
	case q.PaidAmount.GreaterThan(decimal.Zero):
		q.Status = InstallmentPartial
	default:
		q.Status = InstallmentPending
	}
}

// Loan is the aggregate root over an installment schedule.
type Loan struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	// Amount is the disbursed principal; immutable after creation.
	Amount decimal.Decimal
	// CurrentCapital is the outstanding principal.
	CurrentCapital      decimal.Decimal
	InterestRateMonthly decimal.Decimal
	// Duration is the installment count; 0 means open-ended (redito only).
	Duration    int
	Frequency   Frequency
	LendingType LendingType
	Penalty     PenaltyConfig
	Schedule    []Installment
	Status      LoanStatus
	StartDate   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PendingInterest sums unpaid interest across the schedule.
func (l *Loan) PendingInterest() decimal.Decimal {
	total := decimal.Zero
	for i := range l.Schedule {
		total = total.Add(l.Schedule[i].PendingInterest())
	}
	return total
}

// PendingCapital returns the unpaid capital. Redito loans track capital on
// the aggregate, so the schedule rows are not consulted.
func (l *Loan) PendingCapital() decimal.Decimal {
	if l.LendingType == LendingRedito {
		return l.CurrentCapital
	}
	total := decimal.Zero
	for i := range l.Schedule {
		total = total.Add(l.Schedule[i].PendingCapital())
	}
	return total
}

// RefreshStatus rederives the loan status from the schedule as of the given
// date. bad_debt is sticky: it is set explicitly and never recomputed away.
func (l *Loan) RefreshStatus(asOf time.Time) {
	if l.Status == LoanStatusBadDebt {
		return
	}
	if l.IsSettled() {
		l.Status = LoanStatusPaid
		return
	}
	day := truncateToDay(asOf)
	for i := range l.Schedule {
		q := &l.Schedule[i]
		if q.Status != InstallmentPaid && q.DueDate.Before(day) {
			l.Status = LoanStatusPastDue
			return
		}
	}
	l.Status = LoanStatusActive
}

// IsSettled reports whether the loan is fully repaid.
func (l *Loan) IsSettled() bool {
	if l.LendingType == LendingRedito {
		return l.CurrentCapital.LessThanOrEqual(centTolerance)
	}
	for i := range l.Schedule {
		if l.Schedule[i].Status != InstallmentPaid {
			return false
		}
	}
	return len(l.Schedule) > 0
}

// CheckConsistency verifies that the aggregate capital agrees with the
// schedule within unitTolerance. Redito loans are exempt: their schedule
// rows carry no capital and the aggregate is the source of truth.
func (l *Loan) CheckConsistency() error {
	if l.LendingType == LendingRedito {
		return nil
	}
	paidCapital := decimal.Zero
	for i := range l.Schedule {
		paidCapital = paidCapital.Add(l.Schedule[i].PaidCapital)
	}
	expected := l.Amount.Sub(paidCapital)
	if expected.Sub(l.CurrentCapital).Abs().GreaterThan(unitTolerance) {
		return ErrStateInconsistent
	}
	return nil
}

// PenaltyResult is the outcome of a penalty accrual calculation.
type PenaltyResult struct {
	TotalPenalty   decimal.Decimal
	PendingPenalty decimal.Decimal
	PeriodsOverdue int
	Breakdown      []PenaltyLine
}

// PenaltyLine is one overdue installment's contribution.
type PenaltyLine struct {
	InstallmentNumber int
	DueDate           time.Time
	GraceDeadline     time.Time
	PeriodsOverdue    int
	Penalty           decimal.Decimal
}

// InstallmentUpdate is the per-installment delta of one distribution.
type InstallmentUpdate struct {
	Number    int
	Interest  decimal.Decimal
	Capital   decimal.Decimal
	NewStatus InstallmentStatus
}

// PaymentDistribution is the canonical breakdown of one payment.
type PaymentDistribution struct {
	Amount             decimal.Decimal
	AppliedPenalty     decimal.Decimal
	AppliedInterest    decimal.Decimal
	AppliedCapital     decimal.Decimal
	InstallmentUpdates []InstallmentUpdate
	IsFullPayoff       bool
}

// ScheduleSummary reports the totals of a generated schedule.
type ScheduleSummary struct {
	InterestTotal decimal.Decimal
	TotalToPay    decimal.Decimal
}
