package lending

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// reditoLoan40k mirrors a common shop configuration: 40,000 principal at
// 10% monthly, collected weekly over 8 periods.
func reditoLoan40k(t *testing.T, penalty PenaltyConfig) *Loan {
	t.Helper()
	gen := NewScheduleGenerator(IdentityCalendar())
	schedule, _, err := gen.Generate(LoanTerms{
		Principal:           dec(40000),
		InterestRateMonthly: dec(0.10),
		Periods:             8,
		Frequency:           FrequencyWeekly,
		LendingType:         LendingRedito,
		StartDate:           date(2026, 3, 2),
		FirstPaymentDate:    date(2026, 3, 9),
	})
	require.NoError(t, err)
	return &Loan{
		Amount:              dec(40000),
		CurrentCapital:      dec(40000),
		InterestRateMonthly: dec(0.10),
		Duration:            8,
		Frequency:           FrequencyWeekly,
		LendingType:         LendingRedito,
		Penalty:             penalty,
		Schedule:            schedule,
		Status:              LoanStatusActive,
	}
}

func TestPenaltyFixedPerWorkingDay(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyFixed,
		Value:               dec(200),
		GracePeriod:         0,
		PeriodMode:          PeriodDaily,
		ApplyPerInstallment: true,
	})
	calc := NewPenaltyCalculator(IdentityCalendar())

	// First due date 2026-03-09; five working days later only the first
	// installment is overdue and five accrual days have elapsed.
	result := calc.Calculate(loan, date(2026, 3, 14))
	requireDecimal(t, dec(1000), result.TotalPenalty)
	requireDecimal(t, dec(1000), result.PendingPenalty)
	require.Equal(t, 5, result.PeriodsOverdue)
	require.Len(t, result.Breakdown, 1)
	require.Equal(t, 1, result.Breakdown[0].InstallmentNumber)
}

func TestPenaltyZeroWhenNothingOverdue(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{Basis: PenaltyFixed, Value: dec(200), PeriodMode: PeriodDaily})
	calc := NewPenaltyCalculator(IdentityCalendar())

	result := calc.Calculate(loan, date(2026, 3, 9))
	requireDecimal(t, decimal.Zero, result.TotalPenalty)
	require.Empty(t, result.Breakdown)
}

func TestPenaltyGracePeriodBoundary(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyFixed,
		Value:               dec(100),
		GracePeriod:         2,
		PeriodMode:          PeriodDaily,
		ApplyPerInstallment: true,
	})
	cal := SundayCalendar()
	calc := NewPenaltyCalculator(cal)

	// Due Monday 2026-03-09; two working days of grace land on Wednesday.
	deadline := cal.AddWorkingDays(date(2026, 3, 9), 2)
	require.Equal(t, date(2026, 3, 11), deadline)

	onDeadline := calc.Calculate(loan, deadline)
	requireDecimal(t, decimal.Zero, onDeadline.TotalPenalty)

	dayAfter := calc.Calculate(loan, deadline.AddDate(0, 0, 1))
	requireDecimal(t, dec(100), dayAfter.TotalPenalty)
	require.Equal(t, 1, dayAfter.PeriodsOverdue)
}

func TestPenaltyGraceDeadlineRollsOffNonWorkingDay(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyFixed,
		Value:               dec(100),
		GracePeriod:         0,
		PeriodMode:          PeriodDaily,
		ApplyPerInstallment: true,
	})
	// Make the due date itself non-working: the deadline moves to Monday
	// before accrual starts.
	cal, err := NewCalendar(CalendarConfig{
		NonWorkingWeekdays: []time.Weekday{time.Sunday},
		Holidays:           []string{"2026-03-09"},
	})
	require.NoError(t, err)
	calc := NewPenaltyCalculator(cal)

	// Deadline rolled 2026-03-09 -> 2026-03-10; Tuesday accrues nothing.
	requireDecimal(t, decimal.Zero, calc.Calculate(loan, date(2026, 3, 10)).TotalPenalty)
	requireDecimal(t, dec(100), calc.Calculate(loan, date(2026, 3, 11)).TotalPenalty)
}

func TestPenaltyMonotonicInReferenceDate(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyFixed,
		Value:               dec(50),
		GracePeriod:         1,
		PeriodMode:          PeriodDaily,
		ApplyPerInstallment: true,
	})
	calc := NewPenaltyCalculator(SundayCalendar())

	prev := decimal.Zero
	for day := 0; day < 40; day++ {
		ref := date(2026, 3, 9).AddDate(0, 0, day)
		total := calc.Calculate(loan, ref).TotalPenalty
		require.True(t, total.GreaterThanOrEqual(prev),
			"penalty decreased at %s: %s -> %s", ref.Format("2006-01-02"), prev, total)
		prev = total
	}
}

func TestPenaltyPercentOnQuota(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyPercent,
		Value:               dec(2),
		GracePeriod:         0,
		PeriodMode:          PeriodDaily,
		ApplyOn:             PenaltyOnQuota,
		ApplyPerInstallment: true,
	})
	calc := NewPenaltyCalculator(IdentityCalendar())

	// 3 days overdue, 2% of the 1000 quota per day.
	result := calc.Calculate(loan, date(2026, 3, 12))
	requireDecimal(t, dec(60), result.TotalPenalty)
}

func TestPenaltyPercentOnOutstandingBalance(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyPercent,
		Value:               dec(1),
		GracePeriod:         0,
		PeriodMode:          PeriodDaily,
		ApplyOn:             PenaltyOnBalance,
		ApplyPerInstallment: true,
	})
	calc := NewPenaltyCalculator(IdentityCalendar())

	// 1% of the 40,000 outstanding balance, twice.
	result := calc.Calculate(loan, date(2026, 3, 11))
	requireDecimal(t, dec(800), result.TotalPenalty)
}

func TestPenaltyOldestOnlyVersusPerInstallment(t *testing.T) {
	cfg := PenaltyConfig{
		Basis:       PenaltyFixed,
		Value:       dec(10),
		GracePeriod: 0,
		PeriodMode:  PeriodDaily,
	}
	calc := NewPenaltyCalculator(IdentityCalendar())
	// Three weeks after the first due date: installments 1-3 overdue.
	ref := date(2026, 3, 30)

	oldest := reditoLoan40k(t, cfg)
	oldestResult := calc.Calculate(oldest, ref)
	require.Len(t, oldestResult.Breakdown, 1)
	requireDecimal(t, dec(210), oldestResult.TotalPenalty) // 21 days on #1

	cfg.ApplyPerInstallment = true
	each := reditoLoan40k(t, cfg)
	eachResult := calc.Calculate(each, ref)
	require.Len(t, eachResult.Breakdown, 3)
	// 21 + 14 + 7 accrual days across the three overdue installments.
	requireDecimal(t, dec(420), eachResult.TotalPenalty)
}

func TestPenaltyWeeklyPeriodModeFloors(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyFixed,
		Value:               dec(500),
		GracePeriod:         0,
		PeriodMode:          PeriodWeekly,
		ApplyPerInstallment: true,
	})
	calc := NewPenaltyCalculator(IdentityCalendar())

	// 13 accrual days = one whole week.
	result := calc.Calculate(loan, date(2026, 3, 22))
	require.Equal(t, 1, result.PeriodsOverdue)
	requireDecimal(t, dec(500), result.TotalPenalty)
}

func TestPenaltyMaxCapAndPaidPenalty(t *testing.T) {
	cap := dec(300)
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyFixed,
		Value:               dec(200),
		GracePeriod:         0,
		PeriodMode:          PeriodDaily,
		ApplyPerInstallment: true,
		MaxPenalty:          &cap,
		PaidPenalty:         dec(120),
	})
	calc := NewPenaltyCalculator(IdentityCalendar())

	result := calc.Calculate(loan, date(2026, 3, 14))
	requireDecimal(t, dec(300), result.TotalPenalty)
	requireDecimal(t, dec(180), result.PendingPenalty)
}

func TestPenaltyIdempotent(t *testing.T) {
	loan := reditoLoan40k(t, PenaltyConfig{
		Basis:               PenaltyFixed,
		Value:               dec(200),
		PeriodMode:          PeriodDaily,
		ApplyPerInstallment: true,
	})
	calc := NewPenaltyCalculator(SundayCalendar())

	ref := date(2026, 4, 1)
	first := calc.Calculate(loan, ref)
	second := calc.Calculate(loan, ref)
	requireDecimal(t, first.TotalPenalty, second.TotalPenalty)
	require.Equal(t, first.PeriodsOverdue, second.PeriodsOverdue)
	require.Equal(t, len(first.Breakdown), len(second.Breakdown))
}
