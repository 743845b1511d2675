package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// periodModeDays converts accrued working days into penalty periods.
var periodModeDays = map[PeriodMode]int{
	PeriodDaily:    1,
	PeriodWeekly:   7,
	PeriodBiweekly: 15,
	PeriodMonthly:  30,
}

// PenaltyCalculator computes accrued late fees over a loan snapshot. It is
// pure: the same inputs always produce the same result and nothing is
// mutated.
type PenaltyCalculator struct {
	calendar *Calendar
}

// NewPenaltyCalculator builds a calculator over the given calendar. A nil
// calendar treats every day as working.
func NewPenaltyCalculator(calendar *Calendar) *PenaltyCalculator {
	return &PenaltyCalculator{calendar: calendar}
}

// Calculate returns the total accrued penalty as of referenceDate, with a
// per-installment breakdown. A zero referenceDate means now. Comparisons
// run at day granularity so the result cannot flap within a day.
func (p *PenaltyCalculator) Calculate(loan *Loan, referenceDate time.Time) PenaltyResult {
	if referenceDate.IsZero() {
		referenceDate = time.Now()
	}
	reference := truncateToDay(referenceDate)

	overdue := make([]*Installment, 0, len(loan.Schedule))
	for i := range loan.Schedule {
		q := &loan.Schedule[i]
		if q.Status != InstallmentPaid && truncateToDay(q.DueDate).Before(reference) {
			overdue = append(overdue, q)
		}
	}
	if len(overdue) == 0 {
		return PenaltyResult{
			TotalPenalty:   decimal.Zero,
			PendingPenalty: decimal.Zero,
		}
	}
	if !loan.Penalty.ApplyPerInstallment {
		// Accrue for the oldest overdue installment only.
		overdue = overdue[:1]
	}

	cfg := loan.Penalty
	total := decimal.Zero
	periodsTotal := 0
	breakdown := make([]PenaltyLine, 0, len(overdue))
	for _, q := range overdue {
		line := p.installmentPenalty(loan, q, cfg, reference)
		total = total.Add(line.Penalty)
		periodsTotal += line.PeriodsOverdue
		breakdown = append(breakdown, line)
	}

	if cfg.MaxPenalty != nil && total.GreaterThan(*cfg.MaxPenalty) {
		total = *cfg.MaxPenalty
	}

	pending := total.Sub(cfg.PaidPenalty)
	if pending.IsNegative() {
		pending = decimal.Zero
	}
	return PenaltyResult{
		TotalPenalty:   total,
		PendingPenalty: pending,
		PeriodsOverdue: periodsTotal,
		Breakdown:      breakdown,
	}
}

func (p *PenaltyCalculator) installmentPenalty(loan *Loan, q *Installment, cfg PenaltyConfig, reference time.Time) PenaltyLine {
	due := truncateToDay(q.DueDate)
	// Grace runs in working days; a deadline landing on a non-working day
	// rolls forward before penalty-day counting starts.
	deadline := p.calendar.AddWorkingDays(due, cfg.GracePeriod)
	deadline = p.calendar.NextWorkingDay(deadline)

	line := PenaltyLine{
		InstallmentNumber: q.Number,
		DueDate:           due,
		GraceDeadline:     deadline,
		Penalty:           decimal.Zero,
	}
	if !reference.After(deadline) {
		return line
	}

	// Working days in (deadline, reference]: the reference day itself
	// accrues, so the exclusive upper bound is shifted by one day.
	days := p.calendar.CountWorkingDaysBetween(deadline, reference.AddDate(0, 0, 1))
	periods := days / periodModeDays[cfg.PeriodMode]
	if periods <= 0 {
		return line
	}
	line.PeriodsOverdue = periods

	factor := decimal.NewFromInt(int64(periods))
	switch cfg.Basis {
	case PenaltyPercent:
		base := penaltyBase(loan, q, cfg.ApplyOn)
		line.Penalty = roundCents(factor.Mul(cfg.Value).Div(decimalHundred).Mul(base))
	default:
		line.Penalty = factor.Mul(cfg.Value)
	}
	return line
}

// penaltyBase selects the amount a percent penalty is computed on.
func penaltyBase(loan *Loan, q *Installment, applyOn PenaltyApplyOn) decimal.Decimal {
	switch applyOn {
	case PenaltyOnCapital:
		return q.PrincipalAmount
	case PenaltyOnInterest:
		return q.InterestAmount
	case PenaltyOnBalance:
		return loan.CurrentCapital
	default:
		return q.Amount
	}
}
