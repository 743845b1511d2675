package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// openEndedHorizon is the number of installments generated for an
// open-ended (duration 0) redito loan. The schedule is a rolling window:
// the service appends further periods as the loan stays open.
const openEndedHorizon = 12

// frequencyDivisor converts the monthly nominal rate to a periodic rate.
// This is the conventional divisor, not an effective-rate conversion, and
// must stay as-is for compatibility with historical schedules.
var frequencyDivisor = map[Frequency]int64{
	FrequencyDaily:    30,
	FrequencyWeekly:   4,
	FrequencyBiweekly: 2,
	FrequencyMonthly:  1,
}

// LoanTerms is the input to schedule generation.
type LoanTerms struct {
	Principal           decimal.Decimal
	InterestRateMonthly decimal.Decimal
	Periods             int
	Frequency           Frequency
	LendingType         LendingType
	StartDate           time.Time
	FirstPaymentDate    time.Time
	// RoundToFive rounds each installment amount to the nearest multiple
	// of 5, folding the residual into the final installment.
	RoundToFive bool
}

// ScheduleGenerator produces installment schedules from loan terms.
type ScheduleGenerator struct {
	calendar *Calendar
}

// NewScheduleGenerator builds a generator over the given calendar. A nil
// calendar treats every day as working.
func NewScheduleGenerator(calendar *Calendar) *ScheduleGenerator {
	return &ScheduleGenerator{calendar: calendar}
}

// Generate builds the ordered installment list and summary totals for the
// given terms. Invalid terms are rejected, never defaulted.
func (g *ScheduleGenerator) Generate(terms LoanTerms) ([]Installment, ScheduleSummary, error) {
	if err := terms.validate(); err != nil {
		return nil, ScheduleSummary{}, err
	}

	periods := terms.Periods
	if periods == 0 {
		periods = openEndedHorizon
	}

	divisor := decimal.NewFromInt(frequencyDivisor[terms.Frequency])
	periodicRate := terms.InterestRateMonthly.Div(divisor)

	dueDates := g.dueDates(terms.FirstPaymentDate, terms.Frequency, periods)

	var schedule []Installment
	switch terms.LendingType {
	case LendingRedito:
		schedule = buildReditoSchedule(terms.Principal, periodicRate, dueDates)
	case LendingFixed:
		schedule = buildFixedSchedule(terms.Principal, periodicRate, dueDates)
	case LendingAmortization:
		schedule = buildAmortizationSchedule(terms.Principal, periodicRate, dueDates)
	}

	if terms.RoundToFive {
		applyFiveRounding(schedule, terms.LendingType)
	}

	interestTotal := decimal.Zero
	for i := range schedule {
		interestTotal = interestTotal.Add(schedule[i].InterestAmount)
	}
	// For redito the schedule rows carry no capital, but the principal is
	// still owed out of schedule, so it stays part of the total.
	summary := ScheduleSummary{
		InterestTotal: interestTotal,
		TotalToPay:    terms.Principal.Add(interestTotal),
	}
	return schedule, summary, nil
}

func (t LoanTerms) validate() error {
	if !t.Principal.IsPositive() {
		return validationError("principal must be positive")
	}
	if t.InterestRateMonthly.IsNegative() {
		return validationError("interest rate must not be negative")
	}
	if _, ok := frequencyDivisor[t.Frequency]; !ok {
		return validationError("unsupported frequency %q", t.Frequency)
	}
	switch t.LendingType {
	case LendingRedito, LendingFixed, LendingAmortization:
	default:
		return validationError("unsupported lending type %q", t.LendingType)
	}
	if t.Periods <= 0 && !(t.Periods == 0 && t.LendingType == LendingRedito) {
		return validationError("periods must be positive")
	}
	if t.FirstPaymentDate.IsZero() {
		return validationError("first payment date is required")
	}
	return nil
}

// dueDates generates candidate dates by period length from the anchor date,
// each resolved to the next working day. Resolution never repeats a day: a
// candidate whose resolution lands on or before the previous due date moves
// to the following working day, keeping the sequence strictly increasing.
// Biweekly follows the quincena convention of 15 days.
func (g *ScheduleGenerator) dueDates(first time.Time, freq Frequency, periods int) []time.Time {
	first = truncateToDay(first)
	dates := make([]time.Time, 0, periods)
	var last time.Time
	for i := 0; i < periods; i++ {
		var candidate time.Time
		switch freq {
		case FrequencyDaily:
			candidate = first.AddDate(0, 0, i)
		case FrequencyWeekly:
			candidate = first.AddDate(0, 0, 7*i)
		case FrequencyBiweekly:
			candidate = first.AddDate(0, 0, 15*i)
		case FrequencyMonthly:
			candidate = addMonthsClamped(first, i)
		}
		resolved := g.calendar.NextWorkingDay(candidate)
		if i > 0 && !resolved.After(last) {
			resolved = g.calendar.NextWorkingDay(last.AddDate(0, 0, 1))
		}
		dates = append(dates, resolved)
		last = resolved
	}
	return dates
}

// addMonthsClamped advances the anchor by whole months, clamping to the last
// day of shorter months so a loan anchored on the 31st still bills every
// month instead of skipping February and drifting to the 3rd.
func addMonthsClamped(anchor time.Time, months int) time.Time {
	y, m, d := anchor.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, anchor.Location())
	if lastDay := firstOfTarget.AddDate(0, 1, -1).Day(); d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, anchor.Location())
}

func buildReditoSchedule(principal, rate decimal.Decimal, dueDates []time.Time) []Installment {
	interest := roundCents(principal.Mul(rate))
	schedule := make([]Installment, 0, len(dueDates))
	for i, due := range dueDates {
		schedule = append(schedule, Installment{
			Number:          i + 1,
			DueDate:         due,
			Amount:          interest,
			InterestAmount:  interest,
			PrincipalAmount: decimal.Zero,
			Status:          InstallmentPending,
		})
	}
	return schedule
}

func buildFixedSchedule(principal, rate decimal.Decimal, dueDates []time.Time) []Installment {
	n := int64(len(dueDates))
	// Flat interest: charged on the original principal every period, by
	// convention, never on the declining balance.
	interest := roundCents(principal.Mul(rate))
	capital := roundCents(principal.Div(decimal.NewFromInt(n)))

	schedule := make([]Installment, 0, len(dueDates))
	remaining := principal
	for i, due := range dueDates {
		rowCapital := capital
		if i == len(dueDates)-1 {
			rowCapital = reconcileFinalCapital(remaining, capital)
		}
		schedule = append(schedule, Installment{
			Number:          i + 1,
			DueDate:         due,
			Amount:          rowCapital.Add(interest),
			InterestAmount:  interest,
			PrincipalAmount: rowCapital,
			Status:          InstallmentPending,
		})
		remaining = remaining.Sub(rowCapital)
	}
	return schedule
}

func buildAmortizationSchedule(principal, rate decimal.Decimal, dueDates []time.Time) []Installment {
	n := len(dueDates)
	emi := levelInstallment(principal, rate, n)

	schedule := make([]Installment, 0, n)
	balance := principal
	for i, due := range dueDates {
		interest := roundCents(balance.Mul(rate))
		capital := emi.Sub(interest)
		if i == n-1 {
			capital = reconcileFinalCapital(balance, capital)
		}
		schedule = append(schedule, Installment{
			Number:          i + 1,
			DueDate:         due,
			Amount:          capital.Add(interest),
			InterestAmount:  interest,
			PrincipalAmount: capital,
			Status:          InstallmentPending,
		})
		balance = balance.Sub(capital)
	}
	return schedule
}

// levelInstallment computes the annuity payment
// P*r*(1+r)^n / ((1+r)^n - 1), falling back to P/n at zero rate.
func levelInstallment(principal, rate decimal.Decimal, n int) decimal.Decimal {
	if rate.IsZero() {
		return roundCents(principal.Div(decimal.NewFromInt(int64(n))))
	}
	compound := rate.Add(decimal.NewFromInt(1)).Pow(decimal.NewFromInt(int64(n)))
	numerator := principal.Mul(rate).Mul(compound)
	denominator := compound.Sub(decimal.NewFromInt(1))
	return roundCents(numerator.Div(denominator))
}

// reconcileFinalCapital folds sub-unit rounding residue into the last
// installment so the schedule sums exactly to principal plus interest.
func reconcileFinalCapital(remaining, capital decimal.Decimal) decimal.Decimal {
	if remaining.Sub(capital).Abs().LessThanOrEqual(unitTolerance) {
		return roundCents(remaining)
	}
	return capital
}

// applyFiveRounding rounds each installment amount to the nearest multiple
// of 5, pushing the residual into the final installment.
func applyFiveRounding(schedule []Installment, lt LendingType) {
	if len(schedule) == 0 {
		return
	}
	total := decimal.Zero
	for i := range schedule {
		total = total.Add(schedule[i].Amount)
	}
	rounded := decimal.Zero
	for i := range schedule[:len(schedule)-1] {
		q := &schedule[i]
		amount := roundToNearestFive(q.Amount)
		shiftRowComponents(q, amount, lt)
		rounded = rounded.Add(amount)
	}
	last := &schedule[len(schedule)-1]
	shiftRowComponents(last, total.Sub(rounded), lt)
}

// shiftRowComponents resizes a row to a new total, absorbing the delta in
// the capital component (interest for redito rows, which carry no capital).
func shiftRowComponents(q *Installment, amount decimal.Decimal, lt LendingType) {
	delta := amount.Sub(q.Amount)
	if lt == LendingRedito {
		q.InterestAmount = q.InterestAmount.Add(delta)
	} else {
		q.PrincipalAmount = q.PrincipalAmount.Add(delta)
	}
	q.Amount = amount
}
