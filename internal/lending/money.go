package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// Monetary comparison tolerances. All money in the engine is decimal, but
// generated schedules round to cents, so comparisons allow bounded drift
// instead of exact equality.
var (
	// centTolerance bounds per-installment fill and paid-state checks.
	centTolerance = decimal.NewFromFloat(0.01)
	// overpayTolerance is the slack allowed above total pending debt.
	overpayTolerance = decimal.NewFromFloat(0.1)
	// unitTolerance bounds schedule-sum reconciliation and aggregate
	// consistency checks.
	unitTolerance = decimal.NewFromInt(1)
)

var (
	decimalFive    = decimal.NewFromInt(5)
	decimalHundred = decimal.NewFromInt(100)
)

// roundCents rounds to 2 decimal places, half away from zero.
func roundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// roundToNearestFive rounds to the closest multiple of 5 currency units.
func roundToNearestFive(d decimal.Decimal) decimal.Decimal {
	return d.Div(decimalFive).Round(0).Mul(decimalFive)
}

// truncateToDay drops the time-of-day component, keeping the location.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
