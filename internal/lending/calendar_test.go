package lending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendarWeekdayAndHolidayRules(t *testing.T) {
	cal, err := NewCalendar(CalendarConfig{
		NonWorkingWeekdays: []time.Weekday{time.Sunday},
		Holidays:           []string{"2026-01-01"},
	})
	require.NoError(t, err)

	require.False(t, cal.IsWorkingDay(date(2026, 1, 4)))  // Sunday
	require.False(t, cal.IsWorkingDay(date(2026, 1, 1)))  // holiday
	require.True(t, cal.IsWorkingDay(date(2026, 1, 2)))   // Friday
	require.True(t, cal.IsWorkingDay(date(2026, 1, 3)))   // Saturday
}

func TestCalendarMalformedHoliday(t *testing.T) {
	_, err := NewCalendar(CalendarConfig{Holidays: []string{"01/01/2026"}})
	require.ErrorIs(t, err, ErrCalendarConfig)
}

func TestCalendarInvalidWeekday(t *testing.T) {
	_, err := NewCalendar(CalendarConfig{NonWorkingWeekdays: []time.Weekday{time.Weekday(9)}})
	require.ErrorIs(t, err, ErrCalendarConfig)
}

func TestNextWorkingDayRollsForwardInclusive(t *testing.T) {
	cal, err := NewCalendar(CalendarConfig{
		NonWorkingWeekdays: []time.Weekday{time.Sunday},
		Holidays:           []string{"2026-01-05"}, // Monday
	})
	require.NoError(t, err)

	// Sunday rolls over the Monday holiday onto Tuesday.
	require.Equal(t, date(2026, 1, 6), cal.NextWorkingDay(date(2026, 1, 4)))
	// A working day stays put.
	require.Equal(t, date(2026, 1, 6), cal.NextWorkingDay(date(2026, 1, 6)))
}

func TestIdentityCalendarWhenUnconfigured(t *testing.T) {
	cal := IdentityCalendar()
	require.True(t, cal.IsWorkingDay(date(2026, 1, 4))) // Sunday still working

	var nilCal *Calendar
	require.True(t, nilCal.IsWorkingDay(date(2026, 1, 4)))
	require.Equal(t, date(2026, 1, 4), nilCal.NextWorkingDay(date(2026, 1, 4)))
}

func TestCountWorkingDaysBetweenIsExclusive(t *testing.T) {
	cal := SundayCalendar()

	// Mon 2026-01-05 .. Mon 2026-01-12: Tue-Sat working, Sunday skipped.
	require.Equal(t, 5, cal.CountWorkingDaysBetween(date(2026, 1, 5), date(2026, 1, 12)))
	// Adjacent days have nothing strictly between them.
	require.Equal(t, 0, cal.CountWorkingDaysBetween(date(2026, 1, 5), date(2026, 1, 6)))
	// Inverted range counts zero.
	require.Equal(t, 0, cal.CountWorkingDaysBetween(date(2026, 1, 12), date(2026, 1, 5)))
}

func TestAddWorkingDaysSkipsNonWorking(t *testing.T) {
	cal := SundayCalendar()

	// Friday + 2 working days: Saturday, then Monday (Sunday skipped).
	require.Equal(t, date(2026, 1, 12), cal.AddWorkingDays(date(2026, 1, 9), 2))
	require.Equal(t, date(2026, 1, 9), cal.AddWorkingDays(date(2026, 1, 9), 0))
}
