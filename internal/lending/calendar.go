package lending

import (
	"fmt"
	"time"
)

// CalendarConfig is the raw, per-business working-day configuration as the
// persistence layer stores it. Holidays use the YYYY-MM-DD format.
type CalendarConfig struct {
	NonWorkingWeekdays []time.Weekday `json:"non_working_weekdays"`
	Holidays           []string       `json:"holidays"`
}

// Calendar resolves working days for due-date placement and penalty-day
// counting. The zero value treats every day as working, which keeps
// schedule generation deterministic when no calendar data exists.
type Calendar struct {
	nonWorking map[time.Weekday]bool
	holidays   map[string]bool
}

const holidayLayout = "2006-01-02"

// NewCalendar builds a Calendar from explicit weekday rules and holidays.
// A malformed holiday date yields ErrCalendarConfig; callers are expected
// to fall back to the identity calendar instead of aborting.
func NewCalendar(cfg CalendarConfig) (*Calendar, error) {
	c := &Calendar{
		nonWorking: make(map[time.Weekday]bool, len(cfg.NonWorkingWeekdays)),
		holidays:   make(map[string]bool, len(cfg.Holidays)),
	}
	for _, wd := range cfg.NonWorkingWeekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return nil, fmt.Errorf("%w: weekday %d", ErrCalendarConfig, wd)
		}
		c.nonWorking[wd] = true
	}
	for _, h := range cfg.Holidays {
		d, err := time.Parse(holidayLayout, h)
		if err != nil {
			return nil, fmt.Errorf("%w: holiday %q", ErrCalendarConfig, h)
		}
		c.holidays[d.Format(holidayLayout)] = true
	}
	return c, nil
}

// IdentityCalendar returns a calendar where every day is a working day.
func IdentityCalendar() *Calendar {
	return &Calendar{}
}

// SundayCalendar returns the simplest deployment default: Sunday is the
// only non-working day.
func SundayCalendar() *Calendar {
	return &Calendar{nonWorking: map[time.Weekday]bool{time.Sunday: true}}
}

// IsWorkingDay reports whether the date is a working day.
func (c *Calendar) IsWorkingDay(date time.Time) bool {
	if c == nil {
		return true
	}
	if c.nonWorking[date.Weekday()] {
		return false
	}
	if len(c.holidays) > 0 && c.holidays[date.Format(holidayLayout)] {
		return false
	}
	return true
}

// NextWorkingDay rolls the date forward, one day at a time, until it lands
// on a working day. The start date itself counts: a non-working input moves
// forward, never backward.
func (c *Calendar) NextWorkingDay(date time.Time) time.Time {
	for !c.IsWorkingDay(date) {
		date = date.AddDate(0, 0, 1)
	}
	return date
}

// AddWorkingDays advances the date by n working days, skipping non-working
// days one at a time.
func (c *Calendar) AddWorkingDays(date time.Time, n int) time.Time {
	for i := 0; i < n; i++ {
		date = date.AddDate(0, 0, 1)
		date = c.NextWorkingDay(date)
	}
	return date
}

// CountWorkingDaysBetween counts working days strictly between from and to,
// exclusive of both endpoints. Returns 0 when to is not after from.
func (c *Calendar) CountWorkingDaysBetween(from, to time.Time) int {
	from = truncateToDay(from)
	to = truncateToDay(to)
	count := 0
	for d := from.AddDate(0, 0, 1); d.Before(to); d = d.AddDate(0, 0, 1) {
		if c.IsWorkingDay(d) {
			count++
		}
	}
	return count
}
