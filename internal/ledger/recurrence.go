package ledger

import (
	"fmt"
	"time"

	"github.com/splitledger/splitledger/internal/models"
)

// NextDate projects the occurrence after prior for the given recurrence
// rule. Dates are treated as UTC and the time of day is preserved.
//
// DAILY adds one calendar day and WEEKLY adds seven. MONTHLY targets the
// same day of the following month; when that day does not exist there
// (the 31st in a 30-day month, the 29th–31st in February) the day is walked
// back until it does. Once a clamp happens, later monthly projections
// continue from the clamped day rather than snapping back — Jan 31 becomes
// Feb 28 becomes Mar 28, never Mar 31. That is documented legacy behavior
// and kept on purpose.
func NextDate(rule models.RecurrenceRule, prior time.Time) (time.Time, error) {
	prior = prior.UTC()
	switch rule {
	case models.RecurrenceDaily:
		return prior.AddDate(0, 0, 1), nil
	case models.RecurrenceWeekly:
		return prior.AddDate(0, 0, 7), nil
	case models.RecurrenceMonthly:
		return nextMonth(prior), nil
	}
	return time.Time{}, fmt.Errorf("no next date for recurrence rule %q", rule)
}

// nextMonth computes the clamped same-day-next-month date. time.Time's
// AddDate normalizes overflow (Jan 31 + 1 month = Mar 3), which is exactly
// the behavior this must avoid, so the target date is assembled by hand.
func nextMonth(prior time.Time) time.Time {
	year, month, day := prior.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day,
		prior.Hour(), prior.Minute(), prior.Second(), prior.Nanosecond(), time.UTC)
}

// daysInMonth returns the number of days in the given month, leap years
// included. Day 0 of the following month normalizes to this month's last day.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
