// Package recurrence computes the next due date of a recurring expense.
package recurrence

import (
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
)

// NextOccurrence returns the next date the schedule fires after now.
//
//   - daily:   now + 1 day
//   - weekly:  next matching weekday, never today (a same-day match is 7 days out)
//   - monthly: DayOfMonth of the following month, clamped to that month's last day
//   - yearly:  same month and DayOfMonth next year, with the same clamp
//
// The clock time of now is preserved. An unknown frequency yields
// *domain.ErrUnrecognizedFrequency; a missing day field yields *domain.ErrValidation.
func NextOccurrence(s domain.Schedule, now time.Time) (time.Time, error) {
	switch s.Frequency {
	case domain.FrequencyDaily:
		return now.AddDate(0, 0, 1), nil

	case domain.FrequencyWeekly:
		if s.DayOfWeek == nil {
			return time.Time{}, &domain.ErrValidation{Field: "dayOfWeek", Message: "required for weekly frequency"}
		}
		offset := (*s.DayOfWeek - int(now.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return now.AddDate(0, 0, offset), nil

	case domain.FrequencyMonthly:
		if s.DayOfMonth == nil {
			return time.Time{}, &domain.ErrValidation{Field: "dayOfMonth", Message: "required for monthly frequency"}
		}
		y, m, _ := now.Date()
		return clampedDate(y, m+1, *s.DayOfMonth, now), nil

	case domain.FrequencyYearly:
		if s.DayOfMonth == nil {
			return time.Time{}, &domain.ErrValidation{Field: "dayOfMonth", Message: "required for yearly frequency"}
		}
		y, m, _ := now.Date()
		return clampedDate(y+1, m, *s.DayOfMonth, now), nil
	}

	return time.Time{}, &domain.ErrUnrecognizedFrequency{Frequency: s.Frequency}
}

// clampedDate builds year/month/day at now's clock time and location.
// Days past the end of the month land on the month's last day instead of
// spilling into the next one (time.Date would normalise Feb 31 to Mar 3).
func clampedDate(year int, month time.Month, day int, now time.Time) time.Time {
	// Normalise month overflow (December + 1) before looking up the length.
	first := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	year, month = first.Year(), first.Month()

	if last := daysIn(year, month, now.Location()); day > last {
		day = last
	}
	return time.Date(year, month, day, now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), now.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// Validate checks that a schedule carries the fields its frequency needs
// and that those fields are in range.
func Validate(s domain.Schedule) error {
	switch s.Frequency {
	case domain.FrequencyDaily:
		return nil
	case domain.FrequencyWeekly:
		if s.DayOfWeek == nil {
			return &domain.ErrValidation{Field: "dayOfWeek", Message: "required for weekly frequency"}
		}
		if *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return &domain.ErrValidation{Field: "dayOfWeek", Message: "must be between 0 (Sunday) and 6"}
		}
		return nil
	case domain.FrequencyMonthly, domain.FrequencyYearly:
		if s.DayOfMonth == nil {
			return &domain.ErrValidation{Field: "dayOfMonth", Message: "required for " + string(s.Frequency) + " frequency"}
		}
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return &domain.ErrValidation{Field: "dayOfMonth", Message: "must be between 1 and 31"}
		}
		return nil
	case "":
		return &domain.ErrValidation{Field: "frequency", Message: "required for recurring expenses"}
	}
	return &domain.ErrUnrecognizedFrequency{Frequency: s.Frequency}
}
