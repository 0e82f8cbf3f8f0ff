package querybuilder

import (
	"time"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

const dateLayout = "2006-01-02"

// ResolveTimeWindow turns a window descriptor into a half-open date range
// [start, end) relative to now. Relative windows end tomorrow so that today
// is included; "last 4 weeks" starts 28 days before today.
func ResolveTimeWindow(tw *models.TimeWindow, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)
	invalid := func(format string, args ...any) (time.Time, time.Time, error) {
		return time.Time{}, time.Time{}, apperrors.New(apperrors.KindInvalidTimeWindow, "time_window", string(tw.Kind), format, args...)
	}

	if tw.Kind.NeedsCount() && tw.N < 1 {
		return invalid("%s needs a positive n", tw.Kind)
	}

	switch tw.Kind {
	case models.WindowLastNDays:
		return today.AddDate(0, 0, -tw.N), tomorrow, nil
	case models.WindowLastNWeeks:
		return today.AddDate(0, 0, -7*tw.N), tomorrow, nil
	case models.WindowLastNMonths:
		return monthsBefore(today, tw.N), tomorrow, nil
	case models.WindowThisWeek:
		offset := (int(today.Weekday()) + 6) % 7 // weeks start on Monday
		start := today.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case models.WindowThisMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case models.WindowLastMonth:
		end := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return end.AddDate(0, -1, 0), end, nil
	case models.WindowThisQuarter:
		firstMonth := time.Month((int(today.Month())-1)/3*3 + 1)
		start := time.Date(today.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0), nil
	case models.WindowThisYear:
		start := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	case models.WindowCustom:
		start, err := time.Parse(dateLayout, tw.Start)
		if err != nil {
			return invalid("invalid start date %q", tw.Start)
		}
		end, err := time.Parse(dateLayout, tw.End)
		if err != nil {
			return invalid("invalid end date %q", tw.End)
		}
		if start.After(end) {
			return invalid("start %s is after end %s", tw.Start, tw.End)
		}
		return start, end.AddDate(0, 0, 1), nil
	}
	return invalid("unsupported time window kind %q", tw.Kind)
}

// monthsBefore steps back n calendar months, clamping the day to the target
// month's length: 31 March minus one month is 28 February, not 3 March.
func monthsBefore(day time.Time, n int) time.Time {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -n, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(day.Day(), lastDay)-1)
}
