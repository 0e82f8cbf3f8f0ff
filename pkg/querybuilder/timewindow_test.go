package querybuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func TestResolveTimeWindow(t *testing.T) {
	// Thursday.
	now := time.Date(2024, time.May, 16, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		tw         models.TimeWindow
		start, end string
	}{
		{"last 7 days", models.TimeWindow{Kind: models.WindowLastNDays, N: 7}, "2024-05-09", "2024-05-17"},
		{"last 4 weeks", models.TimeWindow{Kind: models.WindowLastNWeeks, N: 4}, "2024-04-18", "2024-05-17"},
		{"last 3 months", models.TimeWindow{Kind: models.WindowLastNMonths, N: 3}, "2024-02-16", "2024-05-17"},
		{"this week", models.TimeWindow{Kind: models.WindowThisWeek}, "2024-05-13", "2024-05-20"},
		{"this month", models.TimeWindow{Kind: models.WindowThisMonth}, "2024-05-01", "2024-06-01"},
		{"last month", models.TimeWindow{Kind: models.WindowLastMonth}, "2024-04-01", "2024-05-01"},
		{"this quarter", models.TimeWindow{Kind: models.WindowThisQuarter}, "2024-04-01", "2024-07-01"},
		{"this year", models.TimeWindow{Kind: models.WindowThisYear}, "2024-01-01", "2025-01-01"},
		{"custom", models.TimeWindow{Kind: models.WindowCustom, Start: "2024-01-01", End: "2024-03-31"}, "2024-01-01", "2024-04-01"},
		{"custom single day", models.TimeWindow{Kind: models.WindowCustom, Start: "2024-02-29", End: "2024-02-29"}, "2024-02-29", "2024-03-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ResolveTimeWindow(&tt.tw, now)
			require.NoError(t, err)
			assert.Equal(t, tt.start, start.Format(dateLayout))
			assert.Equal(t, tt.end, end.Format(dateLayout))
		})
	}
}

func TestResolveTimeWindow_LastNMonthsAtMonthEnd(t *testing.T) {
	tests := []struct {
		now   string
		n     int
		start string
	}{
		{"2026-03-31", 1, "2026-02-28"},
		{"2026-05-31", 1, "2026-04-30"},
		{"2026-03-30", 1, "2026-02-28"},
		{"2024-03-31", 1, "2024-02-29"},
		{"2024-02-29", 12, "2023-02-28"},
		{"2024-02-29", 1, "2024-01-29"},
		{"2026-01-31", 2, "2025-11-30"},
		{"2026-07-31", 5, "2026-02-28"},
		{"2026-03-15", 1, "2026-02-15"},
	}

	for _, tt := range tests {
		t.Run(tt.now, func(t *testing.T) {
			now, err := time.Parse(dateLayout, tt.now)
			require.NoError(t, err)
			start, end, err := ResolveTimeWindow(&models.TimeWindow{Kind: models.WindowLastNMonths, N: tt.n}, now)
			require.NoError(t, err)
			assert.Equal(t, tt.start, start.Format(dateLayout))
			assert.Equal(t, now.AddDate(0, 0, 1).Format(dateLayout), end.Format(dateLayout))
		})
	}
}

func TestResolveTimeWindow_WeekStartsMonday(t *testing.T) {
	sunday := time.Date(2024, time.May, 19, 0, 0, 0, 0, time.UTC)
	start, end, err := ResolveTimeWindow(&models.TimeWindow{Kind: models.WindowThisWeek}, sunday)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-13", start.Format(dateLayout))
	assert.Equal(t, "2024-05-20", end.Format(dateLayout))
}

func TestResolveTimeWindow_Errors(t *testing.T) {
	now := time.Date(2024, time.May, 16, 0, 0, 0, 0, time.UTC)
	for _, tw := range []models.TimeWindow{
		{Kind: models.WindowLastNDays},
		{Kind: models.WindowCustom, Start: "yesterday", End: "2024-01-01"},
		{Kind: models.WindowCustom, Start: "2024-01-01", End: "2024-13-01"},
		{Kind: models.WindowCustom, Start: "2024-02-01", End: "2024-01-01"},
		{Kind: "fortnight"},
	} {
		_, _, err := ResolveTimeWindow(&tw, now)
		require.Error(t, err, tw)
		assert.Equal(t, apperrors.KindInvalidTimeWindow, apperrors.KindOf(err))
	}
}
