package usageperiod

import (
	"testing"
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodContaining(t *testing.T) {
	tests := []struct {
		name     string
		anchor   time.Time
		interval types.UsagePeriodInterval
		at       time.Time
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "daily_same_day",
			anchor:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			interval: types.USAGE_PERIOD_INTERVAL_DAY,
			at:       time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC),
			wantFrom: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily_before_anchor",
			anchor:   time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
			interval: types.USAGE_PERIOD_INTERVAL_DAY,
			at:       time.Date(2023, 6, 10, 12, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2023, 6, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "weekly_mid_week",
			anchor:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), // a Monday
			interval: types.USAGE_PERIOD_INTERVAL_WEEK,
			at:       time.Date(2024, 1, 18, 9, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly_clamped_jan31_anchor",
			anchor:   time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
			interval: types.USAGE_PERIOD_INTERVAL_MONTH,
			at:       time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly_boundary_is_exclusive",
			anchor:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			interval: types.USAGE_PERIOD_INTERVAL_MONTH,
			at:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "yearly_leap_anchor",
			anchor:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			interval: types.USAGE_PERIOD_INTERVAL_YEAR,
			at:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "iso_duration_twelve_hours",
			anchor:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			interval: types.UsagePeriodInterval("PT12H"),
			at:       time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "iso_duration_fourteen_days",
			anchor:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			interval: types.UsagePeriodInterval("P14D"),
			at:       time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "anchor_far_in_future",
			anchor:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			interval: types.USAGE_PERIOD_INTERVAL_MONTH,
			at:       time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			period, err := PeriodContaining(tt.anchor, tt.interval, tt.at)
			require.NoError(t, err)
			assert.True(t, period.From.Equal(tt.wantFrom), "from: got %v want %v", period.From, tt.wantFrom)
			assert.True(t, period.To.Equal(tt.wantTo), "to: got %v want %v", period.To, tt.wantTo)
			assert.True(t, period.Contains(tt.at))
		})
	}
}

func TestPeriodContaining_InvalidInterval(t *testing.T) {
	_, err := PeriodContaining(time.Now().UTC(), types.UsagePeriodInterval("FORTNIGHT"), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, ierr.IsInvalidInterval(err))
}

// Periods must tile the timeline: no overlaps, no gaps, even across clamped
// month boundaries from an end-of-month anchor.
func TestPeriodContaining_TilesWithoutGaps(t *testing.T) {
	anchor := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)
	at := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 24; i++ {
		period, err := PeriodContaining(anchor, types.USAGE_PERIOD_INTERVAL_MONTH, at)
		require.NoError(t, err)
		require.True(t, period.Contains(at))

		// The next period starts exactly where this one ends
		next, err := PeriodContaining(anchor, types.USAGE_PERIOD_INTERVAL_MONTH, period.To)
		require.NoError(t, err)
		require.True(t, next.From.Equal(period.To), "gap or overlap at %v: next.From=%v", period.To, next.From)

		// An instant just before the boundary still belongs to this period
		justBefore := period.To.Add(-time.Nanosecond)
		prev, err := PeriodContaining(anchor, types.USAGE_PERIOD_INTERVAL_MONTH, justBefore)
		require.NoError(t, err)
		require.True(t, prev.From.Equal(period.From))

		at = period.To
	}
}

func TestNextPeriodStart(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := NextPeriodStart(anchor, types.USAGE_PERIOD_INTERVAL_WEEK, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)))
}
