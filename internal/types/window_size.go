package types

import (
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
)

type WindowSize string

const (
	WindowSizeMinute WindowSize = "MINUTE"
	WindowSizeHour   WindowSize = "HOUR"
	WindowSizeDay    WindowSize = "DAY"
	WindowSizeMonth  WindowSize = "MONTH"
)

func (w WindowSize) Validate() error {
	if w == "" {
		return nil
	}

	switch w {
	case WindowSizeMinute, WindowSizeHour, WindowSizeDay, WindowSizeMonth:
		return nil
	default:
		return ierr.NewError("invalid window size").
			WithHint("Invalid window size").
			WithReportableDetails(
				map[string]any{
					"window_size": w,
				},
			).
			Mark(ierr.ErrValidation)
	}
}

// Truncate floors t to the start of the window containing it. Months are
// calendar months, everything else is a fixed duration.
func (w WindowSize) Truncate(t time.Time) time.Time {
	switch w {
	case WindowSizeMinute:
		return t.Truncate(time.Minute)
	case WindowSizeHour:
		return t.Truncate(time.Hour)
	case WindowSizeDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case WindowSizeMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

// Next returns the start of the window after the one beginning at start
func (w WindowSize) Next(start time.Time) time.Time {
	switch w {
	case WindowSizeMinute:
		return start.Add(time.Minute)
	case WindowSizeHour:
		return start.Add(time.Hour)
	case WindowSizeDay:
		return AddClampedDate(start, 0, 0, 1)
	case WindowSizeMonth:
		return AddClampedDate(start, 0, 1, 0)
	default:
		return start
	}
}
