package types

import (
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
)

// UsagePeriodInterval is the recurrence cadence of a usage period. It is one
// of the named calendar intervals or a raw ISO-8601 duration string such as
// P14D or PT12H.
type UsagePeriodInterval string

const (
	USAGE_PERIOD_INTERVAL_DAY   UsagePeriodInterval = "DAY"
	USAGE_PERIOD_INTERVAL_WEEK  UsagePeriodInterval = "WEEK"
	USAGE_PERIOD_INTERVAL_MONTH UsagePeriodInterval = "MONTH"
	USAGE_PERIOD_INTERVAL_YEAR  UsagePeriodInterval = "YEAR"
)

// Duration resolves the interval to its ISODuration equivalent. Unknown
// values are parsed as raw ISO-8601 duration strings.
func (i UsagePeriodInterval) Duration() (ISODuration, error) {
	switch i {
	case USAGE_PERIOD_INTERVAL_DAY:
		return ISODuration{Days: 1}, nil
	case USAGE_PERIOD_INTERVAL_WEEK:
		return ISODuration{Weeks: 1}, nil
	case USAGE_PERIOD_INTERVAL_MONTH:
		return ISODuration{Months: 1}, nil
	case USAGE_PERIOD_INTERVAL_YEAR:
		return ISODuration{Years: 1}, nil
	default:
		return ParseISODuration(string(i))
	}
}

func (i UsagePeriodInterval) Validate() error {
	if i == "" {
		return ierr.NewError("usage period interval is required").
			WithHint("Please provide a usage period interval").
			Mark(ierr.ErrValidation)
	}
	_, err := i.Duration()
	return err
}

// UsagePeriod describes the recurring window over which usage is measured:
// an interval anchored at an absolute timestamp.
type UsagePeriod struct {
	Interval UsagePeriodInterval `json:"interval"`
	Anchor   time.Time           `json:"anchor"`
}

func (u UsagePeriod) Validate() error {
	if err := u.Interval.Validate(); err != nil {
		return err
	}
	if u.Anchor.IsZero() {
		return ierr.NewError("usage period anchor is required").
			WithHint("Please provide an anchor timestamp for the usage period").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Period is a half-open [From, To) time interval
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t lies within the half-open interval
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}
