package usageperiod

import (
	"time"

	"github.com/meterflow/meterflow/internal/types"
)

// PeriodContaining computes the usage period that contains the instant at,
// given a recurring interval anchored at an absolute timestamp. Periods tile
// the whole timeline in both directions: the anchor may lie in the past or
// the future relative to at, and every instant belongs to exactly one
// half-open [from, to) period.
//
// Calendar intervals (months, years) use clamped arithmetic, and every
// boundary is derived directly from the anchor rather than from the previous
// boundary, so a Jan 31 anchor yields ...Jan 31, Feb 28, Mar 31... without
// drifting. Pure function, safe for concurrent use.
func PeriodContaining(anchor time.Time, interval types.UsagePeriodInterval, at time.Time) (types.Period, error) {
	dur, err := interval.Duration()
	if err != nil {
		return types.Period{}, err
	}

	// Seed the period index with an estimate, then walk to the exact index.
	// The estimate is off by at most a few steps because interval lengths
	// vary only by calendar clamping.
	n := 0
	if approx := dur.Approx(); approx > 0 {
		n = int(at.Sub(anchor) / approx)
	}

	from := dur.AddTo(anchor, n)
	for from.After(at) {
		n--
		from = dur.AddTo(anchor, n)
	}
	for {
		to := dur.AddTo(anchor, n+1)
		if to.After(at) {
			return types.Period{From: from, To: to}, nil
		}
		n++
		from = to
	}
}

// NextPeriodStart returns the first period boundary strictly after at
func NextPeriodStart(anchor time.Time, interval types.UsagePeriodInterval, at time.Time) (time.Time, error) {
	period, err := PeriodContaining(anchor, interval, at)
	if err != nil {
		return time.Time{}, err
	}
	return period.To, nil
}
