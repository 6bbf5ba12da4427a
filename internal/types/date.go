package types

import (
	"regexp"
	"strconv"
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
)

// AddClampedDate adds the given number of years, months and days to t using
// calendar arithmetic that clamps to the last valid day of the target month.
// Adding one month to Jan 31 lands on Feb 28 (or Feb 29 in a leap year)
// instead of rolling over into March. Negative values are supported so period
// boundaries tile backwards as well as forwards.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.AddDate(0, 0, -1).Day()

	newD := d
	if newD > lastDay {
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location()).AddDate(0, 0, days)
}

// ISODuration is a parsed ISO-8601 duration. The date part uses calendar
// arithmetic, the time part is a fixed duration.
type ISODuration struct {
	Years   int
	Months  int
	Weeks   int
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration parses strings like P1M, P30D, PT12H or P1DT12H.
func ParseISODuration(s string) (ISODuration, error) {
	matches := isoDurationRe.FindStringSubmatch(s)
	if matches == nil || s == "P" || s == "PT" {
		return ISODuration{}, ierr.NewError("failed to parse ISO-8601 duration").
			WithHint("Interval must be a valid ISO-8601 duration, e.g. P1M or PT12H").
			WithReportableDetails(map[string]interface{}{
				"interval": s,
			}).
			Mark(ierr.ErrInvalidInterval)
	}

	atoi := func(v string) int {
		if v == "" {
			return 0
		}
		n, _ := strconv.Atoi(v)
		return n
	}

	d := ISODuration{
		Years:   atoi(matches[1]),
		Months:  atoi(matches[2]),
		Weeks:   atoi(matches[3]),
		Days:    atoi(matches[4]),
		Hours:   atoi(matches[5]),
		Minutes: atoi(matches[6]),
		Seconds: atoi(matches[7]),
	}

	if d.IsZero() {
		return ISODuration{}, ierr.NewError("zero length interval").
			WithHint("Interval must have a positive length").
			WithReportableDetails(map[string]interface{}{
				"interval": s,
			}).
			Mark(ierr.ErrInvalidInterval)
	}

	return d, nil
}

// IsZero reports whether every component of the duration is zero
func (d ISODuration) IsZero() bool {
	return d == ISODuration{}
}

// IsCalendar reports whether the duration has a calendar-arithmetic component
func (d ISODuration) IsCalendar() bool {
	return d.Years != 0 || d.Months != 0
}

// AddTo applies the duration n times to t. Calendar components are always
// applied relative to t itself, never chained, so repeated tiling from an
// anchor stays deterministic under day clamping.
func (d ISODuration) AddTo(t time.Time, n int) time.Time {
	result := AddClampedDate(t, n*d.Years, n*d.Months, n*(7*d.Weeks+d.Days))
	return result.Add(time.Duration(n) * d.Fixed())
}

// Fixed returns the fixed-length (time) part of the duration
func (d ISODuration) Fixed() time.Duration {
	return time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second
}

// Approx returns an approximate absolute length used to seed period index
// estimation. Callers must still adjust around the estimate.
func (d ISODuration) Approx() time.Duration {
	days := 365*d.Years + 30*d.Months + 7*d.Weeks + d.Days
	return time.Duration(days)*24*time.Hour + d.Fixed()
}
