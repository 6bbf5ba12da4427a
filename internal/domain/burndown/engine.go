package burndown

import (
	"sort"
	"time"

	"github.com/meterflow/meterflow/internal/domain/events"
	"github.com/meterflow/meterflow/internal/domain/grant"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/shopspring/decimal"
)

// Input is a single burn-down computation over one stretch of time in which
// the grant set and its precedence order do not change.
type Input struct {
	EntitlementID string
	// Grants is the full grant set in scope; every grant must be effective
	// no later than the first usage event
	Grants []*grant.Grant
	// UsageSeries holds pre-aggregated usage deltas, ordered by timestamp
	UsageSeries []*events.UsageEvent
	// OpeningBalances overrides the starting balance per grant ID, carrying
	// rolled-over balances across period resets. Grants without an entry
	// start at their full amount.
	OpeningBalances map[string]decimal.Decimal
	// CarriedOverage is pre-consumed allowance carried in from the previous
	// period when overage is preserved at reset. It is deducted from grant
	// balances before any usage in the series, and is not counted as usage
	// of this period.
	CarriedOverage decimal.Decimal
}

// Result holds per-grant balances after the series has been applied.
// FinalBalances has an entry for every input grant, including grants that
// expired or were voided mid-series; their balance simply stops moving.
type Result struct {
	FinalBalances map[string]decimal.Decimal
	PerGrantUsage map[string]decimal.Decimal
	Overage       decimal.Decimal
	TotalUsage    decimal.Decimal
}

// BalanceAt sums the remaining balances of the grants active at the given
// instant.
func (r *Result) BalanceAt(grants []*grant.Grant, at time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, g := range grants {
		if g.IsActiveAt(at) {
			balance = balance.Add(r.FinalBalances[g.ID])
		}
	}
	return balance
}

// Engine deducts time-ordered usage from a grant set in precedence order.
// It is a pure computation: no I/O, no stored state, safe for concurrent use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Run applies the usage series to the grant set.
//
// For each usage delta, grants are tried in burn-down precedence order
// (priority ascending, then soonest expiry, then earliest creation); only
// grants active at the delta's timestamp are eligible. When every eligible
// grant is exhausted the remainder accrues as overage. Per-grant balances
// never go negative.
//
// Conservation holds: the per-grant usages plus the overage always sum to
// the series total (carried overage is accounted separately).
func (e *Engine) Run(in Input) (*Result, error) {
	if err := e.validate(in); err != nil {
		return nil, err
	}

	ordered := make([]*grant.Grant, len(in.Grants))
	copy(ordered, in.Grants)
	grant.SortForBurndown(ordered)

	series := make([]*events.UsageEvent, len(in.UsageSeries))
	copy(series, in.UsageSeries)
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})

	result := &Result{
		FinalBalances: make(map[string]decimal.Decimal, len(ordered)),
		PerGrantUsage: make(map[string]decimal.Decimal, len(ordered)),
		Overage:       decimal.Zero,
		TotalUsage:    decimal.Zero,
	}
	for _, g := range ordered {
		opening := g.Amount
		if in.OpeningBalances != nil {
			if b, ok := in.OpeningBalances[g.ID]; ok {
				opening = b
			}
		}
		result.FinalBalances[g.ID] = opening
		result.PerGrantUsage[g.ID] = decimal.Zero
	}

	// Carried overage consumes allowance before any usage of this stretch.
	// It deducts at the first instant the whole grant set is effective,
	// which validation guarantees is no later than the first usage event.
	if in.CarriedOverage.IsPositive() {
		at := latestEffective(ordered)
		remainder := e.deduct(result, ordered, at, in.CarriedOverage, false)
		result.Overage = result.Overage.Add(remainder)
	}

	for _, ev := range series {
		if ev.Delta.IsZero() {
			continue
		}
		result.TotalUsage = result.TotalUsage.Add(ev.Delta)
		remainder := e.deduct(result, ordered, ev.Timestamp, ev.Delta, true)
		result.Overage = result.Overage.Add(remainder)
	}

	return result, nil
}

// deduct takes delta from grant balances in precedence order and returns the
// uncovered remainder. attribute controls whether the consumption counts as
// usage of this stretch.
func (e *Engine) deduct(result *Result, ordered []*grant.Grant, at time.Time, delta decimal.Decimal, attribute bool) decimal.Decimal {
	remaining := delta
	for _, g := range ordered {
		if remaining.IsZero() {
			break
		}
		if !g.IsActiveAt(at) {
			continue
		}
		balance := result.FinalBalances[g.ID]
		if !balance.IsPositive() {
			continue
		}
		take := decimal.Min(balance, remaining)
		result.FinalBalances[g.ID] = balance.Sub(take)
		if attribute {
			result.PerGrantUsage[g.ID] = result.PerGrantUsage[g.ID].Add(take)
		}
		remaining = remaining.Sub(take)
	}
	return remaining
}

func (e *Engine) validate(in Input) error {
	if in.EntitlementID == "" {
		return ierr.NewError("entitlement_id is required").
			WithHint("Please provide a valid entitlement ID").
			Mark(ierr.ErrValidation)
	}

	for _, ev := range in.UsageSeries {
		if err := ev.Validate(); err != nil {
			return err
		}
	}

	if len(in.UsageSeries) == 0 {
		return nil
	}

	first := in.UsageSeries[0].Timestamp
	for _, ev := range in.UsageSeries[1:] {
		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
	}
	for _, g := range in.Grants {
		if g.EffectiveAt.After(first) {
			return ierr.NewError("grant set contains a grant effective after the first usage event").
				WithHint("Split the computation at each grant activation instant").
				WithReportableDetails(map[string]interface{}{
					"grant_id":          g.ID,
					"effective_at":      g.EffectiveAt,
					"first_usage_event": first,
				}).
				Mark(ierr.ErrInconsistentGrantSet)
		}
	}
	return nil
}

func latestEffective(grants []*grant.Grant) time.Time {
	var at time.Time
	for _, g := range grants {
		if g.EffectiveAt.After(at) {
			at = g.EffectiveAt
		}
	}
	return at
}
