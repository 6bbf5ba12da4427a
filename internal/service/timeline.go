package service

import (
	"context"
	"sort"
	"time"

	"github.com/meterflow/meterflow/internal/domain/burndown"
	"github.com/meterflow/meterflow/internal/domain/entitlement"
	"github.com/meterflow/meterflow/internal/domain/events"
	"github.com/meterflow/meterflow/internal/domain/grant"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/shopspring/decimal"
)

// loadMeteredEntitlement fetches an entitlement and verifies it is a live
// metered one. Deleted entitlements surface as not found.
func loadMeteredEntitlement(ctx context.Context, repo entitlement.Repository, id string) (*entitlement.Entitlement, error) {
	e, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.IsDeleted() {
		return nil, ierr.NewError("entitlement not found").
			WithHint("The entitlement has been deleted").
			WithReportableDetails(map[string]interface{}{
				"entitlement_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	if !e.IsMetered() {
		return nil, ierr.NewError("only metered entitlements carry a balance").
			WithHint("Boolean and static entitlements have no usage period").
			WithReportableDetails(map[string]interface{}{
				"entitlement_id": id,
				"feature_type":   e.FeatureType,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	return e, nil
}

// segmentRun is one burn-down computation over a stretch in which the grant
// set is constant, with the balances it started from.
type segmentRun struct {
	From    time.Time
	To      time.Time
	Grants  []*grant.Grant
	Opening map[string]decimal.Decimal
	Result  *burndown.Result
}

// openingBalanceAt sums the opening balances of the grants active at the
// given instant. Grants without an explicit opening start at their amount.
func (s *segmentRun) openingBalanceAt(at time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, g := range s.Grants {
		if !g.IsActiveAt(at) {
			continue
		}
		opening := g.Amount
		if b, ok := s.Opening[g.ID]; ok {
			opening = b
		}
		balance = balance.Add(opening)
	}
	return balance
}

// segmentBoundaries collects the instants between from and to at which the
// grant set changes: activation, expiry and void of any grant, plus the
// extra marks (period resets). The result is sorted, deduplicated and always
// starts with from and ends with to.
func segmentBoundaries(from, to time.Time, grants []*grant.Grant, marks []time.Time) []time.Time {
	candidates := make([]time.Time, 0, len(grants)*3+len(marks)+2)
	for _, g := range grants {
		candidates = append(candidates, g.EffectiveAt)
		if g.ExpiresAt != nil {
			candidates = append(candidates, *g.ExpiresAt)
		}
		if g.VoidedAt != nil {
			candidates = append(candidates, *g.VoidedAt)
		}
	}
	candidates = append(candidates, marks...)

	boundaries := []time.Time{from}
	for _, c := range candidates {
		if c.After(from) && c.Before(to) {
			boundaries = append(boundaries, c)
		}
	}
	boundaries = append(boundaries, to)

	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })

	unique := boundaries[:1]
	for _, b := range boundaries[1:] {
		if !b.Equal(unique[len(unique)-1]) {
			unique = append(unique, b)
		}
	}
	return unique
}

// runTimeline walks the boundary list and runs the burn-down engine once per
// segment, chaining each segment's final balances into the next segment's
// opening balances. Only grants effective at a segment's start participate
// in it; carried overage is consumed in the first segment.
func runTimeline(
	ctx context.Context,
	engine *burndown.Engine,
	entitlementID string,
	grants []*grant.Grant,
	series []*events.UsageEvent,
	boundaries []time.Time,
	carriedOverage decimal.Decimal,
) ([]*segmentRun, error) {
	runs := make([]*segmentRun, 0, len(boundaries)-1)
	opening := map[string]decimal.Decimal{}

	for i := 0; i < len(boundaries)-1; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		segFrom, segTo := boundaries[i], boundaries[i+1]

		segGrants := make([]*grant.Grant, 0, len(grants))
		for _, g := range grants {
			if !g.EffectiveAt.After(segFrom) {
				segGrants = append(segGrants, g)
			}
		}

		segSeries := make([]*events.UsageEvent, 0, len(series))
		for _, ev := range series {
			if !ev.Timestamp.Before(segFrom) && ev.Timestamp.Before(segTo) {
				segSeries = append(segSeries, ev)
			}
		}

		carried := decimal.Zero
		if i == 0 {
			carried = carriedOverage
		}

		segOpening := make(map[string]decimal.Decimal, len(opening))
		for id, b := range opening {
			segOpening[id] = b
		}

		result, err := engine.Run(burndown.Input{
			EntitlementID:   entitlementID,
			Grants:          segGrants,
			UsageSeries:     segSeries,
			OpeningBalances: segOpening,
			CarriedOverage:  carried,
		})
		if err != nil {
			return nil, err
		}

		runs = append(runs, &segmentRun{
			From:    segFrom,
			To:      segTo,
			Grants:  segGrants,
			Opening: segOpening,
			Result:  result,
		})

		for id, b := range result.FinalBalances {
			opening[id] = b
		}
	}

	return runs, nil
}
