package service

import (
	"context"
	"time"

	"github.com/meterflow/meterflow/internal/api/dto"
	"github.com/meterflow/meterflow/internal/domain/burndown"
	"github.com/meterflow/meterflow/internal/domain/entitlement"
	"github.com/meterflow/meterflow/internal/domain/grant"
	"github.com/meterflow/meterflow/internal/domain/usageperiod"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/shopspring/decimal"
)

// ResetService closes an entitlement's usage period and opens the next one.
//
// A reset materializes all carry-over as new grant records: recurring grants
// are voided and reissued at their full amount, non-recurring grants are
// voided and, when their rollover bounds keep any balance, replaced by a
// grant holding exactly the rolled-over amount. Grant history therefore
// remains append-only and every past balance stays reproducible.
type ResetService interface {
	// ResetEntitlementUsage applies a manual reset. Replaying a reset with an
	// effectiveAt at or before the last applied reset is a no-op that
	// reports the current period state.
	ResetEntitlementUsage(ctx context.Context, entitlementID string, input dto.ResetEntitlementUsageInput) (*dto.ResetEntitlementUsageResponse, error)
	// ProcessPeriodTransition rolls the entitlement forward across every
	// period boundary crossed so far, applying one reset per boundary
	ProcessPeriodTransition(ctx context.Context, entitlementID string) (*dto.ResetEntitlementUsageResponse, error)
}

type resetService struct {
	ServiceParams
	engine *burndown.Engine
}

func NewResetService(params ServiceParams) ResetService {
	return &resetService{
		ServiceParams: params,
		engine:        burndown.NewEngine(),
	}
}

func (s *resetService) ResetEntitlementUsage(ctx context.Context, entitlementID string, input dto.ResetEntitlementUsageInput) (*dto.ResetEntitlementUsageResponse, error) {
	var response *dto.ResetEntitlementUsageResponse
	err := s.Locker.WithLock(entitlementID, func() error {
		e, err := s.loadMetered(ctx, entitlementID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		effectiveAt := now
		if input.EffectiveAt != nil {
			effectiveAt = input.EffectiveAt.UTC()
		}
		// Resets apply at minute granularity
		effectiveAt = effectiveAt.Truncate(time.Minute)

		if effectiveAt.After(now) {
			return ierr.NewError("reset cannot be scheduled in the future").
				WithHint("Resets are effective immediately or in the past").
				WithReportableDetails(map[string]interface{}{
					"effectiveAt": effectiveAt,
					"now":         now,
				}).
				Mark(ierr.ErrInvalidResetTime)
		}

		// Replayed reset: already applied, report current state unchanged
		if e.LastReset != nil && !effectiveAt.After(*e.LastReset) {
			response = resetResponse(e)
			return nil
		}

		preserve := e.PreserveOverageAtReset
		if input.PreserveOverage != nil {
			preserve = *input.PreserveOverage
		}

		updated, err := s.applyReset(ctx, e, effectiveAt, input.RetainAnchor, preserve)
		if err != nil {
			return err
		}
		response = resetResponse(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response, nil
}

func (s *resetService) ProcessPeriodTransition(ctx context.Context, entitlementID string) (*dto.ResetEntitlementUsageResponse, error) {
	var response *dto.ResetEntitlementUsageResponse
	err := s.Locker.WithLock(entitlementID, func() error {
		e, err := s.loadMetered(ctx, entitlementID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for e.CurrentUsagePeriod != nil && !now.Before(e.CurrentUsagePeriod.To) {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err = s.applyReset(ctx, e, e.CurrentUsagePeriod.To, true, e.PreserveOverageAtReset)
			if err != nil {
				return err
			}
		}
		response = resetResponse(e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response, nil
}

// applyReset closes the period ending at effectiveAt. The caller must hold
// the entitlement's lock and have verified effectiveAt is past the last
// reset.
func (s *resetService) applyReset(ctx context.Context, e *entitlement.Entitlement, effectiveAt time.Time, retainAnchor, preserveOverage bool) (*entitlement.Entitlement, error) {
	periodStart := effectiveAt
	if e.CurrentUsagePeriod != nil {
		periodStart = e.CurrentUsagePeriod.From
	} else if e.LastReset != nil {
		periodStart = *e.LastReset
	}
	from := e.UsageMeasuredFrom(periodStart)

	grants, err := s.GrantRepo.ListForEntitlement(ctx, e.ID)
	if err != nil {
		return nil, err
	}

	overage := decimal.Zero
	balances := map[string]decimal.Decimal{}
	if effectiveAt.After(from) {
		series, err := s.EventRepo.GetUsageSeries(ctx, e.SubjectID, e.FeatureKey, from, effectiveAt)
		if err != nil {
			return nil, err
		}

		boundaries := segmentBoundaries(from, effectiveAt, grants, nil)
		runs, err := runTimeline(ctx, s.engine, e.ID, grants, series, boundaries, e.CarriedOverage)
		if err != nil {
			return nil, err
		}
		for _, run := range runs {
			overage = overage.Add(run.Result.Overage)
		}
		if len(runs) > 0 {
			balances = runs[len(runs)-1].Result.FinalBalances
		}
	}

	for _, g := range grants {
		if !g.IsActiveAt(effectiveAt) {
			continue
		}
		if _, err := s.GrantRepo.Void(ctx, g.ID, effectiveAt); err != nil {
			return nil, err
		}

		var successor *grant.Grant
		if g.Recurrence != nil {
			successor, err = reissuedGrant(ctx, g, effectiveAt)
			if err != nil {
				return nil, err
			}
		} else {
			balance, ok := balances[g.ID]
			if !ok {
				balance = g.Amount
			}
			successor = rolloverGrant(ctx, g, g.Rollover(balance), effectiveAt)
		}
		if successor != nil {
			if _, err := s.GrantRepo.Create(ctx, successor); err != nil {
				return nil, err
			}
		}
	}

	anchor := e.UsagePeriod.Anchor
	if !retainAnchor {
		anchor = effectiveAt
		e.UsagePeriod.Anchor = anchor
	}
	periodEnd, err := usageperiod.NextPeriodStart(anchor, e.UsagePeriod.Interval, effectiveAt)
	if err != nil {
		return nil, err
	}

	e.LastReset = &effectiveAt
	e.CurrentUsagePeriod = &types.Period{From: effectiveAt, To: periodEnd}
	e.CarriedOverage = decimal.Zero
	if preserveOverage {
		e.CarriedOverage = overage
	}

	updated, err := s.EntitlementRepo.Update(ctx, e)
	if err != nil {
		return nil, err
	}

	s.Cache.DeleteByPrefix(ctx, historyCachePrefix(ctx, e.ID))
	s.Logger.Infow("reset entitlement usage",
		"entitlement_id", e.ID,
		"effective_at", effectiveAt,
		"retain_anchor", retainAnchor,
		"carried_overage", updated.CarriedOverage)
	return updated, nil
}

// reissuedGrant builds the next instance of a recurring grant, effective at
// the reset instant with the full amount and a freshly derived expiry.
func reissuedGrant(ctx context.Context, g *grant.Grant, effectiveAt time.Time) (*grant.Grant, error) {
	next, err := usageperiod.NextPeriodStart(effectiveAt, g.Recurrence.Interval, effectiveAt)
	if err != nil {
		return nil, err
	}

	successor := &grant.Grant{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_GRANT),
		EntitlementID:     g.EntitlementID,
		Amount:            g.Amount,
		Priority:          g.Priority,
		EffectiveAt:       effectiveAt,
		Expiration:        g.Expiration,
		Recurrence:        g.Recurrence,
		NextRecurrence:    &next,
		MinRolloverAmount: g.MinRolloverAmount,
		MaxRolloverAmount: g.MaxRolloverAmount,
		Metadata:          lineageMetadata(g),
		EnvironmentID:     g.EnvironmentID,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
	if g.Expiration != nil {
		expiresAt := g.Expiration.ExpiresAtFrom(effectiveAt)
		successor.ExpiresAt = &expiresAt
	}
	return successor, nil
}

// rolloverGrant builds the grant that carries a non-recurring grant's
// rolled-over balance into the new period. Returns nil when nothing rolls
// over. The original absolute expiry is kept.
func rolloverGrant(ctx context.Context, g *grant.Grant, rolled decimal.Decimal, effectiveAt time.Time) *grant.Grant {
	if !rolled.IsPositive() {
		return nil
	}

	return &grant.Grant{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_GRANT),
		EntitlementID:     g.EntitlementID,
		Amount:            rolled,
		Priority:          g.Priority,
		EffectiveAt:       effectiveAt,
		ExpiresAt:         g.ExpiresAt,
		MinRolloverAmount: g.MinRolloverAmount,
		MaxRolloverAmount: g.MaxRolloverAmount,
		Metadata:          lineageMetadata(g),
		EnvironmentID:     g.EnvironmentID,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
}

// lineageMetadata links a successor grant back to the grant it replaced
func lineageMetadata(g *grant.Grant) types.Metadata {
	md := types.Metadata{}
	for k, v := range g.Metadata {
		md[k] = v
	}
	md["predecessor_grant_id"] = g.ID
	return md
}

func (s *resetService) loadMetered(ctx context.Context, entitlementID string) (*entitlement.Entitlement, error) {
	return loadMeteredEntitlement(ctx, s.EntitlementRepo, entitlementID)
}

func resetResponse(e *entitlement.Entitlement) *dto.ResetEntitlementUsageResponse {
	resp := &dto.ResetEntitlementUsageResponse{
		EntitlementID:  e.ID,
		CarriedOverage: types.FormatNumeric(e.CarriedOverage),
	}
	if e.LastReset != nil {
		resp.LastReset = *e.LastReset
	}
	if e.CurrentUsagePeriod != nil {
		resp.CurrentUsagePeriod = *e.CurrentUsagePeriod
	}
	return resp
}
