package service

import (
	"context"
	"time"

	"github.com/meterflow/meterflow/internal/api/dto"
	"github.com/meterflow/meterflow/internal/domain/burndown"
	"github.com/meterflow/meterflow/internal/domain/entitlement"
	"github.com/meterflow/meterflow/internal/domain/events"
	"github.com/meterflow/meterflow/internal/domain/grant"
	"github.com/meterflow/meterflow/internal/domain/usageperiod"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// EntitlementService manages entitlements and computes balance snapshots
type EntitlementService interface {
	CreateEntitlement(ctx context.Context, req dto.CreateEntitlementRequest) (*dto.EntitlementResponse, error)
	GetEntitlement(ctx context.Context, id string) (*dto.EntitlementResponse, error)
	ListEntitlements(ctx context.Context, filter *types.EntitlementFilter) (*dto.ListEntitlementsResponse, error)
	DeleteEntitlement(ctx context.Context, id string) error
	// GetEntitlementValue computes the balance snapshot at the given instant.
	// Snapshots are never persisted; they are always recomputed from grant
	// history and metered usage. Usage stamped exactly at the instant counts.
	//
	// The query is read-only: when at falls past the stored current period
	// and ResetService.ProcessPeriodTransition has not caught up yet, the
	// period is re-derived from the anchor and the value is computed against
	// the grants as they stand, without the rollover and reissue the pending
	// transition will materialize.
	GetEntitlementValue(ctx context.Context, id string, at time.Time) (*dto.EntitlementValueResponse, error)
}

type entitlementService struct {
	ServiceParams
	engine *burndown.Engine
}

func NewEntitlementService(params ServiceParams) EntitlementService {
	return &entitlementService{
		ServiceParams: params,
		engine:        burndown.NewEngine(),
	}
}

func (s *entitlementService) CreateEntitlement(ctx context.Context, req dto.CreateEntitlementRequest) (*dto.EntitlementResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	f, err := s.FeatureRepo.GetByLookupKey(ctx, req.FeatureKey)
	if err != nil {
		return nil, err
	}

	var response *dto.EntitlementResponse
	lockKey := "entitlement:" + req.SubjectID + ":" + req.FeatureKey
	err = s.Locker.WithLock(lockKey, func() error {
		existing, err := s.EntitlementRepo.GetActiveBySubjectAndFeature(ctx, req.SubjectID, req.FeatureKey)
		if err != nil && !ierr.IsNotFound(err) {
			return err
		}
		if existing != nil {
			return ierr.NewError("an active entitlement already exists for this subject and feature").
				WithHint("Delete the existing entitlement before creating a new one").
				WithReportableDetails(map[string]interface{}{
					"subject_id":     req.SubjectID,
					"feature_key":    req.FeatureKey,
					"entitlement_id": existing.ID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}

		e := req.ToEntitlement(ctx, f)
		if err := e.Validate(); err != nil {
			return err
		}
		if e.IsMetered() {
			now := time.Now().UTC()
			period, err := usageperiod.PeriodContaining(e.UsagePeriod.Anchor, e.UsagePeriod.Interval, now)
			if err != nil {
				return err
			}
			e.CurrentUsagePeriod = &period
			e.LastReset = &period.From
			if e.MeasureUsageFrom == nil {
				e.MeasureUsageFrom = &now
			}
		}

		created, err := s.EntitlementRepo.Create(ctx, e)
		if err != nil {
			return err
		}

		response = &dto.EntitlementResponse{
			Entitlement: created,
			Feature:     &dto.FeatureResponse{Feature: f},
		}

		if req.IssueGrant != nil {
			g, err := s.issueGrant(ctx, created, req.IssueGrant)
			if err != nil {
				return err
			}
			response.Grants = []*dto.GrantResponse{{Grant: g}}
		}

		s.Logger.Infow("created entitlement",
			"entitlement_id", created.ID,
			"subject_id", created.SubjectID,
			"feature_key", created.FeatureKey,
			"feature_type", created.FeatureType)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response, nil
}

// issueGrant persists a grant against an already-loaded metered entitlement.
// The caller must hold the entitlement's lock.
func (s *entitlementService) issueGrant(ctx context.Context, e *entitlement.Entitlement, req *dto.CreateGrantRequest) (*grant.Grant, error) {
	g, err := req.ToGrant(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	if g.Recurrence != nil {
		next, err := usageperiod.NextPeriodStart(g.EffectiveAt, g.Recurrence.Interval, g.EffectiveAt)
		if err != nil {
			return nil, err
		}
		g.NextRecurrence = &next
	}

	created, err := s.GrantRepo.Create(ctx, g)
	if err != nil {
		return nil, err
	}
	s.invalidateHistory(ctx, e.ID)
	return created, nil
}

func (s *entitlementService) GetEntitlement(ctx context.Context, id string) (*dto.EntitlementResponse, error) {
	e, err := s.EntitlementRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.EntitlementResponse{Entitlement: e}, nil
}

func (s *entitlementService) ListEntitlements(ctx context.Context, filter *types.EntitlementFilter) (*dto.ListEntitlementsResponse, error) {
	if filter == nil {
		filter = types.NewDefaultEntitlementFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.EntitlementRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.EntitlementRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	response := &dto.ListEntitlementsResponse{
		Items:      make([]*dto.EntitlementResponse, 0, len(items)),
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}
	for _, e := range items {
		response.Items = append(response.Items, &dto.EntitlementResponse{Entitlement: e})
	}

	if filter.GetExpand().Has(types.ExpandGrants) {
		for _, item := range response.Items {
			grants, err := s.GrantRepo.ListForEntitlement(ctx, item.Entitlement.ID)
			if err != nil {
				return nil, err
			}
			item.Grants = make([]*dto.GrantResponse, 0, len(grants))
			for _, g := range grants {
				item.Grants = append(item.Grants, &dto.GrantResponse{Grant: g})
			}
		}
	}

	return response, nil
}

// DeleteEntitlement soft-deletes the entitlement and voids every grant it
// owns.
func (s *entitlementService) DeleteEntitlement(ctx context.Context, id string) error {
	return s.Locker.WithLock(id, func() error {
		e, err := s.EntitlementRepo.Get(ctx, id)
		if err != nil {
			return err
		}

		if err := s.EntitlementRepo.Delete(ctx, e.ID); err != nil {
			return err
		}

		grants, err := s.GrantRepo.ListForEntitlement(ctx, e.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, g := range grants {
			if _, err := s.GrantRepo.Void(ctx, g.ID, now); err != nil {
				return err
			}
		}

		s.invalidateHistory(ctx, e.ID)
		s.Logger.Infow("deleted entitlement", "entitlement_id", e.ID, "voided_grants", len(grants))
		return nil
	})
}

func (s *entitlementService) GetEntitlementValue(ctx context.Context, id string, at time.Time) (*dto.EntitlementValueResponse, error) {
	e, err := s.EntitlementRepo.Get(ctx, id)
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

	switch e.FeatureType {
	case types.FeatureTypeBoolean:
		return &dto.EntitlementValueResponse{HasAccess: true}, nil
	case types.FeatureTypeStatic:
		return &dto.EntitlementValueResponse{HasAccess: true, Config: e.Config}, nil
	}

	at = at.UTC()
	period, err := s.periodAt(e, at)
	if err != nil {
		return nil, err
	}
	from := e.UsageMeasuredFrom(period.From)
	// Usage stamped exactly at the query instant counts toward the value, so
	// the series and the final timeline segment extend one nanosecond past it
	end := at.Add(time.Nanosecond)

	carried := decimal.Zero
	if e.CurrentUsagePeriod != nil && e.CurrentUsagePeriod.From.Equal(period.From) {
		carried = e.CarriedOverage
	}

	var grants []*grant.Grant
	var series []*events.UsageEvent
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		grants, err = s.GrantRepo.ListForEntitlement(ctx, e.ID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		series, err = s.EventRepo.GetUsageSeries(ctx, e.SubjectID, e.FeatureKey, from, end)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	boundaries := segmentBoundaries(from, end, grants, nil)
	runs, err := runTimeline(ctx, s.engine, e.ID, grants, series, boundaries, carried)
	if err != nil {
		return nil, err
	}

	usage := decimal.Zero
	overage := decimal.Zero
	for _, run := range runs {
		usage = usage.Add(run.Result.TotalUsage)
		overage = overage.Add(run.Result.Overage)
	}

	balance := decimal.Zero
	totalGranted := decimal.Zero
	for _, g := range grants {
		if !g.IsActiveAt(at) {
			continue
		}
		remaining := g.Amount
		if len(runs) > 0 {
			if b, ok := runs[len(runs)-1].Result.FinalBalances[g.ID]; ok {
				remaining = b
			}
		}
		balance = balance.Add(remaining)
		totalGranted = totalGranted.Add(g.Amount)
	}

	hasAccess := e.IsSoftLimit || balance.IsPositive()

	return &dto.EntitlementValueResponse{
		HasAccess:                 hasAccess,
		Balance:                   types.FormatNumeric(balance),
		Usage:                     types.FormatNumeric(usage),
		Overage:                   types.FormatNumeric(overage),
		TotalAvailableGrantAmount: types.FormatNumeric(totalGranted),
	}, nil
}

// periodAt resolves the usage period containing at, preferring the persisted
// current period over re-derivation from the anchor.
func (s *entitlementService) periodAt(e *entitlement.Entitlement, at time.Time) (types.Period, error) {
	if e.CurrentUsagePeriod != nil && e.CurrentUsagePeriod.Contains(at) {
		return *e.CurrentUsagePeriod, nil
	}
	return usageperiod.PeriodContaining(e.UsagePeriod.Anchor, e.UsagePeriod.Interval, at)
}

func (s *entitlementService) invalidateHistory(ctx context.Context, entitlementID string) {
	s.Cache.DeleteByPrefix(ctx, historyCachePrefix(ctx, entitlementID))
}
