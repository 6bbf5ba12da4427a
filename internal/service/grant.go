package service

import (
	"context"
	"time"

	"github.com/meterflow/meterflow/internal/api/dto"
	"github.com/meterflow/meterflow/internal/domain/usageperiod"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
)

// GrantService manages grants against metered entitlements
type GrantService interface {
	CreateGrant(ctx context.Context, entitlementID string, req dto.CreateGrantRequest) (*dto.GrantResponse, error)
	GetGrant(ctx context.Context, id string) (*dto.GrantResponse, error)
	ListGrants(ctx context.Context, filter *types.GrantFilter) (*dto.ListGrantsResponse, error)
	// VoidGrant removes a grant from all future burn-down. Voiding an already
	// voided grant succeeds without changing the original void instant.
	VoidGrant(ctx context.Context, id string) (*dto.GrantResponse, error)
}

type grantService struct {
	ServiceParams
}

func NewGrantService(params ServiceParams) GrantService {
	return &grantService{
		ServiceParams: params,
	}
}

func (s *grantService) CreateGrant(ctx context.Context, entitlementID string, req dto.CreateGrantRequest) (*dto.GrantResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var response *dto.GrantResponse
	err := s.Locker.WithLock(entitlementID, func() error {
		e, err := s.EntitlementRepo.Get(ctx, entitlementID)
		if err != nil {
			return err
		}
		if e.IsDeleted() {
			return ierr.NewError("cannot grant against a deleted entitlement").
				WithHint("The entitlement has been deleted").
				WithReportableDetails(map[string]interface{}{
					"entitlement_id": entitlementID,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		if !e.IsMetered() {
			return ierr.NewError("grants can only be issued against metered entitlements").
				WithHint("Boolean and static entitlements do not carry a balance").
				WithReportableDetails(map[string]interface{}{
					"entitlement_id": entitlementID,
					"feature_type":   e.FeatureType,
				}).
				Mark(ierr.ErrInvalidOperation)
		}

		g, err := req.ToGrant(ctx, e.ID)
		if err != nil {
			return err
		}
		if err := g.Validate(); err != nil {
			return err
		}

		if g.Recurrence != nil {
			next, err := usageperiod.NextPeriodStart(g.EffectiveAt, g.Recurrence.Interval, g.EffectiveAt)
			if err != nil {
				return err
			}
			g.NextRecurrence = &next
		}

		created, err := s.GrantRepo.Create(ctx, g)
		if err != nil {
			return err
		}

		s.invalidateHistory(ctx, e.ID)
		s.Logger.Infow("created grant",
			"grant_id", created.ID,
			"entitlement_id", e.ID,
			"amount", created.Amount,
			"priority", created.Priority)
		response = &dto.GrantResponse{Grant: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response, nil
}

func (s *grantService) GetGrant(ctx context.Context, id string) (*dto.GrantResponse, error) {
	g, err := s.GrantRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.GrantResponse{Grant: g}, nil
}

func (s *grantService) ListGrants(ctx context.Context, filter *types.GrantFilter) (*dto.ListGrantsResponse, error) {
	if filter == nil {
		filter = types.NewDefaultGrantFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.GrantRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.GrantRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	response := &dto.ListGrantsResponse{
		Items:      make([]*dto.GrantResponse, 0, len(items)),
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}
	for _, g := range items {
		response.Items = append(response.Items, &dto.GrantResponse{Grant: g})
	}
	return response, nil
}

func (s *grantService) VoidGrant(ctx context.Context, id string) (*dto.GrantResponse, error) {
	g, err := s.GrantRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var response *dto.GrantResponse
	err = s.Locker.WithLock(g.EntitlementID, func() error {
		voided, err := s.GrantRepo.Void(ctx, g.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		s.invalidateHistory(ctx, g.EntitlementID)
		s.Logger.Infow("voided grant", "grant_id", voided.ID, "entitlement_id", voided.EntitlementID)
		response = &dto.GrantResponse{Grant: voided}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return response, nil
}

func (s *grantService) invalidateHistory(ctx context.Context, entitlementID string) {
	s.Cache.DeleteByPrefix(ctx, historyCachePrefix(ctx, entitlementID))
}
