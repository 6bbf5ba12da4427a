package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/meterflow/meterflow/internal/domain/entitlement"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/samber/lo"
)

// InMemoryEntitlementStore implements entitlement.Repository
type InMemoryEntitlementStore struct {
	mu           sync.RWMutex
	entitlements map[string]*entitlement.Entitlement
}

func NewInMemoryEntitlementStore() *InMemoryEntitlementStore {
	return &InMemoryEntitlementStore{
		entitlements: make(map[string]*entitlement.Entitlement),
	}
}

func copyEntitlement(e *entitlement.Entitlement) *entitlement.Entitlement {
	copied := *e
	if e.UsagePeriod != nil {
		up := *e.UsagePeriod
		copied.UsagePeriod = &up
	}
	if e.CurrentUsagePeriod != nil {
		p := *e.CurrentUsagePeriod
		copied.CurrentUsagePeriod = &p
	}
	if e.LastReset != nil {
		lr := *e.LastReset
		copied.LastReset = &lr
	}
	if e.MeasureUsageFrom != nil {
		mf := *e.MeasureUsageFrom
		copied.MeasureUsageFrom = &mf
	}
	return &copied
}

func (s *InMemoryEntitlementStore) Create(ctx context.Context, e *entitlement.Entitlement) (*entitlement.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entitlements[e.ID]; exists {
		return nil, ierr.NewError("entitlement already exists").
			WithHint("An entitlement with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	s.entitlements[e.ID] = copyEntitlement(e)
	return copyEntitlement(e), nil
}

func (s *InMemoryEntitlementStore) Get(ctx context.Context, id string) (*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entitlements[id]
	if !ok || e.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("entitlement not found").
			WithHint("The entitlement does not exist").
			WithReportableDetails(map[string]interface{}{
				"entitlement_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}

	return copyEntitlement(e), nil
}

func (s *InMemoryEntitlementStore) GetActiveBySubjectAndFeature(ctx context.Context, subjectID, featureKey string) (*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entitlements {
		if e.TenantID != types.GetTenantID(ctx) {
			continue
		}
		if e.SubjectID == subjectID && e.FeatureKey == featureKey && e.Status == types.StatusPublished {
			return copyEntitlement(e), nil
		}
	}

	return nil, ierr.NewError("entitlement not found").
		WithHint("No active entitlement exists for this subject and feature").
		WithReportableDetails(map[string]interface{}{
			"subject_id":  subjectID,
			"feature_key": featureKey,
		}).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryEntitlementStore) List(ctx context.Context, filter *types.EntitlementFilter) ([]*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(ctx, filter)

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if filter.IsUnlimited() {
		return matched, nil
	}

	offset, limit := filter.GetOffset(), filter.GetLimit()
	if offset >= len(matched) {
		return []*entitlement.Entitlement{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (s *InMemoryEntitlementStore) Count(ctx context.Context, filter *types.EntitlementFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(ctx, filter)), nil
}

func (s *InMemoryEntitlementStore) match(ctx context.Context, filter *types.EntitlementFilter) []*entitlement.Entitlement {
	matched := make([]*entitlement.Entitlement, 0)
	for _, e := range s.entitlements {
		if e.TenantID != types.GetTenantID(ctx) {
			continue
		}
		if e.Status != types.StatusPublished {
			continue
		}
		if !filter.MatchesSubject(e.SubjectID) {
			continue
		}
		if len(filter.FeatureKeys) > 0 && !lo.Contains(filter.FeatureKeys, e.FeatureKey) {
			continue
		}
		if !filter.MatchesFeatureType(e.FeatureType) {
			continue
		}
		matched = append(matched, copyEntitlement(e))
	}
	return matched
}

func (s *InMemoryEntitlementStore) Update(ctx context.Context, e *entitlement.Entitlement) (*entitlement.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entitlements[e.ID]
	if !ok || existing.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("entitlement not found").
			WithHint("The entitlement does not exist").
			Mark(ierr.ErrNotFound)
	}

	updated := copyEntitlement(e)
	updated.Touch(ctx)
	s.entitlements[e.ID] = updated
	return copyEntitlement(updated), nil
}

func (s *InMemoryEntitlementStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entitlements[id]
	if !ok || e.TenantID != types.GetTenantID(ctx) {
		return ierr.NewError("entitlement not found").
			WithHint("The entitlement does not exist").
			Mark(ierr.ErrNotFound)
	}

	e.Status = types.StatusDeleted
	e.Touch(ctx)
	return nil
}

// Clear removes all entitlements from the store
func (s *InMemoryEntitlementStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entitlements = make(map[string]*entitlement.Entitlement)
}
