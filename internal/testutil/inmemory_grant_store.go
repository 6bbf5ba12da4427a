package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/meterflow/meterflow/internal/domain/grant"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/samber/lo"
)

// InMemoryGrantStore implements grant.Repository
type InMemoryGrantStore struct {
	mu     sync.RWMutex
	grants map[string]*grant.Grant
}

func NewInMemoryGrantStore() *InMemoryGrantStore {
	return &InMemoryGrantStore{
		grants: make(map[string]*grant.Grant),
	}
}

func copyGrant(g *grant.Grant) *grant.Grant {
	copied := *g
	if g.ExpiresAt != nil {
		ea := *g.ExpiresAt
		copied.ExpiresAt = &ea
	}
	if g.VoidedAt != nil {
		va := *g.VoidedAt
		copied.VoidedAt = &va
	}
	if g.NextRecurrence != nil {
		nr := *g.NextRecurrence
		copied.NextRecurrence = &nr
	}
	if g.Expiration != nil {
		ex := *g.Expiration
		copied.Expiration = &ex
	}
	if g.Recurrence != nil {
		rec := *g.Recurrence
		copied.Recurrence = &rec
	}
	return &copied
}

func (s *InMemoryGrantStore) Create(ctx context.Context, g *grant.Grant) (*grant.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[g.ID]; exists {
		return nil, ierr.NewError("grant already exists").
			WithHint("A grant with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	s.grants[g.ID] = copyGrant(g)
	return copyGrant(g), nil
}

func (s *InMemoryGrantStore) Get(ctx context.Context, id string) (*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[id]
	if !ok || g.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("grant not found").
			WithHint("The grant does not exist").
			WithReportableDetails(map[string]interface{}{
				"grant_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}

	return copyGrant(g), nil
}

func (s *InMemoryGrantStore) List(ctx context.Context, filter *types.GrantFilter) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(ctx, filter)
	grant.SortForBurndown(matched)

	if filter.IsUnlimited() {
		return matched, nil
	}

	offset, limit := filter.GetOffset(), filter.GetLimit()
	if offset >= len(matched) {
		return []*grant.Grant{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (s *InMemoryGrantStore) Count(ctx context.Context, filter *types.GrantFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(ctx, filter)), nil
}

func (s *InMemoryGrantStore) match(ctx context.Context, filter *types.GrantFilter) []*grant.Grant {
	matched := make([]*grant.Grant, 0)
	for _, g := range s.grants {
		if g.TenantID != types.GetTenantID(ctx) {
			continue
		}
		if len(filter.EntitlementIDs) > 0 && !lo.Contains(filter.EntitlementIDs, g.EntitlementID) {
			continue
		}
		if !filter.IncludeVoided && g.IsVoided() {
			continue
		}
		matched = append(matched, copyGrant(g))
	}
	return matched
}

func (s *InMemoryGrantStore) ListActive(ctx context.Context, entitlementID string, at time.Time) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*grant.Grant, 0)
	for _, g := range s.grants {
		if g.TenantID != types.GetTenantID(ctx) || g.EntitlementID != entitlementID {
			continue
		}
		if !g.IsActiveAt(at) {
			continue
		}
		matched = append(matched, copyGrant(g))
	}

	grant.SortForBurndown(matched)
	return matched, nil
}

func (s *InMemoryGrantStore) ListForEntitlement(ctx context.Context, entitlementID string) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*grant.Grant, 0)
	for _, g := range s.grants {
		if g.TenantID != types.GetTenantID(ctx) || g.EntitlementID != entitlementID {
			continue
		}
		matched = append(matched, copyGrant(g))
	}

	grant.SortForBurndown(matched)
	return matched, nil
}

func (s *InMemoryGrantStore) Void(ctx context.Context, id string, at time.Time) (*grant.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[id]
	if !ok || g.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("grant not found").
			WithHint("The grant does not exist").
			Mark(ierr.ErrNotFound)
	}

	// voiding twice keeps the original void instant
	if g.VoidedAt == nil {
		voidedAt := at.UTC()
		g.VoidedAt = &voidedAt
		g.Touch(ctx)
	}

	return copyGrant(g), nil
}

func (s *InMemoryGrantStore) UpdateNextRecurrence(ctx context.Context, id string, next time.Time) (*grant.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[id]
	if !ok || g.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("grant not found").
			WithHint("The grant does not exist").
			Mark(ierr.ErrNotFound)
	}

	g.NextRecurrence = &next
	g.Touch(ctx)
	return copyGrant(g), nil
}

// Clear removes all grants from the store
func (s *InMemoryGrantStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = make(map[string]*grant.Grant)
}
