package testutil

import (
	"context"
	"sync"

	"github.com/meterflow/meterflow/internal/domain/feature"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
)

// InMemoryFeatureStore implements feature.Repository
type InMemoryFeatureStore struct {
	mu       sync.RWMutex
	features map[string]*feature.Feature
}

func NewInMemoryFeatureStore() *InMemoryFeatureStore {
	return &InMemoryFeatureStore{
		features: make(map[string]*feature.Feature),
	}
}

func (s *InMemoryFeatureStore) Create(ctx context.Context, f *feature.Feature) (*feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.features[f.ID]; exists {
		return nil, ierr.NewError("feature already exists").
			WithHint("A feature with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	copied := *f
	s.features[f.ID] = &copied
	return &copied, nil
}

func (s *InMemoryFeatureStore) Get(ctx context.Context, id string) (*feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.features[id]
	if !ok || f.TenantID != types.GetTenantID(ctx) || f.Status == types.StatusDeleted {
		return nil, ierr.NewError("feature not found").
			WithHint("The feature does not exist").
			WithReportableDetails(map[string]interface{}{
				"feature_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}

	copied := *f
	return &copied, nil
}

func (s *InMemoryFeatureStore) GetByLookupKey(ctx context.Context, lookupKey string) (*feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.features {
		if f.LookupKey == lookupKey && f.TenantID == types.GetTenantID(ctx) && f.Status != types.StatusDeleted {
			copied := *f
			return &copied, nil
		}
	}

	return nil, ierr.NewError("feature not found").
		WithHint("No feature exists with this lookup key").
		WithReportableDetails(map[string]interface{}{
			"lookup_key": lookupKey,
		}).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryFeatureStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.features[id]
	if !ok || f.TenantID != types.GetTenantID(ctx) {
		return ierr.NewError("feature not found").
			WithHint("The feature does not exist").
			Mark(ierr.ErrNotFound)
	}

	f.Status = types.StatusDeleted
	return nil
}

// Clear removes all features from the store
func (s *InMemoryFeatureStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = make(map[string]*feature.Feature)
}
