package service

import (
	"context"

	"github.com/meterflow/meterflow/internal/api/dto"
	"github.com/meterflow/meterflow/internal/cache"
	"github.com/meterflow/meterflow/internal/domain/feature"
)

// FeatureService manages the feature/meter catalog
type FeatureService interface {
	CreateFeature(ctx context.Context, req dto.CreateFeatureRequest) (*dto.FeatureResponse, error)
	GetFeature(ctx context.Context, id string) (*dto.FeatureResponse, error)
	GetFeatureByLookupKey(ctx context.Context, lookupKey string) (*dto.FeatureResponse, error)
	DeleteFeature(ctx context.Context, id string) error
}

type featureService struct {
	ServiceParams
}

func NewFeatureService(params ServiceParams) FeatureService {
	return &featureService{
		ServiceParams: params,
	}
}

func (s *featureService) CreateFeature(ctx context.Context, req dto.CreateFeatureRequest) (*dto.FeatureResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	f := req.ToFeature(ctx)
	if err := f.Validate(); err != nil {
		return nil, err
	}

	created, err := s.FeatureRepo.Create(ctx, f)
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("created feature", "feature_id", created.ID, "lookup_key", created.LookupKey)
	return &dto.FeatureResponse{Feature: created}, nil
}

func (s *featureService) GetFeature(ctx context.Context, id string) (*dto.FeatureResponse, error) {
	key := cache.GenerateKey(cache.PrefixFeature, id)
	if cached, found := s.Cache.Get(ctx, key); found {
		if f, ok := cached.(*feature.Feature); ok {
			return &dto.FeatureResponse{Feature: f}, nil
		}
	}

	f, err := s.FeatureRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Cache.Set(ctx, key, f, 0)
	return &dto.FeatureResponse{Feature: f}, nil
}

func (s *featureService) GetFeatureByLookupKey(ctx context.Context, lookupKey string) (*dto.FeatureResponse, error) {
	f, err := s.FeatureRepo.GetByLookupKey(ctx, lookupKey)
	if err != nil {
		return nil, err
	}
	return &dto.FeatureResponse{Feature: f}, nil
}

func (s *featureService) DeleteFeature(ctx context.Context, id string) error {
	if err := s.FeatureRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixFeature, id))
	return nil
}
