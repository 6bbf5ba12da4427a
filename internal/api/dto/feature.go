package dto

import (
	"context"

	"github.com/meterflow/meterflow/internal/domain/feature"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/meterflow/meterflow/internal/validator"
)

type CreateFeatureRequest struct {
	Name             string                `json:"name" validate:"required"`
	LookupKey        string                `json:"lookup_key" validate:"required"`
	Type             types.FeatureType     `json:"type" validate:"required"`
	MeterAggregation types.AggregationType `json:"meter_aggregation,omitempty"`
	Metadata         types.Metadata        `json:"metadata,omitempty"`
}

func (r *CreateFeatureRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreateFeatureRequest) ToFeature(ctx context.Context) *feature.Feature {
	return &feature.Feature{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_FEATURE),
		Name:             r.Name,
		LookupKey:        r.LookupKey,
		Type:             r.Type,
		MeterAggregation: r.MeterAggregation,
		Metadata:         r.Metadata,
		EnvironmentID:    types.GetEnvironmentID(ctx),
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
}

type FeatureResponse struct {
	*feature.Feature
}

// ListFeaturesResponse represents a paginated list of features
type ListFeaturesResponse = types.ListResponse[*FeatureResponse]
