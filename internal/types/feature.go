package types

import (
	"fmt"

	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/samber/lo"
)

// FeatureType determines which entitlement variant a feature supports
type FeatureType string

const (
	FeatureTypeMetered FeatureType = "METERED"
	FeatureTypeStatic  FeatureType = "STATIC"
	FeatureTypeBoolean FeatureType = "BOOLEAN"
)

// Validate validates the feature type
func (f FeatureType) Validate() error {
	allowedValues := []FeatureType{
		FeatureTypeMetered,
		FeatureTypeStatic,
		FeatureTypeBoolean,
	}

	if !lo.Contains(allowedValues, f) {
		return ierr.NewError("invalid feature type").
			WithHint(fmt.Sprintf("Feature type must be one of: %v", allowedValues)).
			Mark(ierr.ErrValidation)
	}

	return nil
}

// AggregationType is how the upstream meter derives usage deltas from raw
// events. The engine consumes the resulting deltas and never aggregates
// events itself.
type AggregationType string

const (
	AggregationSum         AggregationType = "SUM"
	AggregationCount       AggregationType = "COUNT"
	AggregationUniqueCount AggregationType = "UNIQUE_COUNT"
	AggregationMax         AggregationType = "MAX"
	AggregationLatest      AggregationType = "LATEST"
)

// Validate validates the aggregation type
func (a AggregationType) Validate() error {
	allowedValues := []AggregationType{
		AggregationSum,
		AggregationCount,
		AggregationUniqueCount,
		AggregationMax,
		AggregationLatest,
	}

	if !lo.Contains(allowedValues, a) {
		return ierr.NewError("invalid aggregation type").
			WithHint(fmt.Sprintf("Aggregation type must be one of: %v", allowedValues)).
			Mark(ierr.ErrValidation)
	}

	return nil
}
