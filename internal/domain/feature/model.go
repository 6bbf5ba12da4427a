package feature

import (
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
)

// Feature is an entry in the feature/meter catalog. For metered features the
// aggregation describes how the upstream pipeline derives usage deltas; the
// engine itself only ever consumes the resulting deltas.
type Feature struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	LookupKey        string                `json:"lookup_key"`
	Type             types.FeatureType     `json:"type"`
	MeterAggregation types.AggregationType `json:"meter_aggregation,omitempty"`
	Metadata         types.Metadata        `json:"metadata,omitempty"`
	EnvironmentID    string                `json:"environment_id"`
	types.BaseModel
}

// Validate performs validation on the feature
func (f *Feature) Validate() error {
	if f.Name == "" {
		return ierr.NewError("name is required").
			WithHint("Please provide a name for the feature").
			Mark(ierr.ErrValidation)
	}

	if f.LookupKey == "" {
		return ierr.NewError("lookup_key is required").
			WithHint("Please provide a lookup key for the feature").
			Mark(ierr.ErrValidation)
	}

	if err := f.Type.Validate(); err != nil {
		return err
	}

	if f.Type == types.FeatureTypeMetered {
		if err := f.MeterAggregation.Validate(); err != nil {
			return ierr.WithError(err).
				WithHint("Metered features require a valid meter aggregation").
				WithReportableDetails(map[string]interface{}{
					"lookup_key": f.LookupKey,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	return nil
}
