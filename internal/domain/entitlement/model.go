package entitlement

import (
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/shopspring/decimal"
)

// Entitlement is a subject's right to access a feature. The variant is fixed
// by the feature type: metered entitlements carry the usage period and reset
// bookkeeping, static entitlements carry a config value, boolean entitlements
// carry nothing extra. The set of variants is closed; every switch over
// FeatureType handles all three.
type Entitlement struct {
	ID          string            `json:"id"`
	SubjectID   string            `json:"subject_id"`
	FeatureID   string            `json:"feature_id"`
	FeatureKey  string            `json:"feature_key"`
	FeatureType types.FeatureType `json:"feature_type"`

	// Metered variant
	UsagePeriod            *types.UsagePeriod `json:"usage_period,omitempty"`
	MeasureUsageFrom       *time.Time         `json:"measure_usage_from,omitempty"`
	LastReset              *time.Time         `json:"last_reset,omitempty"`
	CurrentUsagePeriod     *types.Period      `json:"current_usage_period,omitempty"`
	IsSoftLimit            bool               `json:"is_soft_limit"`
	PreserveOverageAtReset bool               `json:"preserve_overage_at_reset"`
	// CarriedOverage is the overage carried into the current period when
	// PreserveOverageAtReset is set; it is consumed before any grant balance
	CarriedOverage decimal.Decimal `json:"carried_overage"`

	// Static variant
	Config string `json:"config,omitempty"`

	Metadata      types.Metadata `json:"metadata,omitempty"`
	EnvironmentID string         `json:"environment_id"`
	types.BaseModel
}

// Validate performs validation on the entitlement
func (e *Entitlement) Validate() error {
	if e.SubjectID == "" {
		return ierr.NewError("subject_id is required").
			WithHint("Please provide a valid subject ID").
			Mark(ierr.ErrValidation)
	}
	if e.FeatureKey == "" {
		return ierr.NewError("feature_key is required").
			WithHint("Please provide a valid feature key").
			Mark(ierr.ErrValidation)
	}
	if err := e.FeatureType.Validate(); err != nil {
		return err
	}

	switch e.FeatureType {
	case types.FeatureTypeMetered:
		if e.UsagePeriod == nil {
			return ierr.NewError("usage_period is required for metered entitlements").
				WithHint("Please provide a usage period").
				WithReportableDetails(map[string]interface{}{
					"feature_key": e.FeatureKey,
				}).
				Mark(ierr.ErrValidation)
		}
		if err := e.UsagePeriod.Validate(); err != nil {
			return err
		}
	case types.FeatureTypeStatic:
		if e.Config == "" {
			return ierr.NewError("config is required for static entitlements").
				WithHint("Please provide a config value for this feature").
				WithReportableDetails(map[string]interface{}{
					"feature_key": e.FeatureKey,
				}).
				Mark(ierr.ErrValidation)
		}
	case types.FeatureTypeBoolean:
		// nothing beyond the base fields
	}

	return nil
}

// IsMetered reports whether this entitlement carries a grant balance
func (e *Entitlement) IsMetered() bool {
	return e.FeatureType == types.FeatureTypeMetered
}

// IsDeleted reports whether the entitlement has been soft-deleted
func (e *Entitlement) IsDeleted() bool {
	return e.Status == types.StatusDeleted || e.Status == types.StatusArchived
}

// UsageMeasuredFrom is the instant usage starts counting for the current
// period: the later of the period start and the measure-usage-from floor.
func (e *Entitlement) UsageMeasuredFrom(periodStart time.Time) time.Time {
	if e.MeasureUsageFrom != nil && e.MeasureUsageFrom.After(periodStart) {
		return *e.MeasureUsageFrom
	}
	return periodStart
}
