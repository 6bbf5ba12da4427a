package dto

import (
	"context"
	"time"

	"github.com/meterflow/meterflow/internal/domain/entitlement"
	"github.com/meterflow/meterflow/internal/domain/feature"
	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/meterflow/meterflow/internal/validator"
)

type CreateEntitlementRequest struct {
	SubjectID  string `json:"subject_id" validate:"required"`
	FeatureKey string `json:"feature_key" validate:"required"`

	// Metered variant
	UsagePeriod            *types.UsagePeriod `json:"usage_period,omitempty"`
	MeasureUsageFrom       *time.Time         `json:"measure_usage_from,omitempty"`
	IsSoftLimit            bool               `json:"is_soft_limit"`
	PreserveOverageAtReset bool               `json:"preserve_overage_at_reset"`
	// IssueGrant optionally issues an initial grant together with the
	// entitlement
	IssueGrant *CreateGrantRequest `json:"issue_grant,omitempty"`

	// Static variant
	Config string `json:"config,omitempty"`

	Metadata types.Metadata `json:"metadata,omitempty"`
}

func (r *CreateEntitlementRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.UsagePeriod != nil {
		if err := r.UsagePeriod.Validate(); err != nil {
			return err
		}
	}
	if r.IssueGrant != nil {
		if r.UsagePeriod == nil {
			return ierr.NewError("issue_grant requires a metered entitlement").
				WithHint("Provide a usage period to issue grants").
				Mark(ierr.ErrValidation)
		}
		if err := r.IssueGrant.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToEntitlement builds the domain entitlement. The variant comes from the
// feature's type, not from the request.
func (r *CreateEntitlementRequest) ToEntitlement(ctx context.Context, f *feature.Feature) *entitlement.Entitlement {
	e := &entitlement.Entitlement{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
		SubjectID:   r.SubjectID,
		FeatureID:   f.ID,
		FeatureKey:  f.LookupKey,
		FeatureType: f.Type,
		Config:      r.Config,
		Metadata:    r.Metadata,

		EnvironmentID: types.GetEnvironmentID(ctx),
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}

	if f.Type == types.FeatureTypeMetered {
		e.UsagePeriod = r.UsagePeriod
		e.IsSoftLimit = r.IsSoftLimit
		e.PreserveOverageAtReset = r.PreserveOverageAtReset
		if r.MeasureUsageFrom != nil {
			from := r.MeasureUsageFrom.UTC()
			e.MeasureUsageFrom = &from
		}
	}

	return e
}

type EntitlementResponse struct {
	*entitlement.Entitlement
	Feature *FeatureResponse `json:"feature,omitempty"`
	Grants  []*GrantResponse `json:"grants,omitempty"`
}

// ListEntitlementsResponse represents a paginated list of entitlements
type ListEntitlementsResponse = types.ListResponse[*EntitlementResponse]

// EntitlementValueResponse is the balance snapshot of an entitlement at a
// given instant. Numeric fields are decimal strings. For boolean and static
// entitlements only hasAccess and config are meaningful.
type EntitlementValueResponse struct {
	HasAccess                 bool   `json:"hasAccess"`
	Balance                   string `json:"balance,omitempty"`
	Usage                     string `json:"usage,omitempty"`
	Overage                   string `json:"overage,omitempty"`
	TotalAvailableGrantAmount string `json:"totalAvailableGrantAmount,omitempty"`
	Config                    string `json:"config,omitempty"`
}
