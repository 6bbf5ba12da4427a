package dto

import (
	"context"
	"time"

	"github.com/meterflow/meterflow/internal/domain/grant"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/meterflow/meterflow/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateGrantRequest issues a new grant against a metered entitlement.
// Amounts travel as decimal strings.
type CreateGrantRequest struct {
	Amount            string                 `json:"amount" validate:"required"`
	Priority          int                    `json:"priority" validate:"gte=0"`
	EffectiveAt       *time.Time             `json:"effectiveAt,omitempty"`
	MinRolloverAmount string                 `json:"minRolloverAmount,omitempty"`
	MaxRolloverAmount string                 `json:"maxRolloverAmount,omitempty"`
	Expiration        *types.GrantExpiration `json:"expiration,omitempty"`
	Recurrence        *types.GrantRecurrence `json:"recurrence,omitempty"`
	Metadata          types.Metadata         `json:"metadata,omitempty"`
}

func (r *CreateGrantRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if _, err := types.ParseNumeric(r.Amount); err != nil {
		return err
	}
	if r.MinRolloverAmount != "" {
		if _, err := types.ParseNumeric(r.MinRolloverAmount); err != nil {
			return err
		}
	}
	if r.MaxRolloverAmount != "" {
		if _, err := types.ParseNumeric(r.MaxRolloverAmount); err != nil {
			return err
		}
	}
	if r.Expiration != nil {
		if err := r.Expiration.Validate(); err != nil {
			return err
		}
	}
	if r.Recurrence != nil {
		if err := r.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToGrant builds the domain grant. MinRolloverAmount defaults to zero and
// MaxRolloverAmount to the full amount, so an unconfigured grant rolls its
// entire remaining balance into the next period. ExpiresAt is derived once
// here and never recomputed.
func (r *CreateGrantRequest) ToGrant(ctx context.Context, entitlementID string) (*grant.Grant, error) {
	amount, err := types.ParseNumeric(r.Amount)
	if err != nil {
		return nil, err
	}

	minRollover := decimal.Zero
	if r.MinRolloverAmount != "" {
		if minRollover, err = types.ParseNumeric(r.MinRolloverAmount); err != nil {
			return nil, err
		}
	}
	maxRollover := amount
	if r.MaxRolloverAmount != "" {
		if maxRollover, err = types.ParseNumeric(r.MaxRolloverAmount); err != nil {
			return nil, err
		}
	}

	effectiveAt := time.Now().UTC()
	if r.EffectiveAt != nil {
		effectiveAt = r.EffectiveAt.UTC()
	}

	g := &grant.Grant{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_GRANT),
		EntitlementID:     entitlementID,
		Amount:            amount,
		Priority:          r.Priority,
		EffectiveAt:       effectiveAt,
		Expiration:        r.Expiration,
		Recurrence:        r.Recurrence,
		MinRolloverAmount: minRollover,
		MaxRolloverAmount: maxRollover,
		Metadata:          r.Metadata,
		EnvironmentID:     types.GetEnvironmentID(ctx),
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}

	if r.Expiration != nil {
		expiresAt := r.Expiration.ExpiresAtFrom(effectiveAt)
		g.ExpiresAt = &expiresAt
	}

	return g, nil
}

type GrantResponse struct {
	*grant.Grant
}

// ListGrantsResponse represents a paginated list of grants
type ListGrantsResponse = types.ListResponse[*GrantResponse]
