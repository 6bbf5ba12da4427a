package dto

import (
	"time"

	"github.com/meterflow/meterflow/internal/types"
)

// ResetEntitlementUsageInput requests a manual reset of a metered
// entitlement's usage period.
type ResetEntitlementUsageInput struct {
	// EffectiveAt defaults to now; future values are rejected. The instant is
	// truncated to minute granularity before being applied.
	EffectiveAt *time.Time `json:"effectiveAt,omitempty"`
	// RetainAnchor keeps the period cadence anchor unchanged; when false the
	// anchor moves to the reset instant and all future boundaries re-derive
	// from it
	RetainAnchor bool `json:"retainAnchor"`
	// PreserveOverage overrides the entitlement's preserve-overage-at-reset
	// setting for this reset only; nil keeps the entitlement's setting
	PreserveOverage *bool `json:"preserveOverage,omitempty"`
}

// ResetEntitlementUsageResponse reports the state of the entitlement's period
// bookkeeping after the reset was applied.
type ResetEntitlementUsageResponse struct {
	EntitlementID      string       `json:"entitlement_id"`
	LastReset          time.Time    `json:"last_reset"`
	CurrentUsagePeriod types.Period `json:"current_usage_period"`
	// CarriedOverage is the overage carried into the new period as already
	// consumed balance; zero unless overage was preserved
	CarriedOverage string `json:"carried_overage"`
}
