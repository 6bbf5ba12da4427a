package grant

import (
	"sort"
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/meterflow/meterflow/internal/types"
	"github.com/shopspring/decimal"
)

// Grant is a quantity of usage allowance issued to an entitlement. Grants are
// immutable once created: the only permitted mutations are voiding and the
// system-computed next recurrence, so any balance can be recomputed
// deterministically from grant history alone.
type Grant struct {
	ID            string `json:"id"`
	EntitlementID string `json:"entitlement_id"`

	Amount      decimal.Decimal        `json:"amount"`
	Priority    int                    `json:"priority"`
	EffectiveAt time.Time              `json:"effectiveAt"`
	Expiration  *types.GrantExpiration `json:"expiration,omitempty"`
	// ExpiresAt is derived from Expiration at creation time; nil means the
	// grant never expires
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	Recurrence     *types.GrantRecurrence `json:"recurrence,omitempty"`
	NextRecurrence *time.Time             `json:"nextRecurrence,omitempty"`

	MinRolloverAmount decimal.Decimal `json:"minRolloverAmount"`
	MaxRolloverAmount decimal.Decimal `json:"maxRolloverAmount"`

	VoidedAt *time.Time `json:"voidedAt,omitempty"`

	Metadata      types.Metadata `json:"metadata,omitempty"`
	EnvironmentID string         `json:"environment_id"`
	types.BaseModel
}

// Validate performs validation on the grant
func (g *Grant) Validate() error {
	if g.EntitlementID == "" {
		return ierr.NewError("entitlement_id is required").
			WithHint("Please provide a valid entitlement ID").
			Mark(ierr.ErrValidation)
	}

	if g.Amount.LessThanOrEqual(decimal.Zero) {
		return ierr.NewError("amount must be greater than zero").
			WithHint("Please provide a positive amount").
			WithReportableDetails(map[string]interface{}{
				"amount": g.Amount,
			}).
			Mark(ierr.ErrValidation)
	}

	if g.Expiration != nil {
		if err := g.Expiration.Validate(); err != nil {
			return err
		}
	}

	if g.Recurrence != nil {
		if err := g.Recurrence.Validate(); err != nil {
			return err
		}
	}

	if g.MinRolloverAmount.IsNegative() {
		return ierr.NewError("min rollover amount cannot be negative").
			WithHint("Please provide a non-negative min rollover amount").
			Mark(ierr.ErrValidation)
	}

	if g.MaxRolloverAmount.LessThan(g.MinRolloverAmount) {
		return ierr.NewError("max rollover amount cannot be less than min rollover amount").
			WithHint("Max rollover amount must be at least the min rollover amount").
			WithReportableDetails(map[string]interface{}{
				"minRolloverAmount": g.MinRolloverAmount,
				"maxRolloverAmount": g.MaxRolloverAmount,
			}).
			Mark(ierr.ErrValidation)
	}

	return nil
}

// IsActiveAt reports whether the grant contributes balance at the given
// instant: effective, not expired and not voided.
func (g *Grant) IsActiveAt(at time.Time) bool {
	if g.EffectiveAt.After(at) {
		return false
	}
	if g.ExpiresAt != nil && !at.Before(*g.ExpiresAt) {
		return false
	}
	if g.VoidedAt != nil && !g.VoidedAt.After(at) {
		return false
	}
	return true
}

// IsVoided reports whether the grant has been voided
func (g *Grant) IsVoided() bool {
	return g.VoidedAt != nil
}

// Rollover applies the grant's rollover bounds to the balance it carried
// into a period reset: min(maxRollover, max(balanceBefore, minRollover)).
func (g *Grant) Rollover(balanceBefore decimal.Decimal) decimal.Decimal {
	rolled := decimal.Max(balanceBefore, g.MinRolloverAmount)
	return decimal.Min(g.MaxRolloverAmount, rolled)
}

// SortForBurndown orders grants in burn-down precedence: priority ascending,
// then soonest expiry (unbounded grants last), then earliest creation. The
// exact same ordering is used everywhere a grant sequence is produced so the
// deduction order never depends on which component sorted it.
func SortForBurndown(grants []*Grant) {
	sort.SliceStable(grants, func(i, j int) bool {
		a, b := grants[i], grants[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt == nil:
			// fall through to creation time
		case a.ExpiresAt == nil:
			return false
		case b.ExpiresAt == nil:
			return true
		case !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
