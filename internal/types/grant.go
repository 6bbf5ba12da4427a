package types

import (
	"fmt"
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/samber/lo"
)

// GrantExpiryDurationUnit defines time units for duration-based grant expiry
type GrantExpiryDurationUnit string

const (
	GrantExpiryDurationUnitDay   GrantExpiryDurationUnit = "DAY"
	GrantExpiryDurationUnitWeek  GrantExpiryDurationUnit = "WEEK"
	GrantExpiryDurationUnitMonth GrantExpiryDurationUnit = "MONTH"
	GrantExpiryDurationUnitYear  GrantExpiryDurationUnit = "YEAR"
)

// Validate validates the grant expiry duration unit
func (u GrantExpiryDurationUnit) Validate() error {
	allowedValues := []GrantExpiryDurationUnit{
		GrantExpiryDurationUnitDay,
		GrantExpiryDurationUnitWeek,
		GrantExpiryDurationUnitMonth,
		GrantExpiryDurationUnitYear,
	}

	if !lo.Contains(allowedValues, u) {
		return ierr.NewError("invalid grant expiry duration unit").
			WithHint(fmt.Sprintf("Grant expiry duration unit must be one of: %v", allowedValues)).
			Mark(ierr.ErrValidation)
	}

	return nil
}

// GrantExpiration is the relative expiry of a grant: a count of duration
// units measured from the grant's effective time.
type GrantExpiration struct {
	Duration GrantExpiryDurationUnit `json:"duration"`
	Count    int                     `json:"count"`
}

// Validate validates the grant expiration
func (e GrantExpiration) Validate() error {
	if err := e.Duration.Validate(); err != nil {
		return err
	}
	if e.Count <= 0 {
		return ierr.NewError("expiration count must be positive").
			WithHint("Please provide a positive expiration count").
			WithReportableDetails(map[string]interface{}{
				"count": e.Count,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ExpiresAtFrom converts the relative expiration into an absolute timestamp
// measured from effectiveAt, using clamped calendar arithmetic.
func (e GrantExpiration) ExpiresAtFrom(effectiveAt time.Time) time.Time {
	switch e.Duration {
	case GrantExpiryDurationUnitDay:
		return AddClampedDate(effectiveAt, 0, 0, e.Count)
	case GrantExpiryDurationUnitWeek:
		return AddClampedDate(effectiveAt, 0, 0, 7*e.Count)
	case GrantExpiryDurationUnitMonth:
		return AddClampedDate(effectiveAt, 0, e.Count, 0)
	case GrantExpiryDurationUnitYear:
		return AddClampedDate(effectiveAt, e.Count, 0, 0)
	default:
		return effectiveAt
	}
}

// GrantRecurrence is the periodic reissue rule of a recurring grant
type GrantRecurrence struct {
	Interval UsagePeriodInterval `json:"interval"`
}

// Validate validates the grant recurrence
func (r GrantRecurrence) Validate() error {
	return r.Interval.Validate()
}

// GrantFilter defines filters for querying grants
type GrantFilter struct {
	*QueryFilter
	*TimeRangeFilter

	// Specific filters for grants
	EntitlementIDs []string `form:"entitlement_ids" json:"entitlement_ids,omitempty"`
	IncludeVoided  bool     `form:"include_voided" json:"include_voided,omitempty"`
}

// NewDefaultGrantFilter creates a new GrantFilter with default values
func NewDefaultGrantFilter() *GrantFilter {
	return &GrantFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitGrantFilter creates a new GrantFilter with no pagination limits
func NewNoLimitGrantFilter() *GrantFilter {
	return &GrantFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the filter fields
func (f GrantFilter) Validate() error {
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}

	if f.TimeRangeFilter != nil {
		if err := f.TimeRangeFilter.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// WithEntitlementIDs adds entitlement IDs to the filter
func (f *GrantFilter) WithEntitlementIDs(entitlementIDs []string) *GrantFilter {
	f.EntitlementIDs = entitlementIDs
	return f
}

// WithIncludeVoided includes voided grants in the results
func (f *GrantFilter) WithIncludeVoided() *GrantFilter {
	f.IncludeVoided = true
	return f
}

// GetLimit implements BaseFilter interface
func (f *GrantFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *GrantFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetSort implements BaseFilter interface
func (f *GrantFilter) GetSort() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetSort()
	}
	return f.QueryFilter.GetSort()
}

// GetOrder implements BaseFilter interface
func (f *GrantFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// GetStatus implements BaseFilter interface
func (f *GrantFilter) GetStatus() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetExpand implements BaseFilter interface
func (f *GrantFilter) GetExpand() Expand {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetExpand()
	}
	return f.QueryFilter.GetExpand()
}

// IsUnlimited returns true if this is an unlimited query
func (f *GrantFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
