package types

import (
	"github.com/samber/lo"
)

// EntitlementFilter defines filters for querying entitlements
type EntitlementFilter struct {
	*QueryFilter
	*TimeRangeFilter

	// Specific filters for entitlements
	SubjectIDs  []string     `form:"subject_ids" json:"subject_ids,omitempty"`
	FeatureKeys []string     `form:"feature_keys" json:"feature_keys,omitempty"`
	FeatureType *FeatureType `form:"feature_type" json:"feature_type,omitempty"`
}

// NewDefaultEntitlementFilter creates a new EntitlementFilter with default values
func NewDefaultEntitlementFilter() *EntitlementFilter {
	return &EntitlementFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitEntitlementFilter creates a new EntitlementFilter with no pagination limits
func NewNoLimitEntitlementFilter() *EntitlementFilter {
	return &EntitlementFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the filter fields
func (f EntitlementFilter) Validate() error {
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

// WithSubjectIDs adds subject IDs to the filter
func (f *EntitlementFilter) WithSubjectIDs(subjectIDs []string) *EntitlementFilter {
	f.SubjectIDs = subjectIDs
	return f
}

// WithFeatureKey adds a feature key to the filter
func (f *EntitlementFilter) WithFeatureKey(featureKey string) *EntitlementFilter {
	f.FeatureKeys = append(f.FeatureKeys, featureKey)
	return f
}

// WithFeatureType adds feature type to the filter
func (f *EntitlementFilter) WithFeatureType(featureType FeatureType) *EntitlementFilter {
	f.FeatureType = &featureType
	return f
}

// WithStatus sets the status on the filter
func (f *EntitlementFilter) WithStatus(status Status) *EntitlementFilter {
	if f.QueryFilter == nil {
		f.QueryFilter = NewDefaultQueryFilter()
	}
	f.Status = &status
	return f
}

// GetLimit implements BaseFilter interface
func (f *EntitlementFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *EntitlementFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetSort implements BaseFilter interface
func (f *EntitlementFilter) GetSort() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetSort()
	}
	return f.QueryFilter.GetSort()
}

// GetOrder implements BaseFilter interface
func (f *EntitlementFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// GetStatus implements BaseFilter interface
func (f *EntitlementFilter) GetStatus() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetExpand implements BaseFilter interface
func (f *EntitlementFilter) GetExpand() Expand {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetExpand()
	}
	return f.QueryFilter.GetExpand()
}

// IsUnlimited returns true if this is an unlimited query
func (f *EntitlementFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}

// MatchesFeatureType reports whether the given feature type passes the filter
func (f *EntitlementFilter) MatchesFeatureType(ft FeatureType) bool {
	return f.FeatureType == nil || *f.FeatureType == ft
}

// MatchesSubject reports whether the given subject passes the filter
func (f *EntitlementFilter) MatchesSubject(subjectID string) bool {
	return len(f.SubjectIDs) == 0 || lo.Contains(f.SubjectIDs, subjectID)
}
