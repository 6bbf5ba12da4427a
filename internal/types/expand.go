package types

import (
	"strings"

	ierr "github.com/meterflow/meterflow/internal/errors"
)

// ExpandableField represents a field that can be expanded in API responses.
// Expansion is always driven by an explicit request parameter, never by
// runtime type inspection of the response payload.
type ExpandableField string

const (
	ExpandFeatures ExpandableField = "features"
	ExpandGrants   ExpandableField = "grants"
)

// ExpandConfig defines which fields can be expanded on a resource
type ExpandConfig struct {
	AllowedFields []ExpandableField
}

var (
	// EntitlementExpandConfig defines what can be expanded on an entitlement
	EntitlementExpandConfig = ExpandConfig{
		AllowedFields: []ExpandableField{ExpandFeatures, ExpandGrants},
	}
)

// Expand represents the expand parameter in API requests
type Expand struct {
	Fields map[ExpandableField]bool
}

// NewExpand creates a new Expand from a comma-separated string of fields
func NewExpand(expand string) Expand {
	result := Expand{
		Fields: make(map[ExpandableField]bool),
	}

	if expand == "" {
		return result
	}

	for _, field := range strings.Split(expand, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		result.Fields[ExpandableField(field)] = true
	}

	return result
}

// Has checks if a field should be expanded
func (e Expand) Has(field ExpandableField) bool {
	return e.Fields[field]
}

// IsEmpty checks if no fields are to be expanded
func (e Expand) IsEmpty() bool {
	return len(e.Fields) == 0
}

// Validate checks if the expand request is valid according to the config
func (e Expand) Validate(config ExpandConfig) error {
	for field := range e.Fields {
		allowed := false
		for _, allowedField := range config.AllowedFields {
			if field == allowedField {
				allowed = true
				break
			}
		}
		if !allowed {
			return ierr.NewError("field not allowed to be expanded").
				WithHint("Field is not allowed to be expanded").
				WithReportableDetails(
					map[string]any{
						"field": field,
					},
				).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
