package events

import (
	"time"

	ierr "github.com/meterflow/meterflow/internal/errors"
	"github.com/shopspring/decimal"
)

// UsageEvent is one pre-aggregated usage delta for a subject and feature.
// The ingestion pipeline has already applied the meter's aggregation; the
// engine only consumes the resulting (timestamp, delta) series.
type UsageEvent struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	SubjectID  string          `json:"subject_id"`
	FeatureKey string          `json:"feature_key"`
	Timestamp  time.Time       `json:"timestamp"`
	Delta      decimal.Decimal `json:"delta"`
}

// Validate performs validation on the usage event
func (e *UsageEvent) Validate() error {
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
	if e.Timestamp.IsZero() {
		return ierr.NewError("timestamp is required").
			WithHint("Please provide an event timestamp").
			Mark(ierr.ErrValidation)
	}
	if e.Delta.IsNegative() {
		return ierr.NewError("delta cannot be negative").
			WithHint("Usage deltas must be non-negative").
			WithReportableDetails(map[string]interface{}{
				"delta": e.Delta,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SumDeltas returns the total usage across a series
func SumDeltas(series []*UsageEvent) decimal.Decimal {
	total := decimal.Zero
	for _, e := range series {
		total = total.Add(e.Delta)
	}
	return total
}
