package events

import (
	"context"
	"time"
)

// Repository is the usage-series query contract against the event ingestion
// pipeline, an external collaborator. Reads are treated as synchronous and
// events are immutable once ingested.
type Repository interface {
	// GetUsageSeries returns the time-ordered usage deltas for a subject and
	// feature within [from, to)
	GetUsageSeries(ctx context.Context, subjectID, featureKey string, from, to time.Time) ([]*UsageEvent, error)
	// Insert ingests a usage event
	Insert(ctx context.Context, event *UsageEvent) error
}
