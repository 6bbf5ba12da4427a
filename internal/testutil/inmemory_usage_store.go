package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meterflow/meterflow/internal/domain/events"
)

// InMemoryUsageStore implements events.Repository, standing in for the
// event ingestion pipeline
type InMemoryUsageStore struct {
	mu     sync.RWMutex
	events []*events.UsageEvent
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		events: make([]*events.UsageEvent, 0),
	}
}

func (s *InMemoryUsageStore) Insert(ctx context.Context, event *events.UsageEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

func (s *InMemoryUsageStore) GetUsageSeries(ctx context.Context, subjectID, featureKey string, from, to time.Time) ([]*events.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := make([]*events.UsageEvent, 0)
	for _, e := range s.events {
		if e.SubjectID != subjectID || e.FeatureKey != featureKey {
			continue
		}
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		copied := *e
		series = append(series, &copied)
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series, nil
}

// Clear removes all usage events from the store
func (s *InMemoryUsageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]*events.UsageEvent, 0)
}
