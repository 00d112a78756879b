package store

import (
	"context"

	"pollwatch/internal/audit"
	"pollwatch/pkg/platform/ring"
)

// DefaultMemoryCapacity bounds the in-memory trail.
const DefaultMemoryCapacity = 10000

// InMemoryStore keeps the most recent audit events; the oldest are evicted.
type InMemoryStore struct {
	events *ring.Buffer[audit.Event]
}

func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryStore{events: ring.New[audit.Event](capacity)}
}

func (s *InMemoryStore) Append(_ context.Context, events ...audit.Event) error {
	for _, ev := range events {
		s.events.Push(ev)
	}
	return nil
}

// List returns matching events newest first.
func (s *InMemoryStore) List(_ context.Context, q audit.Query) ([]audit.Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	out := make([]audit.Event, 0, min(limit, s.events.Len()))
	for _, ev := range s.events.Recent(0) {
		if q.UnitID != "" && ev.UnitID != q.UnitID {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
