// Package store holds the Result Store backends: one current record per unit.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"pollwatch/internal/results"
	"pollwatch/pkg/platform/sentinel"
)

// InMemoryStore keeps current records in a map. Records are cloned on the way
// in and out so callers never share state with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*results.ResultRecord
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*results.ResultRecord)}
}

// Get returns the current record for a unit or sentinel.ErrNotFound.
func (s *InMemoryStore) Get(_ context.Context, unitID string) (*results.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[unitID]
	if !ok {
		return nil, fmt.Errorf("result for unit %s: %w", unitID, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

// Put replaces the current record for rec.UnitID.
func (s *InMemoryStore) Put(_ context.Context, rec *results.ResultRecord) error {
	if rec == nil {
		return fmt.Errorf("result record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UnitID] = rec.Clone()
	return nil
}

// List returns records matching f ordered by unit id.
func (s *InMemoryStore) List(_ context.Context, f results.Filter) ([]*results.ResultRecord, error) {
	s.mu.RLock()
	out := make([]*results.ResultRecord, 0, len(s.records))
	for _, rec := range s.records {
		if f.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *results.ResultRecord) int {
		return strings.Compare(a.UnitID, b.UnitID)
	})
	return out, nil
}
