// Package registry is the read-mostly catalog of polling units and
// candidates. It is loaded once at startup from a YAML file, Postgres or the
// built-in seed and never mutated by ingestion.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pollwatch/pkg/platform/sentinel"
)

// Catalog is an in-memory unit registry safe for concurrent reads.
type Catalog struct {
	mu         sync.RWMutex
	units      map[string]PollingUnit
	candidates []Candidate
}

// NewCatalog validates and indexes units. Duplicate ids, blank ids and
// registered-voter counts outside [0, MaxVoterCount] are rejected.
func NewCatalog(units []PollingUnit, candidates []Candidate) (*Catalog, error) {
	idx := make(map[string]PollingUnit, len(units))
	for _, u := range units {
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			return nil, fmt.Errorf("polling unit with empty id")
		}
		if u.RegisteredVoters < 0 {
			return nil, fmt.Errorf("polling unit %s: registered voters must be non-negative", u.ID)
		}
		if u.RegisteredVoters > MaxVoterCount {
			return nil, fmt.Errorf("polling unit %s: registered voters exceed %d", u.ID, MaxVoterCount)
		}
		if _, dup := idx[u.ID]; dup {
			return nil, fmt.Errorf("polling unit %s: duplicate id", u.ID)
		}
		idx[u.ID] = u
	}
	return &Catalog{
		units:      idx,
		candidates: append([]Candidate(nil), candidates...),
	}, nil
}

// Lookup returns the unit with the given id, or sentinel.ErrNotFound.
func (c *Catalog) Lookup(_ context.Context, unitID string) (PollingUnit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.units[unitID]
	if !ok {
		return PollingUnit{}, fmt.Errorf("polling unit %s: %w", unitID, sentinel.ErrNotFound)
	}
	return u, nil
}

// Units returns every unit ordered by id.
func (c *Catalog) Units() []PollingUnit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PollingUnit, 0, len(c.units))
	for _, u := range c.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Candidates returns the configured candidates in catalog order.
func (c *Catalog) Candidates() []Candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Candidate(nil), c.candidates...)
}

// Len returns the number of registered units.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.units)
}
