package service

import "sync"

// unitLocks hands out one mutex per polling unit. The set of units is bounded
// by the registry, so entries are never removed.
type unitLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUnitLocks() *unitLocks {
	return &unitLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the unit's mutex and returns its release.
func (l *unitLocks) lock(unitID string) func() {
	l.mu.Lock()
	m, ok := l.locks[unitID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[unitID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
