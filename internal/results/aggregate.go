package results

import "sync"

// Aggregator keeps running totals over the current record of every unit.
// All mutation goes through Apply and ApplyStatusChange under a single mutex,
// so each accepted change is counted exactly once. Records reach it only after
// Evaluate has bounded their counts, which keeps the sums inside int64 for
// millions of units.
type Aggregator struct {
	mu sync.RWMutex

	totalRegistered int64
	totalAccredited int64
	reportedUnits   int64
	votes           map[string]int64
	byStatus        map[Status]int64
	byRegion        map[string]int64
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		votes:    make(map[string]int64),
		byStatus: make(map[Status]int64),
		byRegion: make(map[string]int64),
	}
}

// Apply replaces old's contribution with next's. old is nil for a unit's
// first submission; next is nil when a record is removed.
func (a *Aggregator) Apply(old, next *ResultRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if old != nil {
		a.add(old, -1)
	}
	if next != nil {
		a.add(next, 1)
	}
}

// ApplyStatusChange moves one record between status buckets. Vote and turnout
// totals are untouched.
func (a *Aggregator) ApplyStatusChange(from, to Status) {
	if from == to {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byStatus[from]--
	a.byStatus[to]++
}

// Snapshot returns a copy of the running totals. Zero entries are dropped from
// the candidate and region maps; every status is always present.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{
		TotalRegistered:  a.totalRegistered,
		TotalAccredited:  a.totalAccredited,
		ReportedUnits:    a.reportedUnits,
		VotesByCandidate: nonZero(a.votes),
		CountByStatus:    make(map[Status]int64, len(Statuses)),
		CountByRegion:    nonZero(a.byRegion),
	}
	for _, s := range Statuses {
		snap.CountByStatus[s] = a.byStatus[s]
	}
	return snap
}

// Reset clears every total.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalRegistered, a.totalAccredited, a.reportedUnits = 0, 0, 0
	clear(a.votes)
	clear(a.byStatus)
	clear(a.byRegion)
}

// RecomputeFromScratch rebuilds a snapshot with a full scan over records.
// It must always equal the incrementally maintained Snapshot.
func RecomputeFromScratch(records []*ResultRecord) Snapshot {
	agg := NewAggregator()
	for _, rec := range records {
		agg.add(rec, 1)
	}
	return agg.Snapshot()
}

// add must be called with mu held.
func (a *Aggregator) add(rec *ResultRecord, sign int64) {
	a.totalRegistered += sign * rec.RegisteredVoters
	a.totalAccredited += sign * rec.AccreditedVoters
	a.reportedUnits += sign
	for id, n := range rec.Votes {
		a.votes[id] += sign * n
	}
	a.byStatus[rec.Status] += sign
	a.byRegion[rec.Region] += sign * rec.AccreditedVoters
}

func nonZero[K comparable](m map[K]int64) map[K]int64 {
	out := make(map[K]int64, len(m))
	for k, v := range m {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
