package registry

// MaxVoterCount caps every registered, accredited and per-candidate count.
// Keeps rule arithmetic and running totals well inside int64.
const MaxVoterCount int64 = 1_000_000_000

// PollingUnit is a registry entry. Units are immutable after load.
type PollingUnit struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Region           string `json:"region" yaml:"region"`
	RegisteredVoters int64  `json:"registered_voters" yaml:"registered_voters"`
}

// Candidate is a party/candidate that votes are tallied against.
type Candidate struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Party string `json:"party" yaml:"party"`
	Color string `json:"color" yaml:"color"`
}
