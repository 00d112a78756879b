package registry

import "fmt"

// SeedCandidates are the candidates used when no registry file is configured.
var SeedCandidates = []Candidate{
	{ID: "party_a", Name: "Alliance for Progress", Party: "AFP", Color: "#3b82f6"},
	{ID: "party_b", Name: "National Democratic Union", Party: "NDU", Color: "#ef4444"},
	{ID: "party_c", Name: "Liberal Green Party", Party: "LGP", Color: "#22c55e"},
}

// SeedUnits are the reference polling units.
var SeedUnits = []PollingUnit{
	{ID: "PU-101", Name: "Central Station Hall A", Region: "North District", RegisteredVoters: 500},
	{ID: "PU-102", Name: "Community School Ward 4", Region: "North District", RegisteredVoters: 800},
	{ID: "PU-103", Name: "Market Square Booth 2", Region: "East District", RegisteredVoters: 1200},
	{ID: "PU-104", Name: "Riverside Complex", Region: "South District", RegisteredVoters: 600},
	{ID: "PU-105", Name: "Hilltop Center", Region: "West District", RegisteredVoters: 400},
}

// SeedRegions are the districts simulated units are spread across.
var SeedRegions = []string{"North District", "South District", "East District", "West District"}

// SimulatedUnits returns PU-100..PU-149, skipping ids already in SeedUnits.
// Each simulated unit has 500 registered voters.
func SimulatedUnits() []PollingUnit {
	taken := make(map[string]struct{}, len(SeedUnits))
	for _, u := range SeedUnits {
		taken[u.ID] = struct{}{}
	}
	var out []PollingUnit
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("PU-%d", 100+i)
		if _, ok := taken[id]; ok {
			continue
		}
		out = append(out, PollingUnit{
			ID:               id,
			Name:             fmt.Sprintf("Unit %s - Simulated", id),
			Region:           SeedRegions[i%len(SeedRegions)],
			RegisteredVoters: 500,
		})
	}
	return out
}

// NewSeedCatalog returns the reference units plus the simulated ones.
func NewSeedCatalog() *Catalog {
	units := append(append([]PollingUnit(nil), SeedUnits...), SimulatedUnits()...)
	c, err := NewCatalog(units, SeedCandidates)
	if err != nil {
		panic(fmt.Sprintf("seed registry is invalid: %v", err))
	}
	return c
}
