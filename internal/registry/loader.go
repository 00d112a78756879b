package registry

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML layout of a registry.
//
//	candidates:
//	  - {id: party_a, name: Alliance for Progress, party: AFP, color: "#3b82f6"}
//	units:
//	  - {id: PU-101, name: Central Station Hall A, region: North District, registered_voters: 500}
type File struct {
	Candidates []Candidate   `yaml:"candidates"`
	Units      []PollingUnit `yaml:"units"`
}

// LoadFile reads a YAML registry from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML registry from r.
func Load(r io.Reader) (*Catalog, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if len(file.Units) == 0 {
		return nil, fmt.Errorf("registry has no polling units")
	}
	return NewCatalog(file.Units, file.Candidates)
}
