package tracker

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML format used to preload a [MemStore].
//
// Example:
//
//	projects:
//	  - id: 1
//	    key: WEB
//	    name: "Website"
//	tickets:
//	  - title: "Login button misaligned"
//	    type: bug
//	    priority: high
//	    project_id: 1
type SeedFile struct {
	Projects []Project `yaml:"projects"`
	Tickets  []Ticket  `yaml:"tickets"`
}

// LoadSeedFile reads and parses a seed YAML file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tracker: open seed file %q: %w", path, err)
	}
	defer f.Close()

	sf, err := LoadSeedFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("tracker: parse seed file %q: %w", path, err)
	}
	return sf, nil
}

// LoadSeedFromReader parses seed YAML from r.
func LoadSeedFromReader(r io.Reader) (*SeedFile, error) {
	var sf SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("tracker: decode seed yaml: %w", err)
	}
	return &sf, nil
}

// Seed loads every project and then every ticket of sf into s. It stops at
// the first failure and returns how many records were stored.
func (s *MemStore) Seed(ctx context.Context, sf *SeedFile) (int, error) {
	if sf == nil {
		return 0, fmt.Errorf("tracker: seed must not be nil")
	}
	n := 0
	for i, p := range sf.Projects {
		if _, err := s.AddProject(ctx, p); err != nil {
			return n, fmt.Errorf("tracker: seed project %d (%q): %w", i, p.Name, err)
		}
		n++
	}
	for i, t := range sf.Tickets {
		if _, err := s.CreateTicket(ctx, t); err != nil {
			return n, fmt.Errorf("tracker: seed ticket %d (%q): %w", i, t.Title, err)
		}
		n++
	}
	return n, nil
}
