// Package geo provides the county atlas: the set of named claimable regions
// and their populations, loaded from YAML content files.
package geo

import (
	"fmt"
	"sort"
)

// County is a named claimable region with a population used for cost scaling.
type County struct {
	Name       string
	Population int64
}

// Atlas is an immutable lookup of counties by name.
// Safe for concurrent use after construction.
type Atlas struct {
	counties map[string]County
}

// NewAtlas builds an Atlas from the given counties.
//
// Precondition: county names must be unique and non-empty.
// Postcondition: Returns an Atlas or an error on duplicate/empty names.
func NewAtlas(counties []County) (*Atlas, error) {
	m := make(map[string]County, len(counties))
	for _, c := range counties {
		if c.Name == "" {
			return nil, fmt.Errorf("county with empty name")
		}
		if c.Population < 0 {
			return nil, fmt.Errorf("county %q has negative population %d", c.Name, c.Population)
		}
		if _, exists := m[c.Name]; exists {
			return nil, fmt.Errorf("duplicate county name %q", c.Name)
		}
		m[c.Name] = c
	}
	return &Atlas{counties: m}, nil
}

// Lookup returns the county with the given name.
//
// Postcondition: Returns (county, true) if found, or (zero, false).
func (a *Atlas) Lookup(name string) (County, bool) {
	c, ok := a.counties[name]
	return c, ok
}

// Population returns the population of the named county.
//
// Postcondition: Returns (population, true) if the county exists.
func (a *Atlas) Population(name string) (int64, bool) {
	c, ok := a.counties[name]
	return c.Population, ok
}

// Count returns the number of counties in the atlas.
func (a *Atlas) Count() int {
	return len(a.counties)
}

// Names returns all county names in lexicographic order.
func (a *Atlas) Names() []string {
	names := make([]string, 0, len(a.counties))
	for name := range a.counties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
