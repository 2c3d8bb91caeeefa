package geo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlCountyFile is the top-level YAML structure for county data files.
type yamlCountyFile struct {
	Counties []yamlCounty `yaml:"counties"`
}

// yamlCounty is the YAML representation of a county.
type yamlCounty struct {
	Name       string `yaml:"name"`
	Population int64  `yaml:"population"`
}

// LoadCountiesFromBytes parses counties from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the county schema.
// Postcondition: Returns the parsed counties or a non-nil error.
func LoadCountiesFromBytes(data []byte) ([]County, error) {
	var file yamlCountyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing county YAML: %w", err)
	}

	counties := make([]County, 0, len(file.Counties))
	for _, c := range file.Counties {
		counties = append(counties, County{Name: c.Name, Population: c.Population})
	}
	return counties, nil
}

// LoadAtlasFromDir loads all YAML files in a directory into a single Atlas.
//
// Precondition: dir must be a valid directory path.
// Postcondition: Returns a validated Atlas or the first error encountered.
func LoadAtlasFromDir(dir string) (*Atlas, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading county directory %s: %w", dir, err)
	}

	var counties []County
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading county file %s: %w", path, err)
		}
		cs, err := LoadCountiesFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading county file %s: %w", path, err)
		}
		counties = append(counties, cs...)
	}

	atlas, err := NewAtlas(counties)
	if err != nil {
		return nil, fmt.Errorf("building atlas from %s: %w", dir, err)
	}
	return atlas, nil
}
