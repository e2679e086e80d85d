// Package speciesfile reads the target species configuration from YAML.
package speciesfile

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/pestwatch/internal/domain/species"
)

type document struct {
	Species []species.Species `yaml:"species"`
}

// Source implements species.Source over a YAML file. The file is read on
// every List so edits take effect without a restart.
type Source struct {
	Path string
}

func New(path string) *Source { return &Source{Path: path} }

func (s *Source) List(ctx context.Context) ([]species.Species, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read species file %s: %w", s.Path, err)
	}
	return Parse(data)
}

// Parse decodes a species document and checks that every entry carries an
// id and a scientific name.
func Parse(data []byte) ([]species.Species, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode species yaml: %w", err)
	}
	seen := make(map[species.ID]bool, len(doc.Species))
	for i, sp := range doc.Species {
		if sp.ID == "" {
			return nil, fmt.Errorf("species[%d]: id is required", i)
		}
		if sp.ScientificName == "" {
			return nil, fmt.Errorf("species %q: scientificName is required", sp.ID)
		}
		if seen[sp.ID] {
			return nil, fmt.Errorf("species %q: duplicate id", sp.ID)
		}
		seen[sp.ID] = true
	}
	return doc.Species, nil
}
