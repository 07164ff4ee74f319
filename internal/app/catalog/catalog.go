// Package catalog provides the read-only mission catalog, loaded from a YAML
// file at startup. The engine consumes it through storage.CatalogStore and
// never mutates it.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stellarworks/voyager/internal/app/domain/mission"
	"github.com/stellarworks/voyager/internal/app/storage"
)

// Store is an immutable, in-memory mission catalog.
type Store struct {
	byID   map[string]mission.Definition
	sorted []mission.Definition
}

var _ storage.CatalogStore = (*Store)(nil)

type catalogFile struct {
	Missions []mission.Definition `yaml:"missions"`
}

// New builds a catalog from the given definitions.
func New(defs []mission.Definition) (*Store, error) {
	byID := make(map[string]mission.Definition, len(defs))
	for i, def := range defs {
		if strings.TrimSpace(def.ID) == "" {
			return nil, fmt.Errorf("mission %d: id is required", i)
		}
		if strings.TrimSpace(def.Name) == "" {
			return nil, fmt.Errorf("mission %s: name is required", def.ID)
		}
		if def.DurationSeconds <= 0 {
			return nil, fmt.Errorf("mission %s: duration_seconds must be positive", def.ID)
		}
		if def.CrewRequired != nil && *def.CrewRequired < 0 {
			return nil, fmt.Errorf("mission %s: crew_required must be non-negative", def.ID)
		}
		if _, dup := byID[def.ID]; dup {
			return nil, fmt.Errorf("mission %s: duplicate id", def.ID)
		}
		byID[def.ID] = def
	}

	sorted := make([]mission.Definition, 0, len(defs))
	for _, def := range byID {
		sorted = append(sorted, def)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	return &Store{byID: byID, sorted: sorted}, nil
}

// LoadFile reads and validates a mission catalog from a YAML file.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mission catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse mission catalog: %w", err)
	}
	return New(file.Missions)
}

func (s *Store) GetMission(_ context.Context, missionID string) (mission.Definition, error) {
	def, ok := s.byID[missionID]
	if !ok {
		return mission.Definition{}, storage.ErrNotFound
	}
	return def, nil
}

func (s *Store) ListMissions(_ context.Context) ([]mission.Definition, error) {
	result := make([]mission.Definition, len(s.sorted))
	copy(result, s.sorted)
	return result, nil
}
