package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stellarworks/voyager/internal/app/domain/mission"
	"github.com/stellarworks/voyager/internal/app/storage"
)

func intPtr(v int) *int { return &v }

func validDefs() []mission.Definition {
	return []mission.Definition{
		{ID: "cargo", Name: "Cargo Run", CrewRequired: intPtr(2), DurationSeconds: 600},
		{ID: "survey", Name: "asteroid survey", CrewRequired: intPtr(3), DurationSeconds: 300},
		{ID: "mystery", Name: "Uncharted Anomaly", DurationSeconds: 900},
	}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(defs []mission.Definition)
		wantErr string
	}{
		{
			name:    "missing id",
			mutate:  func(defs []mission.Definition) { defs[0].ID = "  " },
			wantErr: "id is required",
		},
		{
			name:    "missing name",
			mutate:  func(defs []mission.Definition) { defs[1].Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "zero duration",
			mutate:  func(defs []mission.Definition) { defs[0].DurationSeconds = 0 },
			wantErr: "duration_seconds must be positive",
		},
		{
			name:    "negative crew",
			mutate:  func(defs []mission.Definition) { defs[0].CrewRequired = intPtr(-1) },
			wantErr: "crew_required must be non-negative",
		},
		{
			name:    "duplicate id",
			mutate:  func(defs []mission.Definition) { defs[1].ID = defs[0].ID },
			wantErr: "duplicate id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defs := validDefs()
			tc.mutate(defs)
			_, err := New(defs)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLookupAndOrder(t *testing.T) {
	ctx := context.Background()
	store, err := New(validDefs())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	def, err := store.GetMission(ctx, "survey")
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if def.Name != "asteroid survey" || *def.CrewRequired != 3 {
		t.Fatalf("unexpected mission %+v", def)
	}

	_, err = store.GetMission(ctx, "ghost")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	defs, err := store.ListMissions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"survey", "cargo", "mystery"} // case-insensitive name order
	if len(defs) != len(want) {
		t.Fatalf("expected %d missions, got %d", len(want), len(defs))
	}
	for i, id := range want {
		if defs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, defs[i].ID)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missions.yaml")
	doc := `missions:
  - id: survey
    name: Asteroid Survey
    description: Chart the inner belt.
    crew_required: 3
    duration_seconds: 300
  - id: relay
    name: Deep Space Relay
    duration_seconds: 900
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	def, err := store.GetMission(context.Background(), "survey")
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if def.CrewRequired == nil || *def.CrewRequired != 3 {
		t.Fatalf("crew_required not parsed, got %+v", def.CrewRequired)
	}
	if def.Description != "Chart the inner belt." {
		t.Fatalf("description not parsed, got %q", def.Description)
	}

	relay, err := store.GetMission(context.Background(), "relay")
	if err != nil {
		t.Fatalf("get mission: %v", err)
	}
	if relay.CrewRequired != nil {
		t.Fatalf("absent crew_required should stay nil, got %v", *relay.CrewRequired)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("missions: [not a mapping"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
