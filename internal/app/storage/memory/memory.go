// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and local
// development. Per-user isolation uses optimistic versioning: a transaction
// snapshots the profile and its version, and commit fails with ErrConflict if
// another transaction bumped the version in between.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellarworks/voyager/internal/app/domain/journey"
	"github.com/stellarworks/voyager/internal/app/domain/mission"
	"github.com/stellarworks/voyager/internal/app/domain/profile"
	"github.com/stellarworks/voyager/internal/app/storage"
)

// Store holds profiles, journey logs and an optional mission catalog.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]profile.Profile
	versions map[string]int64
	events   map[string][]journey.Event
	missions map[string]mission.Definition
	seq      int64

	forcedConflicts int
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.CatalogStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles: make(map[string]profile.Profile),
		versions: make(map[string]int64),
		events:   make(map[string][]journey.Event),
		missions: make(map[string]mission.Definition),
	}
}

// ForceConflicts makes the next n commits fail with storage.ErrConflict, for
// exercising retry paths in tests.
func (s *Store) ForceConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forcedConflicts = n
}

// SeedMissions loads mission definitions into the catalog.
func (s *Store) SeedMissions(defs ...mission.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range defs {
		s.missions[def.ID] = def
	}
}

// CatalogStore implementation ------------------------------------------------

func (s *Store) GetMission(_ context.Context, missionID string) (mission.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.missions[missionID]
	if !ok {
		return mission.Definition{}, storage.ErrNotFound
	}
	return cloneMission(def), nil
}

func (s *Store) ListMissions(_ context.Context) ([]mission.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]mission.Definition, 0, len(s.missions))
	for _, def := range s.missions {
		result = append(result, cloneMission(def))
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

// ProfileStore implementation -------------------------------------------------

func (s *Store) GetProfile(_ context.Context, userID string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return profile.Profile{}, storage.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *Store) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.UserID]; exists {
		return profile.Profile{}, storage.ErrExists
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.profiles[p.UserID] = cloneProfile(p)
	s.versions[p.UserID] = 1
	return cloneProfile(p), nil
}

func (s *Store) ListJourneyEvents(_ context.Context, userID string) ([]journey.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.events[userID]
	result := make([]journey.Event, len(log))
	copy(result, log)
	sort.Slice(result, func(i, j int) bool {
		if !result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].OccurredAt.After(result[j].OccurredAt)
		}
		return result[i].Seq > result[j].Seq
	})
	return result, nil
}

// userTx collects the intended write-set for one transaction attempt.
type userTx struct {
	snapshot   profile.Profile
	slotStaged bool
	slot       *profile.ActiveMission
	appends    []journey.Event
}

func (tx *userTx) Profile() profile.Profile { return cloneProfile(tx.snapshot) }

func (tx *userTx) SetActiveMission(m *profile.ActiveMission) {
	tx.slotStaged = true
	if m == nil {
		tx.slot = nil
		return
	}
	staged := *m
	tx.slot = &staged
}

func (tx *userTx) AppendEvent(e journey.Event) {
	tx.appends = append(tx.appends, e)
}

func (s *Store) RunUserTransaction(ctx context.Context, userID string, fn func(tx storage.UserTx) error) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}

	s.mu.RLock()
	p, ok := s.profiles[userID]
	version := s.versions[userID]
	s.mu.RUnlock()
	if !ok {
		return profile.Profile{}, storage.ErrNotFound
	}

	tx := &userTx{snapshot: cloneProfile(p)}
	if err := fn(tx); err != nil {
		return profile.Profile{}, err
	}

	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forcedConflicts > 0 {
		s.forcedConflicts--
		return profile.Profile{}, storage.ErrConflict
	}
	if s.versions[userID] != version {
		return profile.Profile{}, storage.ErrConflict
	}

	now := time.Now().UTC()
	committed := s.profiles[userID]
	if tx.slotStaged {
		if tx.slot != nil {
			slot := *tx.slot
			slot.StartedAt = now
			committed.Active = &slot
		} else {
			committed.Active = nil
		}
	}
	committed.UpdatedAt = now
	s.profiles[userID] = committed
	s.versions[userID] = version + 1

	for _, e := range tx.appends {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.UserID = userID
		e.OccurredAt = now
		s.seq++
		e.Seq = s.seq
		s.events[userID] = append(s.events[userID], e)
	}
	return cloneProfile(committed), nil
}

func cloneProfile(p profile.Profile) profile.Profile {
	out := p
	if p.Ship.CrewCurrent != nil {
		crew := *p.Ship.CrewCurrent
		out.Ship.CrewCurrent = &crew
	}
	if p.Active != nil {
		active := *p.Active
		out.Active = &active
	}
	return out
}

func cloneMission(def mission.Definition) mission.Definition {
	out := def
	if def.CrewRequired != nil {
		crew := *def.CrewRequired
		out.CrewRequired = &crew
	}
	return out
}
