// Package storage defines the persistence contracts consumed by the mission
// lifecycle engine. The engine owns no mutable state itself; per-user
// serialization is delegated to RunUserTransaction.
package storage

import (
	"context"
	"errors"

	"github.com/stellarworks/voyager/internal/app/domain/journey"
	"github.com/stellarworks/voyager/internal/app/domain/mission"
	"github.com/stellarworks/voyager/internal/app/domain/profile"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrExists is returned when creating a record whose key is already taken.
var ErrExists = errors.New("record already exists")

// ErrConflict is returned by RunUserTransaction when a concurrent transaction
// touched the same user's profile. The caller may retry; the attempt left no
// side effects.
var ErrConflict = errors.New("transaction conflict")

// CatalogStore reads mission definitions. It is never written to by the
// engine.
type CatalogStore interface {
	GetMission(ctx context.Context, missionID string) (mission.Definition, error)
	// ListMissions returns the catalog sorted by mission name.
	ListMissions(ctx context.Context) ([]mission.Definition, error)
}

// UserTx is the handle passed to a transaction body. It exposes a consistent
// snapshot of the user's profile and collects an intended write-set: at most
// one profile update plus any number of journey log appends, committed
// atomically together.
//
// Timestamps on the write-set (ActiveMission.StartedAt, Event.OccurredAt,
// Event.Seq) are assigned by the store at commit; values set by the body are
// ignored.
type UserTx interface {
	// Profile returns the snapshot read at transaction start. The read is
	// fresh, never served from a cache.
	Profile() profile.Profile
	// SetActiveMission stages the profile's mission slot. Passing nil clears
	// the slot. Calling it more than once replaces the staged value.
	SetActiveMission(m *profile.ActiveMission)
	// AppendEvent stages one journey log append.
	AppendEvent(e journey.Event)
}

// ProfileStore persists user profiles and their journey logs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (profile.Profile, error)
	CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)

	// ListJourneyEvents returns the user's journey log in descending
	// (OccurredAt, Seq) order.
	ListJourneyEvents(ctx context.Context, userID string) ([]journey.Event, error)

	// RunUserTransaction runs fn against a fresh snapshot of the user's
	// profile and commits the staged write-set atomically, returning the
	// post-commit profile with store-assigned timestamps resolved. A business
	// error returned by fn aborts the transaction with zero side effects and
	// is propagated unchanged. ErrConflict is returned when a concurrent
	// transaction for the same user invalidated the snapshot; fn may be
	// re-invoked by callers that retry, so it must stage writes from the
	// snapshot alone.
	RunUserTransaction(ctx context.Context, userID string, fn func(tx UserTx) error) (profile.Profile, error)
}
