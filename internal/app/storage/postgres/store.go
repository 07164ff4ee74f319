// Package postgres implements the storage interfaces backed by PostgreSQL.
// Per-user serialization relies on a row lock on the profile: every
// transaction takes SELECT ... FOR UPDATE on the user's row, so concurrent
// transitions for the same user serialize while different users proceed in
// parallel. Serialization and deadlock failures map to storage.ErrConflict
// for the engine to retry.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/stellarworks/voyager/internal/app/domain/journey"
	"github.com/stellarworks/voyager/internal/app/domain/profile"
	"github.com/stellarworks/voyager/internal/app/storage"
)

// Store implements storage.ProfileStore over a PostgreSQL database.
type Store struct {
	db *sql.DB
}

var _ storage.ProfileStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS user_profiles (
	user_id        TEXT PRIMARY KEY,
	ship           JSONB NOT NULL,
	active_mission JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS journey_events (
	seq          BIGSERIAL PRIMARY KEY,
	id           UUID NOT NULL,
	user_id      TEXT NOT NULL REFERENCES user_profiles (user_id),
	mission_id   TEXT NOT NULL,
	mission_name TEXT NOT NULL,
	status       TEXT NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS journey_events_user_order
	ON journey_events (user_id, occurred_at DESC, seq DESC);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, ship, active_mission, created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`, userID)
	return scanProfile(row)
}

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	shipJSON, err := json.Marshal(p.Ship)
	if err != nil {
		return profile.Profile{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO user_profiles (user_id, ship)
		VALUES ($1, $2)
		RETURNING created_at, updated_at
	`, p.UserID, shipJSON)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return profile.Profile{}, storage.ErrExists
		}
		return profile.Profile{}, err
	}
	p.Active = nil
	return p, nil
}

func (s *Store) ListJourneyEvents(ctx context.Context, userID string) ([]journey.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, mission_id, mission_name, status, occurred_at, seq
		FROM journey_events
		WHERE user_id = $1
		ORDER BY occurred_at DESC, seq DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []journey.Event
	for rows.Next() {
		var e journey.Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.MissionID, &e.MissionName, &e.Status, &e.OccurredAt, &e.Seq); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// userTx collects the intended write-set for one transaction attempt.
type userTx struct {
	snapshot   profile.Profile
	slotStaged bool
	slot       *profile.ActiveMission
	appends    []journey.Event
}

func (tx *userTx) Profile() profile.Profile { return tx.snapshot }

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
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return profile.Profile{}, mapTxErr(err)
	}
	defer dbTx.Rollback()

	row := dbTx.QueryRowContext(ctx, `
		SELECT user_id, ship, active_mission, created_at, updated_at
		FROM user_profiles
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	snapshot, err := scanProfile(row)
	if err != nil {
		return profile.Profile{}, mapTxErr(err)
	}

	tx := &userTx{snapshot: snapshot}
	if err := fn(tx); err != nil {
		return profile.Profile{}, err
	}

	// Commit timestamp comes from the database, not the process clock, so
	// retried and concurrent transitions cannot skew journey ordering.
	var now time.Time
	if err := dbTx.QueryRowContext(ctx, `SELECT now()`).Scan(&now); err != nil {
		return profile.Profile{}, mapTxErr(err)
	}

	committed := snapshot
	if tx.slotStaged {
		var slotJSON interface{}
		if tx.slot != nil {
			slot := *tx.slot
			slot.StartedAt = now
			data, err := json.Marshal(slot)
			if err != nil {
				return profile.Profile{}, err
			}
			slotJSON = data
			committed.Active = &slot
		} else {
			committed.Active = nil
		}
		if _, err := dbTx.ExecContext(ctx, `
			UPDATE user_profiles
			SET active_mission = $2, updated_at = $3
			WHERE user_id = $1
		`, userID, slotJSON, now); err != nil {
			return profile.Profile{}, mapTxErr(err)
		}
		committed.UpdatedAt = now
	}

	for _, e := range tx.appends {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, err := dbTx.ExecContext(ctx, `
			INSERT INTO journey_events (id, user_id, mission_id, mission_name, status, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, e.ID, userID, e.MissionID, e.MissionName, e.Status, now); err != nil {
			return profile.Profile{}, mapTxErr(err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return profile.Profile{}, mapTxErr(err)
	}
	return committed, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (profile.Profile, error) {
	var (
		p       profile.Profile
		shipRaw []byte
		slotRaw []byte
	)
	if err := row.Scan(&p.UserID, &shipRaw, &slotRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profile.Profile{}, storage.ErrNotFound
		}
		return profile.Profile{}, err
	}
	if len(shipRaw) > 0 {
		if err := json.Unmarshal(shipRaw, &p.Ship); err != nil {
			return profile.Profile{}, err
		}
	}
	if len(slotRaw) > 0 {
		var slot profile.ActiveMission
		if err := json.Unmarshal(slotRaw, &slot); err != nil {
			return profile.Profile{}, err
		}
		p.Active = &slot
	}
	return p, nil
}

// mapTxErr converts retryable postgres failures to storage.ErrConflict.
func mapTxErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return storage.ErrConflict
		}
	}
	return err
}
