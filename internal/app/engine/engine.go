// Package engine implements the mission lifecycle state machine. A user is
// Idle or Active; start, cancel and complete move between the two states and
// each transition commits a profile mutation together with an append to the
// user's journey log. All mutual exclusion is delegated to the profile
// store's transaction primitive; the engine itself holds no mutable state.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/stellarworks/voyager/internal/app/domain/journey"
	"github.com/stellarworks/voyager/internal/app/domain/mission"
	"github.com/stellarworks/voyager/internal/app/domain/profile"
	"github.com/stellarworks/voyager/internal/app/storage"
	"github.com/stellarworks/voyager/internal/errors"
	"github.com/stellarworks/voyager/internal/logging"
	"github.com/stellarworks/voyager/internal/metrics"
)

// defaultMaxAttempts bounds transparent retries of conflicted transactions.
const defaultMaxAttempts = 3

// Receipt confirms a terminal transition (cancel or complete).
type Receipt struct {
	MissionID   string         `json:"mission_id"`
	MissionName string         `json:"mission_name"`
	Status      journey.Status `json:"status"`
	Message     string         `json:"message"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// StatusView is the public-facing snapshot of a user's current state.
type StatusView struct {
	UserID string                 `json:"user_id"`
	Ship   profile.ShipStatus     `json:"ship"`
	Active *profile.ActiveMission `json:"active_mission"`
}

// Engine orchestrates mission lifecycle transitions.
type Engine struct {
	catalog     storage.CatalogStore
	profiles    storage.ProfileStore
	log         *logging.Logger
	metrics     *metrics.Metrics
	maxAttempts int
}

// Option customises engine construction.
type Option func(*Engine)

// WithMetrics attaches transition and retry counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxAttempts overrides the conflict retry bound.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// New constructs an engine over the given catalog and profile store.
func New(catalog storage.CatalogStore, profiles storage.ProfileStore, log *logging.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logging.NewDefault("engine")
	}
	e := &Engine{
		catalog:     catalog,
		profiles:    profiles,
		log:         log,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListMissions returns the catalog sorted by mission name. Read-only.
func (e *Engine) ListMissions(ctx context.Context) ([]mission.Definition, error) {
	defs, err := e.catalog.ListMissions(ctx)
	if err != nil {
		return nil, errors.Unavailable("mission catalog unavailable", err)
	}
	return defs, nil
}

// GetMission returns a single mission definition. Read-only.
func (e *Engine) GetMission(ctx context.Context, missionID string) (mission.Definition, error) {
	def, err := e.catalog.GetMission(ctx, missionID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return mission.Definition{}, errors.MissionNotFound(missionID)
		}
		return mission.Definition{}, errors.Unavailable("mission catalog unavailable", err)
	}
	return def, nil
}

// Status returns the user's ship status and active mission slot. Read-only.
func (e *Engine) Status(ctx context.Context, userID string) (StatusView, error) {
	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return StatusView{}, errors.UserNotFound(userID)
		}
		return StatusView{}, errors.Unavailable("profile store unavailable", err)
	}
	return StatusView{UserID: p.UserID, Ship: p.Ship, Active: p.Active}, nil
}

// Journey returns the user's journey log, most recent event first. Read-only.
func (e *Engine) Journey(ctx context.Context, userID string) ([]journey.Event, error) {
	if _, err := e.profiles.GetProfile(ctx, userID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.UserNotFound(userID)
		}
		return nil, errors.Unavailable("profile store unavailable", err)
	}
	events, err := e.profiles.ListJourneyEvents(ctx, userID)
	if err != nil {
		return nil, errors.Unavailable("journey log unavailable", err)
	}
	return events, nil
}

// RegisterProfile creates a profile with the given ship status. It is not a
// lifecycle transition; new users start Idle with an empty journey log.
func (e *Engine) RegisterProfile(ctx context.Context, userID string, ship profile.ShipStatus) (profile.Profile, error) {
	p, err := e.profiles.CreateProfile(ctx, profile.Profile{UserID: userID, Ship: ship})
	if err != nil {
		if stderrors.Is(err, storage.ErrExists) {
			existing, getErr := e.profiles.GetProfile(ctx, userID)
			if getErr == nil {
				return existing, nil
			}
			err = getErr
		}
		return profile.Profile{}, errors.Unavailable("profile store unavailable", err)
	}
	return p, nil
}

// Start moves the user from Idle to Active on the given mission. The profile
// update and the "started" journey event commit atomically; the returned
// ActiveMission carries the store-assigned start timestamp.
func (e *Engine) Start(ctx context.Context, userID, missionID string) (profile.ActiveMission, error) {
	def, err := e.GetMission(ctx, missionID)
	if err != nil {
		e.record("start", err)
		return profile.ActiveMission{}, err
	}

	committed, err := e.runUserTx(ctx, "start", userID, func(tx storage.UserTx) error {
		p := tx.Profile()
		if p.Active != nil {
			return errors.AlreadyActive(p.Active.MissionName)
		}
		if err := canStart(p.Ship, def); err != nil {
			return err
		}
		tx.SetActiveMission(&profile.ActiveMission{
			MissionID:       def.ID,
			MissionName:     def.Name,
			DurationSeconds: def.DurationSeconds,
		})
		tx.AppendEvent(journey.Event{
			MissionID:   def.ID,
			MissionName: def.Name,
			Status:      journey.StatusStarted,
		})
		return nil
	})
	if err != nil {
		e.record("start", err)
		return profile.ActiveMission{}, err
	}
	if committed.Active == nil {
		// The commit path guarantees the slot was set; a nil slot here means
		// the store broke its contract.
		err := errors.Internal("mission slot missing after commit", nil)
		e.record("start", err)
		return profile.ActiveMission{}, err
	}

	e.record("start", nil)
	e.recordEvent(journey.StatusStarted)
	return *committed.Active, nil
}

// Cancel moves the user from Active to Idle, appending a "canceled" journey
// event carrying the abandoned mission's identity.
func (e *Engine) Cancel(ctx context.Context, userID string) (Receipt, error) {
	var active profile.ActiveMission

	committed, err := e.runUserTx(ctx, "cancel", userID, func(tx storage.UserTx) error {
		p := tx.Profile()
		if p.Active == nil {
			return errors.NoActiveMission()
		}
		active = *p.Active
		tx.SetActiveMission(nil)
		tx.AppendEvent(journey.Event{
			MissionID:   active.MissionID,
			MissionName: active.MissionName,
			Status:      journey.StatusCanceled,
		})
		return nil
	})
	if err != nil {
		e.record("cancel", err)
		return Receipt{}, err
	}

	e.record("cancel", nil)
	e.recordEvent(journey.StatusCanceled)
	return Receipt{
		MissionID:   active.MissionID,
		MissionName: active.MissionName,
		Status:      journey.StatusCanceled,
		Message:     fmt.Sprintf("mission %q canceled", active.MissionName),
		OccurredAt:  committed.UpdatedAt,
	}, nil
}

// Complete moves the user from Active to Idle, validating the caller-supplied
// mission identity against the server-held slot before appending a
// "completed" journey event.
func (e *Engine) Complete(ctx context.Context, userID, missionID, missionName string) (Receipt, error) {
	if missionID == "" || missionName == "" {
		missing := make([]string, 0, 2)
		if missionID == "" {
			missing = append(missing, "mission_id")
		}
		if missionName == "" {
			missing = append(missing, "mission_name")
		}
		err := errors.MissingParameters(missing...)
		e.record("complete", err)
		return Receipt{}, err
	}

	var active profile.ActiveMission

	committed, err := e.runUserTx(ctx, "complete", userID, func(tx storage.UserTx) error {
		p := tx.Profile()
		if p.Active == nil {
			return errors.NoActiveMission()
		}
		if p.Active.MissionID != missionID {
			return errors.MissionMismatch(missionID, p.Active.MissionID)
		}
		active = *p.Active
		tx.SetActiveMission(nil)
		tx.AppendEvent(journey.Event{
			MissionID:   active.MissionID,
			MissionName: active.MissionName,
			Status:      journey.StatusCompleted,
		})
		return nil
	})
	if err != nil {
		e.record("complete", err)
		return Receipt{}, err
	}

	e.record("complete", nil)
	e.recordEvent(journey.StatusCompleted)
	return Receipt{
		MissionID:   active.MissionID,
		MissionName: active.MissionName,
		Status:      journey.StatusCompleted,
		Message:     fmt.Sprintf("mission %q completed", active.MissionName),
		OccurredAt:  committed.UpdatedAt,
	}, nil
}

// runUserTx commits a transition transaction, retrying bounded times on
// storage conflicts. Business errors from fn propagate unchanged; everything
// else surfaces as a typed reason.
func (e *Engine) runUserTx(ctx context.Context, op, userID string, fn func(tx storage.UserTx) error) (profile.Profile, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		committed, err := e.profiles.RunUserTransaction(ctx, userID, fn)
		if err == nil {
			return committed, nil
		}
		if !stderrors.Is(err, storage.ErrConflict) {
			return profile.Profile{}, e.mapStorageErr(userID, err)
		}
		lastErr = err
		if e.metrics != nil {
			e.metrics.RecordTransactionRetry(op)
		}
		e.log.WithContext(ctx).WithFields(map[string]interface{}{
			"operation": op,
			"user_id":   userID,
			"attempt":   attempt,
		}).Warn("transaction conflict")
		if ctx.Err() != nil {
			return profile.Profile{}, errors.Unavailable("operation canceled", ctx.Err())
		}
	}
	return profile.Profile{}, errors.Unavailable("transaction retries exhausted", lastErr)
}

func (e *Engine) mapStorageErr(userID string, err error) error {
	if se := errors.GetServiceError(err); se != nil {
		return se
	}
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.UserNotFound(userID)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Unavailable("operation canceled", err)
	}
	return errors.Unavailable("profile store unavailable", err)
}

func (e *Engine) record(op string, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if se := errors.GetServiceError(err); se != nil {
			outcome = string(se.Code)
		}
	}
	e.metrics.RecordTransition(op, outcome)
}

func (e *Engine) recordEvent(status journey.Status) {
	if e.metrics != nil {
		e.metrics.RecordJourneyEvent(string(status))
	}
}
