package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stellarworks/voyager/internal/app/domain/journey"
	"github.com/stellarworks/voyager/internal/app/domain/mission"
	"github.com/stellarworks/voyager/internal/app/domain/profile"
	"github.com/stellarworks/voyager/internal/app/storage/memory"
	svcerrors "github.com/stellarworks/voyager/internal/errors"
)

func intPtr(v int) *int { return &v }

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.SeedMissions(
		mission.Definition{ID: "survey", Name: "Asteroid Survey", CrewRequired: intPtr(3), DurationSeconds: 300},
		mission.Definition{ID: "cargo", Name: "Cargo Run", CrewRequired: intPtr(2), DurationSeconds: 600},
		mission.Definition{ID: "mystery", Name: "Uncharted Anomaly", DurationSeconds: 900},
	)
	return New(store, store, nil), store
}

func registerUser(t *testing.T, e *Engine, userID string, crew int) {
	t.Helper()
	_, err := e.RegisterProfile(context.Background(), userID, profile.ShipStatus{
		Name:        "ISS Meridian",
		CrewCurrent: intPtr(crew),
	})
	if err != nil {
		t.Fatalf("register profile: %v", err)
	}
}

func assertCode(t *testing.T, err error, code svcerrors.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error code %s, got nil", code)
	}
	se := svcerrors.GetServiceError(err)
	if se == nil {
		t.Fatalf("expected ServiceError, got %T: %v", err, err)
	}
	if se.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, se.Code, err)
	}
}

func TestStartHappyPath(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	active, err := eng.Start(ctx, "alice", "survey")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if active.MissionID != "survey" || active.MissionName != "Asteroid Survey" {
		t.Fatalf("unexpected active mission %+v", active)
	}
	if active.StartedAt.IsZero() {
		t.Fatal("expected store-assigned start timestamp")
	}
	if active.DurationSeconds != 300 {
		t.Fatalf("expected duration 300, got %d", active.DurationSeconds)
	}

	view, err := eng.Status(ctx, "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Active == nil || view.Active.MissionID != "survey" {
		t.Fatalf("status should show the active mission, got %+v", view.Active)
	}

	events, err := store.ListJourneyEvents(ctx, "alice")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one journey event, got %d", len(events))
	}
	if events[0].Status != journey.StatusStarted {
		t.Fatalf("expected started event, got %s", events[0].Status)
	}
	if events[0].MissionID != "survey" || events[0].OccurredAt.IsZero() {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestStartWhileActive(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	if _, err := eng.Start(ctx, "alice", "survey"); err != nil {
		t.Fatalf("first start: %v", err)
	}

	_, err := eng.Start(ctx, "alice", "cargo")
	assertCode(t, err, svcerrors.CodeAlreadyActive)

	// Profile unchanged by the failed attempt.
	view, err := eng.Status(ctx, "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Active == nil || view.Active.MissionID != "survey" {
		t.Fatalf("active mission should still be survey, got %+v", view.Active)
	}
	events, _ := store.ListJourneyEvents(ctx, "alice")
	if len(events) != 1 {
		t.Fatalf("failed start must not append events, log has %d", len(events))
	}
}

func TestStartUnknownUserAndMission(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	_, err := eng.Start(ctx, "nobody", "survey")
	assertCode(t, err, svcerrors.CodeUserNotFound)

	_, err = eng.Start(ctx, "alice", "ghost-mission")
	assertCode(t, err, svcerrors.CodeMissionNotFound)
}

func TestStartEligibility(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	// crewCurrent 2 < crewRequired 3
	registerUser(t, eng, "small-crew", 2)
	_, err := eng.Start(ctx, "small-crew", "survey")
	assertCode(t, err, svcerrors.CodeInsufficientCrew)

	view, _ := eng.Status(ctx, "small-crew")
	if view.Active != nil {
		t.Fatalf("ineligible start must not create an active mission")
	}
	events, _ := store.ListJourneyEvents(ctx, "small-crew")
	if len(events) != 0 {
		t.Fatalf("ineligible start must not append events, log has %d", len(events))
	}

	// Unknown crew on the ship.
	if _, err := eng.RegisterProfile(ctx, "no-crew-data", profile.ShipStatus{Name: "Derelict"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = eng.Start(ctx, "no-crew-data", "survey")
	assertCode(t, err, svcerrors.CodeIncompleteShipData)

	// Mission with no crew requirement recorded.
	registerUser(t, eng, "bob", 10)
	_, err = eng.Start(ctx, "bob", "mystery")
	assertCode(t, err, svcerrors.CodeIncompleteMissionData)
}

func TestCancelLifecycle(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	// Cancel with nothing active.
	_, err := eng.Cancel(ctx, "alice")
	assertCode(t, err, svcerrors.CodeNoActiveMission)
	if events, _ := store.ListJourneyEvents(ctx, "alice"); len(events) != 0 {
		t.Fatalf("failed cancel must not append events, log has %d", len(events))
	}

	if _, err := eng.Start(ctx, "alice", "survey"); err != nil {
		t.Fatalf("start: %v", err)
	}

	receipt, err := eng.Cancel(ctx, "alice")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if receipt.MissionName != "Asteroid Survey" || receipt.Status != journey.StatusCanceled {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if receipt.Message == "" {
		t.Fatal("receipt should carry a confirmation message")
	}

	view, _ := eng.Status(ctx, "alice")
	if view.Active != nil {
		t.Fatalf("cancel should clear the mission slot, got %+v", view.Active)
	}

	events, _ := store.ListJourneyEvents(ctx, "alice")
	if len(events) != 2 {
		t.Fatalf("expected two journey events, got %d", len(events))
	}
	if events[0].Status != journey.StatusCanceled {
		t.Fatalf("most recent event should be canceled, got %s", events[0].Status)
	}
	if events[1].Status != journey.StatusStarted {
		t.Fatalf("older event should be started, got %s", events[1].Status)
	}
}

func TestCompleteLifecycle(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	// Complete with nothing active.
	_, err := eng.Complete(ctx, "alice", "survey", "Asteroid Survey")
	assertCode(t, err, svcerrors.CodeNoActiveMission)

	if _, err := eng.Start(ctx, "alice", "survey"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Missing parameters.
	_, err = eng.Complete(ctx, "alice", "", "Asteroid Survey")
	assertCode(t, err, svcerrors.CodeMissingParameters)
	_, err = eng.Complete(ctx, "alice", "survey", "")
	assertCode(t, err, svcerrors.CodeMissingParameters)

	// Wrong mission id.
	_, err = eng.Complete(ctx, "alice", "cargo", "Cargo Run")
	assertCode(t, err, svcerrors.CodeMissionMismatch)
	view, _ := eng.Status(ctx, "alice")
	if view.Active == nil || view.Active.MissionID != "survey" {
		t.Fatalf("mismatch must not mutate state, got %+v", view.Active)
	}

	receipt, err := eng.Complete(ctx, "alice", "survey", "Asteroid Survey")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if receipt.Status != journey.StatusCompleted || receipt.MissionID != "survey" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	view, _ = eng.Status(ctx, "alice")
	if view.Active != nil {
		t.Fatalf("complete should clear the mission slot")
	}

	events, _ := store.ListJourneyEvents(ctx, "alice")
	if len(events) != 2 {
		t.Fatalf("expected two journey events, got %d", len(events))
	}
	if events[0].Status != journey.StatusCompleted {
		t.Fatalf("most recent event should be completed, got %s", events[0].Status)
	}
}

func TestReadsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	for i := 0; i < 3; i++ {
		if _, err := eng.GetMission(ctx, "survey"); err != nil {
			t.Fatalf("get mission: %v", err)
		}
		if _, err := eng.Status(ctx, "alice"); err != nil {
			t.Fatalf("status: %v", err)
		}
		if _, err := eng.Journey(ctx, "alice"); err != nil {
			t.Fatalf("journey: %v", err)
		}
	}
	if events, _ := store.ListJourneyEvents(ctx, "alice"); len(events) != 0 {
		t.Fatalf("reads must not append events, log has %d", len(events))
	}
}

func TestListMissionsSortedByName(t *testing.T) {
	eng, _ := newTestEngine(t)
	defs, err := eng.ListMissions(context.Background())
	if err != nil {
		t.Fatalf("list missions: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("expected 3 missions, got %d", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name > defs[i].Name {
			t.Fatalf("missions not sorted by name: %q before %q", defs[i-1].Name, defs[i].Name)
		}
	}
}

func TestConflictRetryThenSuccess(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	// Two forced conflicts still fit within the default three attempts.
	store.ForceConflicts(2)
	active, err := eng.Start(ctx, "alice", "survey")
	if err != nil {
		t.Fatalf("start should succeed after retries: %v", err)
	}
	if active.MissionID != "survey" {
		t.Fatalf("unexpected active mission %+v", active)
	}
	if events, _ := store.ListJourneyEvents(ctx, "alice"); len(events) != 1 {
		t.Fatalf("retried start must commit exactly one event, got %d", len(events))
	}
}

func TestConflictRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	store.ForceConflicts(10)
	_, err := eng.Start(ctx, "alice", "survey")
	assertCode(t, err, svcerrors.CodeUnavailable)

	se := svcerrors.GetServiceError(err)
	if se.IsClientFault() {
		t.Fatal("exhausted retries must surface as a server fault")
	}

	// The failed operation left no partial state.
	store.ForceConflicts(0)
	view, _ := eng.Status(ctx, "alice")
	if view.Active != nil {
		t.Fatalf("failed start must leave the slot empty, got %+v", view.Active)
	}
	if events, _ := store.ListJourneyEvents(ctx, "alice"); len(events) != 0 {
		t.Fatalf("failed start must not append events, log has %d", len(events))
	}
}

func TestCanceledContextLeavesNoEffects(t *testing.T) {
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Start(ctx, "alice", "survey")
	if err == nil {
		t.Fatal("start with canceled context should fail")
	}
	if events, _ := store.ListJourneyEvents(context.Background(), "alice"); len(events) != 0 {
		t.Fatalf("canceled start must not append events, log has %d", len(events))
	}
}

func TestConcurrentStartsSingleWinner(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	const n = 16
	var wg sync.WaitGroup
	results := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = eng.Start(ctx, "alice", "survey")
		}(i)
	}
	wg.Wait()

	var wins, alreadyActive int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, svcerrors.AlreadyActive("")):
			alreadyActive++
		default:
			t.Fatalf("unexpected error from concurrent start: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning start, got %d", wins)
	}
	if alreadyActive != n-1 {
		t.Fatalf("expected %d AlreadyActive failures, got %d", n-1, alreadyActive)
	}

	events, _ := store.ListJourneyEvents(ctx, "alice")
	if len(events) != 1 {
		t.Fatalf("expected exactly one started event, got %d", len(events))
	}
	if events[0].Status != journey.StatusStarted {
		t.Fatalf("expected started event, got %s", events[0].Status)
	}
}

func TestSlotStateEquivalence(t *testing.T) {
	// ActiveMission present on the profile if and only if the user is Active:
	// walk a full lifecycle and check the slot at every step.
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	registerUser(t, eng, "alice", 5)

	view, _ := eng.Status(ctx, "alice")
	if view.Active != nil {
		t.Fatal("new user must be idle")
	}

	if _, err := eng.Start(ctx, "alice", "survey"); err != nil {
		t.Fatalf("start: %v", err)
	}
	view, _ = eng.Status(ctx, "alice")
	if view.Active == nil {
		t.Fatal("started user must be active")
	}

	if _, err := eng.Cancel(ctx, "alice"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	view, _ = eng.Status(ctx, "alice")
	if view.Active != nil {
		t.Fatal("canceled user must be idle")
	}

	if _, err := eng.Start(ctx, "alice", "cargo"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := eng.Complete(ctx, "alice", "cargo", "Cargo Run"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	view, _ = eng.Status(ctx, "alice")
	if view.Active != nil {
		t.Fatal("completed user must be idle")
	}
}

func TestConcurrentDifferentUsersProceed(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	const n = 8
	for i := 0; i < n; i++ {
		registerUser(t, eng, userName(i), 5)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Start(ctx, userName(i), "survey")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("start for %s failed: %v", userName(i), err)
		}
	}
}

func userName(i int) string {
	return string(rune('a'+i)) + "-pilot"
}
