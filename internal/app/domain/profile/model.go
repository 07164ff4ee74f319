package profile

import "time"

// ShipStatus is the slice of a user's ship the engine cares about. CrewCurrent
// is a pointer so a profile with unknown crew data is distinguishable from a
// ship with zero crew. The remaining fields travel through untouched.
type ShipStatus struct {
	Name        string `json:"name,omitempty"`
	CrewCurrent *int   `json:"crew_current"`
	FuelPercent int    `json:"fuel_percent,omitempty"`
	HullPercent int    `json:"hull_percent,omitempty"`
}

// ActiveMission is the single in-progress mission slot on a profile.
// StartedAt is assigned by the storage layer at commit time, never by the
// caller.
type ActiveMission struct {
	MissionID       string    `json:"mission_id"`
	MissionName     string    `json:"mission_name"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// Profile is a user's persistent record. Active is nil exactly when the user
// is idle; the engine protects that equivalence.
type Profile struct {
	UserID    string         `json:"user_id"`
	Ship      ShipStatus     `json:"ship"`
	Active    *ActiveMission `json:"active_mission"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
