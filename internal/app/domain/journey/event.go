package journey

import "time"

// Status classifies a lifecycle event in the journey log.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

// Event is one append-only entry in a user's journey log. OccurredAt and Seq
// are assigned by the storage layer at commit time; Seq breaks ordering ties
// between events committed in the same instant.
type Event struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	MissionID   string    `json:"mission_id"`
	MissionName string    `json:"mission_name"`
	Status      Status    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
	Seq         int64     `json:"seq"`
}
