package mission

// Definition describes a mission offered by the catalog. Definitions are
// read-only from the engine's point of view; the catalog owns their content.
type Definition struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	CrewRequired    *int   `json:"crew_required" yaml:"crew_required"`
	DurationSeconds int    `json:"duration_seconds" yaml:"duration_seconds"`
}
