package result

import (
	"time"

	"github.com/SNHuan/AutoEnv-Huan/internal/cost"
	"github.com/SNHuan/AutoEnv-Huan/internal/world"
)

// Status is the terminal state of one world run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusTruncated Status = "truncated"
	StatusErrored   Status = "errored"
)

// Outcome is the result of one world run. Exactly one is produced per
// scheduled (environment, world) pair; an agent failure becomes an errored
// outcome, never a dropped entry. Immutable after creation.
type Outcome struct {
	Env          string                 `json:"env"`
	WorldID      string                 `json:"world_id"`
	CatalogIndex int                    `json:"catalog_index"`
	Status       Status                 `json:"status"`
	Cancelled    bool                   `json:"cancelled,omitempty"`
	Score        float64                `json:"score"`
	Steps        int                    `json:"steps"`
	Events       map[string]int         `json:"events,omitempty"`
	Trajectory   []world.TrajectoryStep `json:"trajectory,omitempty"`
	Cost         *cost.Record           `json:"cost,omitempty"`
	Err          string                 `json:"error,omitempty"`
	DurationS    float64                `json:"duration_s"`
	FinishedAt   time.Time              `json:"finished_at"`
}
