// Package history persists one row per import run so operators can audit
// what was imported, when, and with what outcome.
package history

import (
	"context"
	"time"
)

// Status is the lifecycle state of an import run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusPartial   Status = "partial"
	StatusCancelled Status = "cancelled"
)

// Run is one recorded import execution.
type Run struct {
	ID         string     `json:"id"`
	Entity     string     `json:"entity"`
	File       string     `json:"file"`
	Total      int        `json:"total"`
	ToCreate   int        `json:"to_create"`
	ToUpdate   int        `json:"to_update"`
	Skipped    int        `json:"skipped"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Failed     int        `json:"failed"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Outcome closes a run with its final tallies.
type Outcome struct {
	Created int
	Updated int
	Failed  int
	Status  Status
}

// Store persists import runs. Both the sqlite and postgres drivers
// implement it.
type Store interface {
	Migrate(ctx context.Context) error
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, runID string, out Outcome) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}
