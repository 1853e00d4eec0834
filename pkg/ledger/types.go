package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// StageStatusComplete is the only status a stage record carries: pending
// stages have no record.
const StageStatusComplete = "complete"

// EventKind distinguishes stage and task events.
type EventKind string

const (
	EventStage EventKind = "stage"
	EventTask  EventKind = "task"
)

// StageRecord is the ledger copy of one stage transition.
type StageRecord struct {
	Stage         string `json:"stage"`
	Status        string `json:"status"`
	RunID         string `json:"run_id"`
	MarkerPath    string `json:"marker_path"`
	Inputs        int    `json:"inputs"`
	CompletedAtMs int64  `json:"completed_at_ms"`
}

// Validate checks the record's required fields.
func (r *StageRecord) Validate() error {
	if r.Stage == "" {
		return fmt.Errorf("stage cannot be empty")
	}
	if r.Status == "" {
		return fmt.Errorf("status cannot be empty")
	}
	if _, err := uuid.Parse(r.RunID); err != nil {
		return fmt.Errorf("run_id must be a valid UUID: %w", err)
	}
	if r.Inputs < 0 {
		return fmt.Errorf("inputs cannot be negative")
	}
	return nil
}

// Event is published on the stage and task channels.
type Event struct {
	Kind   EventKind `json:"kind"`
	Name   string    `json:"name"` // stage or task name
	Status string    `json:"status"`
	RunID  string    `json:"run_id"`
	Error  string    `json:"error,omitempty"`
	AtMs   int64     `json:"at_ms"`
}

// Run is one entry of the run history.
type Run struct {
	RunID       string
	StartedAtMs int64
}
