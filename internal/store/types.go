package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/stepwise/pkg/schema"
)

// Run is the persisted summary of one workflow run.
type Run struct {
	ID         string            `json:"id"`
	Workflow   string            `json:"workflow"`
	Status     schema.RunStatus  `json:"status"`
	HaltReason schema.HaltReason `json:"halt_reason,omitempty"`
	HaltStep   string            `json:"halt_step,omitempty"`
	Error      string            `json:"error,omitempty"`
	Sequence   uint64            `json:"sequence"`
	Variables  json.RawMessage   `json:"variables,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Workflow string
	Status   *schema.RunStatus
	Since    *time.Time
	Limit    int
	Offset   int
}

// Event is a stored run event. Position orders events within a run;
// StepSeq is the step sequence id the event was emitted for.
type Event struct {
	ID        int64            `json:"id"`
	RunID     string           `json:"run_id"`
	Workflow  string           `json:"workflow,omitempty"`
	Position  int64            `json:"position"`
	StepSeq   uint64           `json:"step_seq"`
	Type      schema.EventType `json:"event_type"`
	Step      string           `json:"step,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ToSchema converts a stored event back into the emitted record.
func (e *Event) ToSchema() schema.Event {
	return schema.Event{
		ID:        e.StepSeq,
		Event:     e.Type,
		Step:      e.Step,
		Message:   e.Message,
		Timestamp: e.Timestamp,
		RunID:     e.RunID,
		Workflow:  e.Workflow,
	}
}

// EventFilter narrows GetEventsByType.
type EventFilter struct {
	RunID string
	Step  string
	Since *time.Time
	Limit int
}

// StepSummary is the per-step view reconstructed from a run's events.
type StepSummary struct {
	Step      string     `json:"step"`
	Visits    int        `json:"visits"`
	Logs      []string   `json:"logs,omitempty"`
	Error     string     `json:"error,omitempty"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastEnded *time.Time `json:"last_ended,omitempty"`
}
