package schema

import (
	"encoding/json"
	"time"
)

// EventType is the kind of an emitted run event.
type EventType string

const (
	EventStart EventType = "start"
	EventEnd   EventType = "end"
	EventError EventType = "error"
	EventLog   EventType = "log"
)

// Event is one observable run transition. ID is the step sequence id.
type Event struct {
	ID        uint64    `json:"id"`
	Event     EventType `json:"event"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Workflow  string    `json:"workflow,omitempty"`
}

type eventJSON struct {
	ID        uint64    `json:"id"`
	Event     EventType `json:"event"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Workflow  string    `json:"workflow,omitempty"`
}

// MarshalJSON renders the timestamp as RFC3339.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:        e.ID,
		Event:     e.Event,
		Step:      e.Step,
		Message:   e.Message,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		RunID:     e.RunID,
		Workflow:  e.Workflow,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var ej eventJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}
	*e = Event{ID: ej.ID, Event: ej.Event, Step: ej.Step, Message: ej.Message, RunID: ej.RunID, Workflow: ej.Workflow}
	if ej.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, ej.Timestamp)
		if err != nil {
			return err
		}
		e.Timestamp = ts
	}
	return nil
}

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusHalted    RunStatus = "halted"
)

// HaltReason classifies a non-successful run termination.
type HaltReason string

const (
	HaltDanglingReference  HaltReason = "DanglingReference"
	HaltUnknownCommand     HaltReason = "UnknownCommand"
	HaltNoConditionMatched HaltReason = "NoConditionMatched"
	HaltCommandFailed      HaltReason = "CommandFailed"
	HaltUnresolvableStart  HaltReason = "UnresolvableStart"
	HaltLoopGuard          HaltReason = "LoopGuard"
)

// HaltReasonFor maps an error code to the halt reason it produces.
// Codes that are not control-flow specific are command failures.
func HaltReasonFor(code string) HaltReason {
	switch code {
	case ErrCodeDanglingReference:
		return HaltDanglingReference
	case ErrCodeUnknownCommand:
		return HaltUnknownCommand
	case ErrCodeNoConditionMatched:
		return HaltNoConditionMatched
	case ErrCodeUnresolvableStart:
		return HaltUnresolvableStart
	case ErrCodeLoopGuard:
		return HaltLoopGuard
	default:
		return HaltCommandFailed
	}
}
