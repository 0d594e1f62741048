package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/stepwise/internal/engine"
	"github.com/rendis/stepwise/pkg/schema"
)

// EventLog records run history in a Store. It is an emit.Emitter for run
// events and keeps the runs table current through engine transition hooks.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// Emit appends ev to the run's event log.
func (el *EventLog) Emit(ctx context.Context, ev schema.Event) error {
	return el.store.AppendEvent(ctx, &Event{
		RunID:     ev.RunID,
		Workflow:  ev.Workflow,
		StepSeq:   ev.ID,
		Type:      ev.Event,
		Step:      ev.Step,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
	})
}

// Attach registers hooks that persist a run row whenever a run changes
// status.
func (el *EventLog) Attach(hooks *engine.Hooks) {
	hooks.OnAfter(engine.AnyStatus, engine.AnyStatus, el.recordRun)
}

func (el *EventLog) recordRun(ctx context.Context, res *engine.Result, _, to schema.RunStatus) error {
	run := &Run{
		ID:        res.RunID,
		Workflow:  res.Workflow,
		Status:    to,
		Sequence:  res.Sequence,
		StartedAt: res.StartedAt,
	}
	if engine.IsTerminal(to) {
		finished := res.FinishedAt
		run.FinishedAt = &finished
		if len(res.Variables) > 0 {
			vars, err := json.Marshal(res.Variables)
			if err != nil {
				return fmt.Errorf("marshal variables: %w", err)
			}
			run.Variables = vars
		}
	}
	if res.Halt != nil {
		run.HaltReason = res.Halt.Reason
		run.HaltStep = res.Halt.Step
		run.Error = res.Halt.Err.Error()
	}
	return el.store.UpsertRun(ctx, run)
}

// Replay returns the events of a run in emission order. It fails if the
// stored positions have gaps.
func (el *EventLog) Replay(ctx context.Context, runID string) ([]schema.Event, error) {
	events, err := el.store.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	out := make([]schema.Event, 0, len(events))
	for i, e := range events {
		if expected := int64(i + 1); e.Position != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"position gap in run %s: expected %d, got %d", runID, expected, e.Position)
		}
		out = append(out, e.ToSchema())
	}
	return out, nil
}

// Steps reconstructs a per-step summary of a run from its events, in
// order of first visit.
func (el *EventLog) Steps(ctx context.Context, runID string) ([]*StepSummary, error) {
	events, err := el.Replay(ctx, runID)
	if err != nil {
		return nil, err
	}

	var order []*StepSummary
	byStep := make(map[string]*StepSummary)
	for _, e := range events {
		if e.Step == "" {
			continue
		}
		ss, ok := byStep[e.Step]
		if !ok {
			ss = &StepSummary{Step: e.Step}
			byStep[e.Step] = ss
			order = append(order, ss)
		}

		ts := e.Timestamp
		switch e.Event {
		case schema.EventStart:
			ss.Visits++
			if ss.FirstSeen == nil {
				ss.FirstSeen = &ts
			}
		case schema.EventEnd:
			ss.LastEnded = &ts
		case schema.EventLog:
			ss.Logs = append(ss.Logs, e.Message)
		case schema.EventError:
			ss.Error = e.Message
		}
	}
	return order, nil
}
