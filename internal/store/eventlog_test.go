package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/internal/commands"
	"github.com/rendis/stepwise/internal/engine"
	"github.com/rendis/stepwise/pkg/schema"
)

var fixedTime = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newLoggedEngine(t *testing.T, el *EventLog) *engine.Engine {
	t.Helper()
	reg, err := commands.DefaultRegistry(commands.FSConfig{}, commands.HTTPConfig{})
	require.NoError(t, err)

	eng, err := engine.New(engine.Options{
		Registry: reg,
		Emitter:  el,
		Clock:    func() time.Time { return fixedTime },
		NewRunID: func() string { return "run-42" },
	})
	require.NoError(t, err)
	el.Attach(eng.Hooks())
	return eng
}

func parseWorkflow(t *testing.T, doc string) *schema.Workflow {
	t.Helper()
	var wf schema.Workflow
	require.NoError(t, json.Unmarshal([]byte(doc), &wf))
	return &wf
}

const greetDoc = `{
	"name": "greet",
	"inputs": {"greeting": "hi"},
	"steps": {
		"begin": {"type": "Start", "next": "say"},
		"say": {"type": "Command", "command": "Log", "inputs": {"message": "greeting"}, "next": "done"},
		"done": {"type": "End"}
	}
}`

func TestEventLog_RecordsCompletedRun(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	eng := newLoggedEngine(t, el)
	ctx := context.Background()

	_, err := eng.Run(ctx, parseWorkflow(t, greetDoc), nil)
	require.NoError(t, err)

	run, err := s.GetRun(ctx, "run-42")
	require.NoError(t, err)
	assert.Equal(t, "greet", run.Workflow)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, uint64(3), run.Sequence)
	assert.Empty(t, run.HaltReason)
	require.NotNil(t, run.FinishedAt)

	var vars map[string]any
	require.NoError(t, json.Unmarshal(run.Variables, &vars))
	assert.Equal(t, "hi", vars["greeting"])

	events, err := el.Replay(ctx, "run-42")
	require.NoError(t, err)
	require.Len(t, events, 7)
	assert.Equal(t, schema.EventStart, events[0].Event)
	assert.Equal(t, "begin", events[0].Step)
	assert.Equal(t, uint64(2), events[3].ID)
	assert.Equal(t, "hi", events[3].Message)
	assert.Equal(t, "workflow finished", events[6].Message)
}

func TestEventLog_RecordsHaltedRun(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	eng := newLoggedEngine(t, el)
	ctx := context.Background()

	doc := `{
		"name": "broken",
		"steps": {
			"begin": {"type": "Start", "next": "call"},
			"call": {"type": "Command", "command": "Teleport", "next": "done"},
			"done": {"type": "End"}
		}
	}`
	_, err := eng.Run(ctx, parseWorkflow(t, doc), nil)
	require.Error(t, err)

	run, err := s.GetRun(ctx, "run-42")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusHalted, run.Status)
	assert.Equal(t, schema.HaltUnknownCommand, run.HaltReason)
	assert.Equal(t, "call", run.HaltStep)
	assert.NotEmpty(t, run.Error)

	steps, err := el.Steps(ctx, "run-42")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "begin", steps[0].Step)
	assert.Equal(t, 1, steps[0].Visits)
	assert.NotNil(t, steps[0].LastEnded)
	assert.Equal(t, "call", steps[1].Step)
	assert.NotEmpty(t, steps[1].Error)
	assert.Nil(t, steps[1].LastEnded)
}

func TestEventLog_StepsCollectsLogs(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	ctx := context.Background()

	_, err := newLoggedEngine(t, el).Run(ctx, parseWorkflow(t, greetDoc), nil)
	require.NoError(t, err)

	steps, err := el.Steps(ctx, "run-42")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"hi"}, steps[1].Logs)
	assert.True(t, steps[1].FirstSeen.Equal(fixedTime))
}

func TestEventLog_ReplayDetectsGap(t *testing.T) {
	s := newTestStore(t)
	el := NewEventLog(s)
	ctx := context.Background()

	require.NoError(t, el.Emit(ctx, schema.Event{ID: 1, Event: schema.EventStart, Step: "a", RunID: "r"}))
	_, err := s.DB().Exec(`INSERT INTO events (run_id, position, step_seq, event_type, step, message, timestamp)
		VALUES ('r', 5, 1, 'end', 'a', '', ?)`, fixedTime)
	require.NoError(t, err)

	_, err = el.Replay(ctx, "r")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeStore, schema.CodeOf(err))
}

func TestEventLog_ReplayUnknownRun(t *testing.T) {
	el := NewEventLog(newTestStore(t))
	events, err := el.Replay(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, events)
}
