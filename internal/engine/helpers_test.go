package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/internal/commands"
	"github.com/rendis/stepwise/internal/emit"
	"github.com/rendis/stepwise/pkg/schema"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubCommand struct {
	name string
	fn   func(ctx context.Context, inv commands.Invocation) (commands.Outputs, error)
}

func (s *stubCommand) Name() string { return s.name }

func (s *stubCommand) Describe() commands.Descriptor {
	return commands.Descriptor{Name: s.name}
}

func (s *stubCommand) Execute(ctx context.Context, inv commands.Invocation) (commands.Outputs, error) {
	return s.fn(ctx, inv)
}

func parse(t *testing.T, doc string) *schema.Workflow {
	t.Helper()
	var wf schema.Workflow
	require.NoError(t, json.Unmarshal([]byte(doc), &wf))
	return &wf
}

func testRegistry(t *testing.T, extra ...commands.Command) *commands.Registry {
	t.Helper()
	b := commands.NewBuilder()
	require.NoError(t, commands.RegisterBuiltins(b, commands.FSConfig{}, commands.HTTPConfig{}))
	for _, c := range extra {
		require.NoError(t, b.Register(c))
	}
	return b.Build()
}

func newTestEngine(t *testing.T, em emit.Emitter, extra ...commands.Command) *Engine {
	t.Helper()
	eng, err := New(Options{
		Registry: testRegistry(t, extra...),
		Emitter:  em,
		Clock:    func() time.Time { return testTime },
		NewRunID: func() string { return "run-1" },
	})
	require.NoError(t, err)
	return eng
}

type eventKey struct {
	Event schema.EventType
	Step  string
	ID    uint64
}

func keys(events []schema.Event) []eventKey {
	out := make([]eventKey, 0, len(events))
	for _, ev := range events {
		out = append(out, eventKey{ev.Event, ev.Step, ev.ID})
	}
	return out
}
