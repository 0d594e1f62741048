package commands

import (
	"context"
	"testing"

	"github.com/rendis/stepwise/internal/expressions"
	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	kind    schema.EventType
	message string
}

// invoke runs cmd with inputs given as expressions against a scope seeded from vars.
func invoke(t *testing.T, cmd Command, vars map[string]any, inputs map[string]string) (Outputs, []emitted, error) {
	t.Helper()
	scope := expressions.NewScope(expressions.NewExprEvaluator())
	require.Empty(t, scope.Seed(vars))

	var events []emitted
	inv := Invocation{
		Inputs:   inputs,
		Scope:    scope,
		Step:     "step",
		Sequence: 1,
		Emit: func(kind schema.EventType, message string) {
			events = append(events, emitted{kind, message})
		},
	}
	out, err := cmd.Execute(context.Background(), inv)
	return out, events, err
}

func quote(s string) string {
	return `"` + s + `"`
}
