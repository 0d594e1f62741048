package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoJQ_Name(t *testing.T) {
	assert.Equal(t, "jq", NewGoJQEvaluator().Name())
}

func TestGoJQ_FieldAccess(t *testing.T) {
	e := NewGoJQEvaluator()
	vars := map[string]any{"x": 10, "name": "hi"}

	out, err := e.Evaluate(context.Background(), ".x > 5", vars)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), ".name | ascii_upcase", vars)
	require.NoError(t, err)
	assert.Equal(t, "HI", out)
}

func TestGoJQ_OutputArity(t *testing.T) {
	e := NewGoJQEvaluator()
	vars := map[string]any{"a": "1", "b": "2"}

	out, err := e.Evaluate(context.Background(), "empty", vars)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = e.Evaluate(context.Background(), ".a, .b", vars)
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2"}, out)
}

func TestGoJQ_EnvBlocked(t *testing.T) {
	out, err := NewGoJQEvaluator().Evaluate(context.Background(), "$ENV | length", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

func TestGoJQ_Errors(t *testing.T) {
	e := NewGoJQEvaluator()

	_, err := e.Evaluate(context.Background(), ".[", nil)
	assert.Error(t, err)

	_, err = e.Evaluate(context.Background(), `error("boom")`, nil)
	assert.Error(t, err)
}

func TestNormalizeForJQ(t *testing.T) {
	in := map[string]any{"i": 1, "n": []any{int64(2)}, "s": "x"}
	assert.Equal(t, map[string]any{"i": 1.0, "n": []any{2.0}, "s": "x"}, normalizeForJQ(in))
}
