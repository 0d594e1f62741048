package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCEL(t *testing.T) *CELEvaluator {
	t.Helper()
	e, err := NewCELEvaluator()
	require.NoError(t, err)
	return e
}

func TestCEL_Comparison(t *testing.T) {
	e := newCEL(t)

	out, err := e.Evaluate(context.Background(), "x > 5", map[string]any{"x": 10})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), "x > 5", map[string]any{"x": 3.5})
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestCEL_Strings(t *testing.T) {
	e := newCEL(t)
	vars := map[string]any{"name": "stepwise"}

	out, err := e.Evaluate(context.Background(), `name + "!"`, vars)
	require.NoError(t, err)
	assert.Equal(t, "stepwise!", out)

	out, err = e.Evaluate(context.Background(), `name.startsWith("step")`, vars)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_NullBinding(t *testing.T) {
	e := newCEL(t)

	out, err := e.Evaluate(context.Background(), "v == null", map[string]any{"v": nil})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), "v", map[string]any{"v": nil})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCEL_UndeclaredVariable(t *testing.T) {
	e := newCEL(t)

	_, err := e.Evaluate(context.Background(), "y > 1", map[string]any{"x": 1})
	assert.Error(t, err)

	// Same expression compiles once y is bound.
	out, err := e.Evaluate(context.Background(), "y > 1", map[string]any{"y": 2})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_SkipsInvalidIdentifiers(t *testing.T) {
	e := newCEL(t)

	out, err := e.Evaluate(context.Background(), "ok", map[string]any{"ok": true, "not-valid": 1})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_EmptyExpression(t *testing.T) {
	_, err := newCEL(t).Evaluate(context.Background(), "", nil)
	assert.Error(t, err)
}
