package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLua_Expressions(t *testing.T) {
	e := NewLuaEvaluator()
	vars := map[string]any{"x": 10, "name": "hi", "flag": true}

	cases := []struct {
		expr string
		want any
	}{
		{"x > 5", true},
		{"x + 1", 11},
		{"x / 4", 2.5},
		{`name .. "!"`, "hi!"},
		{"not flag", false},
		{"os == nil and io == nil", true},
	}
	for _, tc := range cases {
		out, err := e.Evaluate(context.Background(), tc.expr, vars)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, out, tc.expr)
	}
}

func TestLua_Chunk(t *testing.T) {
	out, err := NewLuaEvaluator().Evaluate(context.Background(), "local y = x * 2\nreturn y", map[string]any{"x": 4})
	require.NoError(t, err)
	assert.Equal(t, 8, out)
}

func TestLua_NoGlobalLeak(t *testing.T) {
	e := NewLuaEvaluator()

	out, err := e.Evaluate(context.Background(), "leak = 5", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = e.Evaluate(context.Background(), "leak", nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestLua_Errors(t *testing.T) {
	e := NewLuaEvaluator()

	_, err := e.Evaluate(context.Background(), "x >", nil)
	assert.Error(t, err)

	_, err = e.Evaluate(context.Background(), "undefined + 1", nil)
	assert.Error(t, err)

	_, err = e.Evaluate(context.Background(), `os.remove("/tmp/x")`, nil)
	assert.Error(t, err)
}
