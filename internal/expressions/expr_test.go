package expressions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExprEvaluator(t *testing.T) {
	e := NewExprEvaluator()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_Literals(t *testing.T) {
	e := NewExprEvaluator()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, "42", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	out, err = e.Evaluate(ctx, `"hello"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = e.Evaluate(ctx, "true", nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_Variables(t *testing.T) {
	e := NewExprEvaluator()
	vars := map[string]any{"x": 10, "greeting": "hi", "ratio": 2.5}

	t.Run("comparison", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), "x > 5", vars)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("concatenation", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `greeting + " world"`, vars)
		require.NoError(t, err)
		assert.Equal(t, "hi world", out)
	})

	t.Run("mixed numeric", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), "ratio * 2 > x - 6", vars)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("unbound is nil", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), "missing == nil", vars)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

func TestExpr_SameProgramDifferentTypes(t *testing.T) {
	e := NewExprEvaluator()

	out, err := e.Evaluate(context.Background(), "v == v", map[string]any{"v": 1})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), "v == v", map[string]any{"v": "one"})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_Errors(t *testing.T) {
	e := NewExprEvaluator()

	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)

	_, err = e.Evaluate(context.Background(), "1 +", nil)
	require.Error(t, err)
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeEvaluation, fe.Code)
	assert.Equal(t, "1 +", fe.Details["expression"])
}

func TestExpr_ConcurrentEvaluate(t *testing.T) {
	e := NewExprEvaluator()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), "n * 2", map[string]any{"n": i})
			assert.NoError(t, err)
			assert.Equal(t, i*2, out)
		}(i)
	}
	wg.Wait()
}

func TestNew_Languages(t *testing.T) {
	assert.Equal(t, []string{"cel", "expr", "jq", "lua"}, Languages())

	for _, lang := range Languages() {
		ev, err := New(lang)
		require.NoError(t, err, lang)
		assert.Equal(t, lang, ev.Name())
	}

	ev, err := New("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, ev.Name())

	ev, err = New("EXPR")
	require.NoError(t, err)
	assert.Equal(t, "expr", ev.Name())

	_, err = New("javascript")
	assert.Error(t, err)
}
