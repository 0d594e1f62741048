package commands

import (
	"testing"

	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_EmitsAndEchoes(t *testing.T) {
	out, events, err := invoke(t, &logCommand{}, map[string]any{"greeting": "hi"}, map[string]string{"message": "greeting"})
	require.NoError(t, err)

	assert.Equal(t, Outputs{"message": "hi"}, out)
	require.Len(t, events, 1)
	assert.Equal(t, schema.EventLog, events[0].kind)
	assert.Equal(t, "hi", events[0].message)
}

func TestLog_Level(t *testing.T) {
	_, _, err := invoke(t, &logCommand{}, nil, map[string]string{"message": `"x"`, "level": `"warn"`})
	require.NoError(t, err)

	_, _, err = invoke(t, &logCommand{}, nil, map[string]string{"message": `"x"`, "level": `"loud"`})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInvalidInput, schema.CodeOf(err))
}

func TestLog_MissingMessage(t *testing.T) {
	_, events, err := invoke(t, &logCommand{}, nil, map[string]string{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeMissingInput, schema.CodeOf(err))
	assert.Empty(t, events)
}

func TestLog_EvaluationFailure(t *testing.T) {
	_, _, err := invoke(t, &logCommand{}, nil, map[string]string{"message": "1 +"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeEvaluation, schema.CodeOf(err))
}
