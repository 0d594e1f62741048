package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/internal/commands"
)

func TestCommands_Table(t *testing.T) {
	out, _, err := execute(t, "commands")
	require.NoError(t, err)
	for _, name := range []string{"NAME", "Log", "ReadFile", "WriteFile", "AppendFile", "DeleteFile", "RestApi", "Http"} {
		assert.Contains(t, out, name)
	}
}

func TestCommands_SingleJSON(t *testing.T) {
	out, _, err := execute(t, "commands", "Log", "--json")
	require.NoError(t, err)

	var descs []commands.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &descs))
	require.Len(t, descs, 1)
	assert.Equal(t, "Log", descs[0].Name)
	assert.Equal(t, []string{"message"}, descs[0].Required)
}

func TestCommands_Unknown(t *testing.T) {
	_, _, err := execute(t, "commands", "Teleport")
	assert.ErrorContains(t, err, "unknown command")
}

func TestHistory_RequiresStore(t *testing.T) {
	_, _, err := execute(t, "history")
	assert.ErrorContains(t, err, "no run store configured")
}
