package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/pkg/schema"
)

const greetDoc = `{
	"name": "greet",
	"inputs": {"who": "world"},
	"steps": {
		"begin": {"type": "Start", "next": "say"},
		"say": {"type": "Command", "command": "Log", "inputs": {"message": "'hello ' + who"}, "next": "done"},
		"done": {"type": "End"}
	}
}`

const danglingDoc = `{
	"name": "dangling",
	"steps": {
		"begin": {"type": "Start", "next": "nowhere"},
		"done": {"type": "End"}
	}
}`

// execute runs the CLI with args and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeEvents(t *testing.T, out string) []schema.Event {
	t.Helper()
	var events []schema.Event
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var ev schema.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		events = append(events, ev)
	}
	return events
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, exitHalted, reportError(&buf, halted("")))
	assert.Empty(t, buf.String())

	assert.Equal(t, exitHalted, reportError(&buf, halted("2 of 3 workflow(s) invalid")))
	assert.Equal(t, "Error: 2 of 3 workflow(s) invalid\n", buf.String())

	buf.Reset()
	assert.Equal(t, exitFailure, reportError(&buf, errors.New("boom")))
	assert.Equal(t, "Error: boom\n", buf.String())
}

func TestParseSets(t *testing.T) {
	got, err := parseSets([]string{"who=agent", "n=3", "ratio=0.5", "on=true", "empty=", "list=[1, 2]", "eq=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"who":   "agent",
		"n":     3,
		"ratio": 0.5,
		"on":    true,
		"empty": "",
		"list":  "[1, 2]",
		"eq":    "a=b",
	}, got)

	got, err = parseSets(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := parseSets([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestUnknownConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	assert.Error(t, err)
}
