package loader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepwise/pkg/schema"
)

const yamlDoc = `
name: greet
inputs:
  greeting: hi
  retries: 3
steps:
  zeta:
    type: Start
    next: check
  check:
    type: Condition
    conditions:
      retries > 2: say
      else: done
  say:
    type: Command
    command: Log
    inputs:
      message: greeting
    next: done
  done:
    type: End
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse_YAMLKeepsOrder(t *testing.T) {
	doc, err := Parse([]byte(yamlDoc), FormatYAML)
	require.NoError(t, err)

	wf := doc.Workflow
	assert.Equal(t, "greet", wf.Name)
	assert.Equal(t, []string{"zeta", "check", "say", "done"}, wf.Order)

	cond, ok := wf.Steps["check"].(schema.ConditionStep)
	require.True(t, ok)
	require.Len(t, cond.Clauses, 2)
	assert.Equal(t, "retries > 2", cond.Clauses[0].Expression)
	assert.True(t, cond.Clauses[1].IsElse())

	assert.JSONEq(t, `{"greeting": "hi", "retries": 3}`, mustJSON(t, doc.Raw, "inputs"))
}

func TestParse_JSON(t *testing.T) {
	doc, err := Parse([]byte(`{"name": "j", "steps": [{"type": "Start"}, {"type": "End"}]}`), FormatJSON)
	require.NoError(t, err)
	assert.True(t, doc.Workflow.Indexed)
	assert.Equal(t, []string{"0"}, doc.Workflow.StartRefs())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"bad json", `{"name":`, FormatJSON},
		{"bad yaml", "name: [unclosed", FormatYAML},
		{"empty yaml", "", FormatYAML},
		{"unknown step type", `{"name": "x", "steps": {"a": {"type": "Teleport"}}}`, FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeLoad, schema.CodeOf(err))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "flow.yml", yamlDoc)

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Path)
	assert.Equal(t, "greet", doc.Workflow.Name)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeLoad, schema.CodeOf(err))
}

func TestLoad_ErrorNamesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.json", `{"name": 1`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
}

func TestLoadGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `{"name": "b", "steps": {"s": {"type": "Start", "next": "e"}, "e": {"type": "End"}}}`)
	writeFile(t, dir, "nested/deep/a.yaml", "name: a\nsteps:\n  s: {type: Start, next: e}\n  e: {type: End}\n")
	writeFile(t, dir, "notes.txt", "ignored")

	docs, err := LoadGlob(filepath.Join(dir, "**", "*.{json,yaml}"))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	names := []string{docs[0].Workflow.Name, docs[1].Workflow.Name}
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestLoadGlob_NoMatches(t *testing.T) {
	_, err := LoadGlob(filepath.Join(t.TempDir(), "*.json"))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatOf("a/b.YAML"))
	assert.Equal(t, FormatYAML, FormatOf("x.yml"))
	assert.Equal(t, FormatJSON, FormatOf("x.json"))
	assert.Equal(t, FormatJSON, FormatOf("x"))
}

func TestIsGlob(t *testing.T) {
	assert.True(t, IsGlob("flows/**/*.json"))
	assert.False(t, IsGlob("flows/main.json"))
}

func mustJSON(t *testing.T, raw []byte, key string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return string(m[key])
}
