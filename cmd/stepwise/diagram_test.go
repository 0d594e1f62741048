package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagram_Mermaid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "greet.json", greetDoc)

	out, _, err := execute(t, "diagram", path)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "begin --> say")
	assert.Contains(t, out, "say --> done")
}

func TestDiagram_ASCII(t *testing.T) {
	path := writeFile(t, t.TempDir(), "greet.json", greetDoc)

	out, _, err := execute(t, "diagram", path, "--format", "ascii")
	require.NoError(t, err)
	assert.Contains(t, out, "=== greet ===")
}

func TestDiagram_FileOutputs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.json", greetDoc)

	png := filepath.Join(dir, "greet.png")
	_, _, err := execute(t, "diagram", path, "--format", "png", "-o", png)
	require.NoError(t, err)
	data, err := os.ReadFile(png)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])

	out, _, err := execute(t, "diagram", path, "--format", "dot")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")
}

func TestDiagram_Errors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.json", greetDoc)

	_, _, err := execute(t, "diagram", path, "--format", "png")
	assert.ErrorContains(t, err, "requires -o")

	_, _, err = execute(t, "diagram", path, "--format", "gif")
	assert.ErrorContains(t, err, "unknown diagram format")

	_, _, err = execute(t, "diagram", path, "--run", "abc")
	assert.ErrorContains(t, err, "no run store configured")

	_, _, err = execute(t, "diagram", path, "--store", filepath.Join(dir, "runs.db"), "--run", "abc")
	assert.ErrorContains(t, err, "no recorded events")
}
