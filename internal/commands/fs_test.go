package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileCommand(t *testing.T, cfg FSConfig, name string) Command {
	t.Helper()
	for _, c := range FileCommands(cfg) {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("no file command %q", name)
	return nil
}

func TestReadFile_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	out, _, err := invoke(t, fileCommand(t, FSConfig{}, "ReadFile"), map[string]any{"p": path}, map[string]string{"path": "p"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out["content"])
	assert.Equal(t, path, out["path"])
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "", out["error"])
}

func TestReadFile_MissingFileIsRuntimeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.txt")

	out, _, err := invoke(t, fileCommand(t, FSConfig{}, "ReadFile"), nil, map[string]string{"path": quote(path)})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "no such file")
	assert.Equal(t, "", out["content"])
}

func TestReadFile_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	out, _, err := invoke(t, fileCommand(t, FSConfig{MaxReadSize: 4}, "ReadFile"), nil, map[string]string{"path": quote(path)})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "exceeds 4 bytes")
}

func TestReadFile_MissingPathInput(t *testing.T) {
	_, _, err := invoke(t, fileCommand(t, FSConfig{}, "ReadFile"), nil, map[string]string{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeMissingInput, schema.CodeOf(err))
}

func TestWriteFile_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	out, _, err := invoke(t, fileCommand(t, FSConfig{}, "WriteFile"),
		map[string]any{"name": "world"},
		map[string]string{"path": quote(path), "text": `"hello " + name`})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestWriteFile_MissingText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	_, _, err := invoke(t, fileCommand(t, FSConfig{}, "WriteFile"), nil, map[string]string{"path": quote(path)})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeMissingInput, schema.CodeOf(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing written on configuration error")
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "out.txt")
	out, _, err := invoke(t, fileCommand(t, FSConfig{}, "WriteFile"), nil, map[string]string{"path": quote(path), "text": `"x"`})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.NotEmpty(t, out["error"])
}

func TestAppendFile_CreatesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	cmd := fileCommand(t, FSConfig{}, "AppendFile")

	for _, line := range []string{"a", "b"} {
		out, _, err := invoke(t, cmd, nil, map[string]string{"path": quote(path), "text": quote(line)})
		require.NoError(t, err)
		assert.Equal(t, "appended", out["status"])
		assert.Equal(t, true, out["success"])
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))
}

func TestDeleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	cmd := fileCommand(t, FSConfig{}, "DeleteFile")

	out, _, err := invoke(t, cmd, nil, map[string]string{"path": quote(path)})
	require.NoError(t, err)
	assert.Equal(t, "deleted", out["status"])
	assert.Equal(t, true, out["success"])

	out, _, err = invoke(t, cmd, nil, map[string]string{"path": quote(path)})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "", out["status"])
}

func TestFileCommands_PolicyDenied(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret")
	require.NoError(t, os.MkdirAll(secret, 0o755))
	path := filepath.Join(secret, "key.txt")
	require.NoError(t, os.WriteFile(path, []byte("k"), 0o644))

	cfg := FSConfig{Policy: PathPolicy{DeniedPaths: []string{secret}}}
	out, _, err := invoke(t, fileCommand(t, cfg, "ReadFile"), nil, map[string]string{"path": quote(path)})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "PATH_DENIED")
}

func TestFileCommands_Describe(t *testing.T) {
	for _, c := range FileCommands(FSConfig{}) {
		d := c.Describe()
		assert.Equal(t, c.Name(), d.Name)
		assert.Contains(t, d.Required, "path")
		assert.Contains(t, d.Outputs, "success")
		assert.Contains(t, d.Outputs, "error")
	}
}
