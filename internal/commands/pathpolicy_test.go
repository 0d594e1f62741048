package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rendis/stepwise/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPathDenied(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodePathDenied, schema.CodeOf(err))
}

func TestPathPolicy_EmptyIsUnrestricted(t *testing.T) {
	p := PathPolicy{}
	assert.NoError(t, p.Check("/any/path", PathAccessRead))
	assert.NoError(t, p.Check("/any/path", PathAccessWrite))
}

func TestPathPolicy_DenyWins(t *testing.T) {
	p := PathPolicy{
		WritablePaths: []string{"/data"},
		DeniedPaths:   []string{"/data/private"},
	}
	assert.NoError(t, p.Check("/data/public/file.txt", PathAccessWrite))
	assertPathDenied(t, p.Check("/data/private/file.txt", PathAccessWrite))
	assertPathDenied(t, p.Check("/data/private", PathAccessRead))
}

func TestPathPolicy_ReadOnly(t *testing.T) {
	p := PathPolicy{ReadOnlyPaths: []string{"/config"}}
	assert.NoError(t, p.Check("/config/settings.json", PathAccessRead))
	assertPathDenied(t, p.Check("/config/settings.json", PathAccessWrite))
	assertPathDenied(t, p.Check("/elsewhere/file", PathAccessRead))
}

func TestPathPolicy_WritableImpliesReadable(t *testing.T) {
	p := PathPolicy{WritablePaths: []string{"/tmp/workspace"}}
	assert.NoError(t, p.Check("/tmp/workspace/data.txt", PathAccessRead))
}

func TestPathPolicy_PrefixIsNotParent(t *testing.T) {
	p := PathPolicy{WritablePaths: []string{"/tmp/work"}}
	assertPathDenied(t, p.Check("/tmp/workevil/x", PathAccessWrite))
	assertPathDenied(t, p.Check("/tmp/work/../escape", PathAccessWrite))
}

func TestPathPolicy_NullByte(t *testing.T) {
	assertPathDenied(t, PathPolicy{}.Check("bad\x00path", PathAccessRead))
}

func TestPathPolicy_SymlinkResolved(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	p := PathPolicy{DeniedPaths: []string{target}}
	assertPathDenied(t, p.Check(filepath.Join(link, "new.txt"), PathAccessWrite))
}
