package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rendis/stepwise/pkg/schema"
)

// PathAccess indicates the type of filesystem access being requested.
type PathAccess int

const (
	PathAccessRead PathAccess = iota
	PathAccessWrite
)

// PathPolicy restricts which paths the file commands may touch.
// Empty lists mean unrestricted access. DeniedPaths always takes precedence.
type PathPolicy struct {
	ReadOnlyPaths []string `json:"read_only_paths,omitempty"`
	WritablePaths []string `json:"writable_paths,omitempty"`
	DeniedPaths   []string `json:"denied_paths,omitempty"`
}

// Check returns a PATH_DENIED error when path may not be accessed with mode.
func (p PathPolicy) Check(path string, mode PathAccess) error {
	clean, err := resolveCleanPath(path)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePathDenied, "invalid path %q: %v", path, err)
	}

	// An invalid deny rule denies everything.
	for _, deny := range p.DeniedPaths {
		base, err := resolveCleanPath(deny)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodePathDenied,
				"path %q denied: invalid deny rule %q: %v", path, deny, err)
		}
		if isUnderPath(clean, base) {
			return schema.NewErrorf(schema.ErrCodePathDenied, "path %q is denied", path)
		}
	}

	if len(p.ReadOnlyPaths) == 0 && len(p.WritablePaths) == 0 {
		return nil
	}

	allowed := p.WritablePaths
	if mode == PathAccessRead {
		allowed = append(append([]string{}, p.ReadOnlyPaths...), p.WritablePaths...)
	}
	for _, a := range allowed {
		base, err := resolveCleanPath(a)
		if err != nil {
			continue
		}
		if isUnderPath(clean, base) {
			return nil
		}
	}

	if mode == PathAccessWrite {
		return schema.NewErrorf(schema.ErrCodePathDenied, "write access to %q denied: not under any writable path", path)
	}
	return schema.NewErrorf(schema.ErrCodePathDenied, "read access to %q denied: not under any allowed path", path)
}

// resolveCleanPath cleans and resolves a path to absolute, resolving symlinks
// on the longest existing prefix so new files resolve like existing ones.
func resolveCleanPath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir := abs
	for range 256 {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, abs)
			if err != nil {
				return abs, nil
			}
			return filepath.Join(resolved, rel), nil
		}
		dir = parent
	}
	return abs, nil
}

// isUnderPath reports whether path is base or inside it.
func isUnderPath(path, base string) bool {
	if path == base {
		return true
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
