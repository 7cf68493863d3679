// Package pathutil provides path canonicalization and containment helpers for
// sandbox rule compilation. Paths are treated as opaque strings from intake
// through emission; nothing here splits or re-tokenizes on whitespace.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading "~" or "~/" using the current user's home
// directory. Paths without a tilde prefix are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("pathutil: cannot determine home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// Resolve canonicalizes a raw user-supplied path: tilde expansion, conversion
// to an absolute path, and symlink resolution. The path must exist on disk;
// callers that tolerate missing paths pre-create them before resolving.
func Resolve(raw string) (string, error) {
	expanded, err := ExpandHome(raw)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("pathutil: cannot make %q absolute: %w", raw, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("pathutil: cannot resolve symlinks for %q: %w", raw, err)
	}
	return filepath.Clean(resolved), nil
}

// ResolveOrCreate behaves like Resolve but creates the path as a directory
// tree when it does not exist yet. This matches the intake behavior for
// writable roots: a grant for a directory the agent is expected to populate
// should not fail just because the directory has not been created yet.
func ResolveOrCreate(raw string) (string, error) {
	resolved, err := Resolve(raw)
	if err == nil {
		return resolved, nil
	}

	expanded, expErr := ExpandHome(raw)
	if expErr != nil {
		return "", expErr
	}
	abs, absErr := filepath.Abs(expanded)
	if absErr != nil {
		return "", fmt.Errorf("pathutil: cannot make %q absolute: %w", raw, absErr)
	}
	if mkErr := os.MkdirAll(abs, 0o755); mkErr != nil {
		return "", fmt.Errorf("pathutil: cannot create %q on demand: %w", raw, mkErr)
	}
	return Resolve(abs)
}

// IsSubpath reports whether child is equal to parent or contained within it,
// using separator-bounded path-component comparison. A plain string prefix is
// not enough: /tmpevil must not count as inside /tmp.
func IsSubpath(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	if parent == child {
		return true
	}
	if parent == string(filepath.Separator) {
		return strings.HasPrefix(child, string(filepath.Separator))
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// IsStrictSubpath reports whether child is contained within parent but is not
// parent itself.
func IsStrictSubpath(parent, child string) bool {
	return filepath.Clean(parent) != filepath.Clean(child) && IsSubpath(parent, child)
}

// Depth returns the number of path components below the root. It is used to
// order mount operations so that parents are applied before children.
func Depth(path string) int {
	cleaned := filepath.Clean(path)
	if cleaned == "/" {
		return 0
	}
	return strings.Count(cleaned, "/")
}

// Ancestors returns every parent directory of path, nearest first, excluding
// the root "/".
func Ancestors(path string) []string {
	var out []string
	current := filepath.Dir(filepath.Clean(path))
	for current != "/" && current != "." {
		out = append(out, current)
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return out
}
