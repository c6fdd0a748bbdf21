// Package files scopes the file tools' path handling to a workspace root.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyPath is returned for a blank or whitespace-only path.
	ErrEmptyPath = errors.New("path is required")

	// ErrEscapesWorkspace is returned when a path resolves outside the
	// workspace root.
	ErrEscapesWorkspace = errors.New("path escapes workspace")
)

// Resolver resolves tool-supplied paths against a workspace root and
// rejects anything that would land outside it. The zero Root means the
// current directory.
type Resolver struct {
	Root string
}

// Resolve returns the absolute, cleaned location of path inside the
// workspace. Relative paths are joined onto the root; absolute paths are
// accepted only when they already sit under it.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", ErrEmptyPath
	}

	rootAbs, err := r.rootAbs()
	if err != nil {
		return "", err
	}

	target := filepath.Join(rootAbs, clean)
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	if !within(rootAbs, targetAbs) {
		return "", ErrEscapesWorkspace
	}
	return targetAbs, nil
}

func (r Resolver) rootAbs() (string, error) {
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	return abs, nil
}

// within reports whether target is root itself or a descendant of it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
