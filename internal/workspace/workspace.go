// Package workspace manages the Kazi workspace root and confines every
// caller-supplied path to it. All file and execution operations resolve
// through Resolve before any I/O happens.
//
// Default workspace: <os temp dir>/kazi-workspace (configurable via config
// or KAZI_WORKSPACE env var, applied by the caller).
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidArgument is returned for empty or blank relative paths.
	ErrInvalidArgument = errors.New("path must not be empty")

	// ErrPathViolation is returned when a path would resolve outside the root.
	ErrPathViolation = errors.New("path escapes workspace")
)

// Workspace confines paths to a single canonicalized root directory.
type Workspace struct {
	Root string // Absolute, symlink-free root. Fixed for the process lifetime.
}

// New creates a Workspace rooted at the given path, creating the directory
// if it does not exist. The root is canonicalized once here so that every
// later prefix check compares against its real filesystem location.
func New(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing workspace root: %w", err)
	}
	return &Workspace{Root: canonical}, nil
}

// Default creates a Workspace at <os temp dir>/kazi-workspace.
func Default() (*Workspace, error) {
	return New(filepath.Join(os.TempDir(), "kazi-workspace"))
}

// Resolve maps a caller-supplied relative path to a validated absolute path
// inside the root.
//
// Rules:
//   - Empty or blank input fails with ErrInvalidArgument.
//   - Absolute-looking input ("/etc/passwd") is reinterpreted relative to
//     the root, never as a system-absolute path.
//   - The joined path is canonicalized through symlinks (the target itself
//     need not exist) and the result must be the root or a descendant of it,
//     otherwise ErrPathViolation. A symlink inside the root pointing outside
//     it is therefore rejected.
//
// Resolve is pure validation: it never creates, deletes, or touches anything.
func (w *Workspace) Resolve(relative string) (string, error) {
	if strings.TrimSpace(relative) == "" {
		return "", fmt.Errorf("resolving path: %w", ErrInvalidArgument)
	}

	// Strip any leading separators so "/x" and "x" mean the same thing.
	trimmed := strings.TrimLeft(relative, "/\\")
	joined := filepath.Join(w.Root, trimmed)

	resolved, err := evalExisting(joined)
	if err != nil {
		return "", fmt.Errorf("canonicalizing %q: %w", relative, err)
	}

	// "/tmp/ws" must match "/tmp/ws/foo" but NOT "/tmp/wsevil".
	if resolved != w.Root && !strings.HasPrefix(resolved, w.Root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q resolves to %q: %w", relative, resolved, ErrPathViolation)
	}
	return resolved, nil
}

// Contains reports whether an already-absolute path lies inside the root.
func (w *Workspace) Contains(abs string) bool {
	return abs == w.Root || strings.HasPrefix(abs, w.Root+string(filepath.Separator))
}

// Rel returns the path relative to the root, for display to callers.
// Falls back to the input when it is not under the root.
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.Root, abs)
	if err != nil {
		return abs
	}
	return rel
}

// evalExisting canonicalizes a path through symlinks without requiring the
// target to exist: the deepest existing ancestor is resolved and the
// non-existent remainder is re-appended lexically.
func evalExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	clean := filepath.Clean(path)
	parent := filepath.Dir(clean)
	if parent == clean {
		// Reached the filesystem root without finding an existing ancestor.
		return "", err
	}
	resolvedParent, perr := evalExisting(parent)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(resolvedParent, filepath.Base(clean)), nil
}
