// Package workspace manages the disposable per-run directory that holds all
// coordinator and worker state. The directory is created fresh for every run
// and removed on every exit path, so teardown is a single recursive delete.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Link describes a template or configuration source that is symlinked into
// the workspace. The source stays owned by the caller; the workspace only
// holds a non-owning link to it.
type Link struct {
	// Name is the entry name inside the workspace.
	Name string
	// Source is the absolute path of the linked-in file or directory.
	Source string
}

// Workspace is a handle to the per-run directory.
type Workspace struct {
	root string
}

// Prepare removes any pre-existing directory at root and creates a fresh
// empty one with 0700 permissions. The workspace is never reused across runs.
func Prepare(root string) (*Workspace, error) {
	if root == "" {
		return nil, errors.New("workspace root must not be empty")
	}
	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("remove stale workspace %s: %w", root, err)
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", root, err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Path joins elem onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.root}, elem...)...)
}

// Materialize creates symlinks from the workspace to each linked source.
// Sources must exist; a dangling template reference is a configuration error
// and fails the run before any process is started.
func (w *Workspace) Materialize(links []Link) error {
	for _, l := range links {
		src, err := filepath.Abs(l.Source)
		if err != nil {
			return fmt.Errorf("resolve template %s: %w", l.Source, err)
		}
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("template source %s: %w", l.Source, err)
		}
		dst := filepath.Join(w.root, l.Name)
		if err := os.Symlink(src, dst); err != nil {
			return fmt.Errorf("link template %s: %w", l.Name, err)
		}
	}
	return nil
}

// Destroy recursively removes the workspace directory. It is idempotent:
// a workspace that is already gone is not an error.
func (w *Workspace) Destroy() error {
	err := os.RemoveAll(w.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("destroy workspace %s: %w", w.root, err)
	}
	return nil
}
