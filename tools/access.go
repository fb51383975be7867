package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/codeprobe/config"
	"github.com/m4xw311/codeprobe/errors"
)

// workspace resolves tool paths against a root directory and enforces the
// configured filesystem access patterns.
type workspace struct {
	root     string
	hidden   []string
	readOnly []string
}

func newWorkspace(root string, access config.FilesystemAccess) *workspace {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &workspace{
		root:     root,
		hidden:   access.Hidden,
		readOnly: access.ReadOnly,
	}
}

// resolve returns the absolute form of path; relative paths are taken from
// the workspace root.
func (w *workspace) resolve(path string) string {
	if path == "" {
		path = "."
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.root, path)
	}
	return filepath.Clean(path)
}

// candidates are the forms of abs that patterns are matched against.
func (w *workspace) candidates(abs string) []string {
	out := []string{strings.TrimPrefix(filepath.ToSlash(abs), "/")}
	if rel, err := filepath.Rel(w.root, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func (w *workspace) isHidden(abs string) bool {
	ok, _ := matchAny(w.candidates(abs), w.hidden)
	return ok
}

func (w *workspace) checkRead(path string) (string, error) {
	abs := w.resolve(path)
	hidden, err := matchAny(w.candidates(abs), w.hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return "", errors.New("access denied: path '%s' is hidden", path)
	}
	return abs, nil
}

func (w *workspace) checkWrite(path string) (string, error) {
	abs, err := w.checkRead(path)
	if err != nil {
		return "", err
	}
	readOnly, err := matchAny(w.candidates(abs), w.readOnly)
	if err != nil {
		return "", err
	}
	if readOnly {
		return "", errors.New("access denied: path '%s' is read-only", path)
	}
	return abs, nil
}

// display maps abs back into the form the caller used for base.
func display(base, baseAbs, abs string) string {
	rel, err := filepath.Rel(baseAbs, abs)
	if err != nil {
		return abs
	}
	if base == "" {
		base = "."
	}
	return filepath.Join(base, rel)
}

// matchAny checks if any of the paths matches any of the glob patterns.
func matchAny(paths, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		for _, p := range paths {
			match, err := doublestar.Match(pattern, p)
			if err != nil {
				return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
			}
			if match {
				return true, nil
			}
		}
	}
	return false, nil
}

func skipDir(name string) bool {
	return name == ".git"
}
