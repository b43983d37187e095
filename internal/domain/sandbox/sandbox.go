// Package sandbox confines all file access to a configured root
// directory. Every externally supplied path is resolved, symlinks
// included, before any adapter touches the file, so a link pointing
// outside the root is caught rather than followed. An empty root
// disables confinement: paths are still canonicalized but never
// rejected, which is how one-shot CLI runs operate.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot marks a path that resolves outside the sandbox root.
// Callers treat it as request-fatal, never as a skippable file error.
var ErrOutsideRoot = errors.New("path outside search root")

// Sandbox validates paths against one root directory. A zero root
// accepts every path.
type Sandbox struct {
	root string
}

// New resolves root and returns a sandbox over it. The root must exist
// and be a directory. An empty root returns an unrestricted sandbox
// that canonicalizes paths without confining them.
func New(root string) (*Sandbox, error) {
	if root == "" {
		return &Sandbox{}, nil
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("search root %s: %w", root, err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, fmt.Errorf("search root %s: %w", root, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("search root %s: %w", abs, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("search root %s is not a directory", abs)
	}
	return &Sandbox{root: abs}, nil
}

// Root returns the resolved sandbox root. Empty for an unrestricted
// sandbox.
func (s *Sandbox) Root() string {
	return s.root
}

// Restricted reports whether paths are confined to a root.
func (s *Sandbox) Restricted() bool {
	return s.root != ""
}

// Resolve validates one path: relative paths resolve against the root,
// symlinks are followed, and the final location must sit inside the
// root. Non-existent paths are resolved through their deepest existing
// ancestor so ../ escapes are caught before file creation too. An
// unrestricted sandbox canonicalizes against the working directory and
// skips the containment check.
func (s *Sandbox) Resolve(path string) (string, error) {
	target := path
	if !filepath.IsAbs(target) {
		if s.root == "" {
			abs, err := filepath.Abs(target)
			if err != nil {
				return "", fmt.Errorf("resolve %s: %w", path, err)
			}
			target = abs
		} else {
			target = filepath.Join(s.root, target)
		}
	}
	target = filepath.Clean(target)

	resolved, err := evalDeepest(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if s.root != "" && !within(s.root, resolved) {
		return "", fmt.Errorf("%q resolves to %q outside %q: %w", path, resolved, s.root, ErrOutsideRoot)
	}
	return resolved, nil
}

// ResolveAll validates a batch; the first violation fails the batch.
func (s *Sandbox) ResolveAll(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		r, err := s.Resolve(p)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Contains reports whether path resolves inside the root.
func (s *Sandbox) Contains(path string) bool {
	_, err := s.Resolve(path)
	return err == nil
}

// evalDeepest resolves symlinks through the deepest existing ancestor,
// reattaching the non-existent tail afterwards.
func evalDeepest(target string) (string, error) {
	resolved, err := filepath.EvalSymlinks(target)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, tail := filepath.Dir(target), filepath.Base(target)
	for dir != filepath.Dir(dir) {
		resolved, err = filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(resolved, tail), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		tail = filepath.Join(filepath.Base(dir), tail)
		dir = filepath.Dir(dir)
	}
	return filepath.Join(dir, tail), nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
