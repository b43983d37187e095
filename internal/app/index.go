package app

import (
	"fmt"
	"os"
	"time"

	"github.com/wlame/rx/internal/domain/lineindex"
	"github.com/wlame/rx/internal/observability"
)

// IndexInfo describes the state of a file's line-offset index.
type IndexInfo struct {
	Path          string               `json:"path"`
	Exists        bool                 `json:"exists"`
	Valid         bool                 `json:"valid"`
	IndexPath     string               `json:"index_path,omitempty"`
	IntervalLines int64                `json:"interval_lines,omitempty"`
	Checkpoints   int                  `json:"checkpoints,omitempty"`
	Stats         *lineindex.LineStats `json:"stats,omitempty"`
}

// BuildIndex ensures a line-offset index exists for path, rebuilding
// when force is set or the stored index no longer matches the file.
func (a *App) BuildIndex(path string, force bool) (*lineindex.Index, bool, error) {
	resolved, err := a.Sandbox.Resolve(path)
	if err != nil {
		return nil, false, err
	}
	st, err := os.Stat(resolved)
	if err != nil {
		return nil, false, err
	}
	if st.IsDir() {
		return nil, false, fmt.Errorf("%s is a directory", resolved)
	}

	if force {
		if _, err := lineindex.Delete(a.Config.IndexDir(), resolved); err != nil {
			return nil, false, err
		}
	}

	buildStart := time.Now()
	idx, built, err := lineindex.Ensure(a.Config.IndexDir(), resolved, lineindex.DefaultInterval(st.Size()))
	if err != nil {
		return nil, false, err
	}
	if built {
		observability.IndexBuildDuration.Observe(time.Since(buildStart).Seconds())
	}
	return idx, built, nil
}

// Info reports whether path has a usable index without building one.
func (a *App) Info(path string) (*IndexInfo, error) {
	resolved, err := a.Sandbox.Resolve(path)
	if err != nil {
		return nil, err
	}

	info := &IndexInfo{Path: resolved}
	idx, err := lineindex.Load(a.Config.IndexDir(), resolved)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return info, nil
	}
	info.Exists = true
	info.Valid = lineindex.Valid(idx, resolved)
	info.IndexPath = lineindex.FilePath(a.Config.IndexDir(), resolved)
	info.IntervalLines = idx.IntervalLines
	info.Checkpoints = len(idx.Checkpoints)
	info.Stats = &idx.Stats
	return info, nil
}

// DeleteIndex removes the stored index for path, reporting whether one
// existed.
func (a *App) DeleteIndex(path string) (bool, error) {
	resolved, err := a.Sandbox.Resolve(path)
	if err != nil {
		return false, err
	}
	return lineindex.Delete(a.Config.IndexDir(), resolved)
}
