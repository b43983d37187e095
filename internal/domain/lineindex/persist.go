package lineindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wlame/rx/internal/ports"
)

// CacheKey derives a filename-safe, path-unique key for a source file:
// the sanitized basename plus the first 16 hex chars of the sha256 of the
// absolute path. Readable in a directory listing yet collision-resistant.
func CacheKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, filepath.Base(path))
	return base + "_" + hex.EncodeToString(sum[:])[:16]
}

// FilePath returns the location of the persisted index for a source file.
func FilePath(indexDir, sourcePath string) string {
	return filepath.Join(indexDir, CacheKey(sourcePath)+".json")
}

// Save atomically persists the index: write to a temp file in the target
// directory, then rename over any prior version. A failed save never
// clobbers an existing (possibly stale) index; staleness is caught later
// by Valid.
func Save(indexDir string, idx *Index) error {
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	target := FilePath(indexDir, idx.Path)
	tmp, err := os.CreateTemp(indexDir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace index: %w", err)
	}
	slog.Debug("index saved", "path", idx.Path, "checkpoints", len(idx.Checkpoints), "file", target)
	return nil
}

// Load reads a persisted index for a source file. Returns nil, nil when no
// index exists or the stored version/layout is unusable (callers rebuild).
func Load(indexDir, sourcePath string) (*Index, error) {
	data, err := os.ReadFile(FilePath(indexDir, sourcePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		slog.Warn("discarding malformed index", "path", sourcePath, "error", err)
		return nil, nil
	}
	if idx.Version != Version {
		slog.Debug("discarding index with stale version", "path", sourcePath, "version", idx.Version)
		return nil, nil
	}
	return &idx, nil
}

// Valid reports whether the index still matches the file on disk: size and
// mtime both unchanged. Any mismatch invalidates the whole index.
func Valid(idx *Index, sourcePath string) bool {
	if idx == nil {
		return false
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}
	return idx.Fingerprint == ports.FingerprintOf(info.Size(), info.ModTime())
}

// Delete removes the persisted index for a source file, reporting whether
// one existed.
func Delete(indexDir, sourcePath string) (bool, error) {
	err := os.Remove(FilePath(indexDir, sourcePath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete index: %w", err)
	}
	return true, nil
}

// Ensure loads a valid index for the file, building and persisting a fresh
// one when missing or stale. A concurrent or failed rebuild can never leave
// a malformed index behind: Save is atomic and Load tolerates absence.
func Ensure(indexDir, sourcePath string, intervalLines int64) (*Index, bool, error) {
	idx, err := Load(indexDir, sourcePath)
	if err != nil {
		return nil, false, err
	}
	if Valid(idx, sourcePath) {
		return idx, false, nil
	}

	idx, err = Build(sourcePath, intervalLines)
	if err != nil {
		return nil, false, fmt.Errorf("build index: %w", err)
	}
	if err := Save(indexDir, idx); err != nil {
		return nil, false, err
	}
	return idx, true, nil
}
