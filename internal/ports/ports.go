// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. Domain logic depends
// only on these interfaces, never on concrete implementations.
package ports

import (
	"context"
	"errors"
	"time"
)

// ErrNoMatch is the canonical "ran successfully, found nothing" outcome of a
// search engine invocation. It is a valid terminal state, never an error to
// surface to callers.
var ErrNoMatch = errors.New("no match")

// ErrNoSpace reports that a decompression subprocess ran out of disk space.
// Callers degrade to skipping the file rather than aborting the batch.
var ErrNoSpace = errors.New("no space left on device")

// Fingerprint identifies a file's content state without reading it.
// Two fingerprints are equal iff size and mtime both match; any mismatch
// invalidates cached data derived from the file.
type Fingerprint struct {
	SizeBytes int64 `json:"size_bytes"`
	ModTime   int64 `json:"mod_time_unix_nano"`
}

// FingerprintOf stats a file and returns its identity fingerprint.
func FingerprintOf(statSize int64, modTime time.Time) Fingerprint {
	return Fingerprint{SizeBytes: statSize, ModTime: modTime.UnixNano()}
}

// Chunk is a contiguous, line-aligned byte range of a file, processed
// independently by one search task. Ranges of a file's chunks partition
// [0, size) with no gaps or overlaps. SeqIndex is the chunk's position in
// file order, used only for re-ordering results, never for scheduling.
type Chunk struct {
	Path     string
	Start    int64
	End      int64
	SeqIndex int
}

// Len returns the byte length of the chunk.
func (c Chunk) Len() int64 { return c.End - c.Start }

// SearchTask is the unit submitted to the worker pool: one chunk, the
// patterns to match, and caller-supplied flags forwarded verbatim to the
// engine. Owned exclusively by the dispatcher for its lifetime.
type SearchTask struct {
	Chunk       Chunk
	Patterns    []string
	Passthrough []string
}

// Match is a single engine match with its byte offset rebased to be
// absolute within the original file. Immutable once produced.
type Match struct {
	Path       string `json:"path"`
	PatternIdx int    `json:"pattern_index"`
	Offset     int64  `json:"offset"`
	Text       string `json:"text,omitempty"`
}

// Outcome is the per-chunk result streamed by the dispatcher. Exactly one
// of the three states holds: Err != nil (true execution failure), NoMatch
// (engine found nothing), or Matches populated.
type Outcome struct {
	ChunkIndex int
	Matches    []Match
	NoMatch    bool
	Err        error
}

// Engine runs one external search subprocess over a task's chunk and
// returns chunk-relative matches already rebased to absolute offsets.
// A clean zero-match run returns ports.ErrNoMatch.
type Engine interface {
	Search(ctx context.Context, task SearchTask) ([]Match, error)
	Available() bool
}

// TraceEntry is a cached search result blob for one file + pattern set.
type TraceEntry struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Matches     []Match     `json:"matches"`
	CreatedAt   int64       `json:"created_at"`
}

// AnalysisEntry is a cached analysis result blob for one file.
type AnalysisEntry struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Payload     []byte      `json:"payload"`
	CreatedAt   int64       `json:"created_at"`
}

// CacheStore persists trace and analysis results keyed by file identity.
// It is a plain key -> blob store with a validity predicate (fingerprint
// equality); it owns no eviction policy. Writes are transactional.
type CacheStore interface {
	// SaveTrace stores the full match set for (path, patternsHash).
	SaveTrace(patternsHash, path string, entry *TraceEntry) error

	// LoadTrace returns the entry for (path, patternsHash), or nil, nil
	// if none exists. Fingerprint validation is the caller's job.
	LoadTrace(patternsHash, path string) (*TraceEntry, error)

	// SaveAnalysis stores an analysis blob for a path.
	SaveAnalysis(path string, entry *AnalysisEntry) error

	// LoadAnalysis returns the analysis blob for a path, or nil, nil.
	LoadAnalysis(path string) (*AnalysisEntry, error)

	// InvalidatePath drops every cached entry derived from path.
	InvalidatePath(path string) error

	// Wipe removes all cached data.
	Wipe() error
}

// Watcher monitors files for changes so cached data can be invalidated
// ahead of fingerprint checks.
type Watcher interface {
	// Watch starts monitoring path. onChange receives the absolute path
	// of each changed or removed file, debounced.
	Watch(path string, onChange func(filePath string)) error
	Stop() error
}
