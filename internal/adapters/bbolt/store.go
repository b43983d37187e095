// Package bbolt implements the cache store port using bbolt (embedded
// B+ tree). Trace results live in one sub-bucket per pattern-set hash,
// analysis results in a flat bucket; values are JSON-serialized. Writes
// are transactional, so a crash mid-write cannot corrupt previously
// committed data. Validity is the caller's job via fingerprint
// comparison; the store only persists and retrieves.
package bbolt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/wlame/rx/internal/ports"
)

const dbFileName = "rx.db"

// Bucket keys
var (
	bucketTrace    = []byte("trace")
	bucketAnalysis = []byte("analysis")
)

// Store implements ports.CacheStore backed by bbolt.
type Store struct {
	db *bolt.DB
}

var _ ports.CacheStore = (*Store)(nil)

// Open creates or opens the cache database at dir/rx.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	path := filepath.Join(dir, dbFileName)

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTrace, bucketAnalysis} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.db.Path()
}

// pathKey derives the stable per-file key. Absolute paths hash the same
// regardless of how the caller spelled them.
func pathKey(path string) []byte {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return []byte(fmt.Sprintf("%016x", xxhash.Sum64String(abs)))
}

// SaveTrace stores the match set for (path, patternsHash) in the
// pattern-set's sub-bucket.
func (s *Store) SaveTrace(patternsHash, path string, entry *ports.TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal trace entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketTrace)
		b, err := parent.CreateBucketIfNotExists([]byte(patternsHash))
		if err != nil {
			return fmt.Errorf("create trace bucket %s: %w", patternsHash, err)
		}
		return b.Put(pathKey(path), data)
	})
}

// LoadTrace returns the cached entry for (path, patternsHash), or nil
// when absent. Corrupt blobs read as absent.
func (s *Store) LoadTrace(patternsHash, path string) (*ports.TraceEntry, error) {
	var entry *ports.TraceEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrace).Bucket([]byte(patternsHash))
		if b == nil {
			return nil
		}
		data := b.Get(pathKey(path))
		if data == nil {
			return nil
		}
		var e ports.TraceEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load trace entry: %w", err)
	}
	return entry, nil
}

// SaveAnalysis stores an analysis blob for a path.
func (s *Store) SaveAnalysis(path string, entry *ports.AnalysisEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal analysis entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAnalysis).Put(pathKey(path), data)
	})
}

// LoadAnalysis returns the cached analysis for a path, or nil.
func (s *Store) LoadAnalysis(path string) (*ports.AnalysisEntry, error) {
	var entry *ports.AnalysisEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAnalysis).Get(pathKey(path))
		if data == nil {
			return nil
		}
		var e ports.AnalysisEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load analysis entry: %w", err)
	}
	return entry, nil
}

// InvalidatePath drops every cached entry derived from path: the key is
// removed from each pattern-set bucket and from the analysis bucket.
func (s *Store) InvalidatePath(path string) error {
	key := pathKey(path)
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketTrace)
		err := parent.ForEachBucket(func(name []byte) error {
			return parent.Bucket(name).Delete(key)
		})
		if err != nil {
			return fmt.Errorf("invalidate trace entries: %w", err)
		}
		if err := tx.Bucket(bucketAnalysis).Delete(key); err != nil {
			return fmt.Errorf("invalidate analysis entry: %w", err)
		}
		return nil
	})
}

// Wipe removes all cached data while keeping the database usable.
func (s *Store) Wipe() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTrace, bucketAnalysis} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("drop bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("recreate bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Stats reports entry counts for diagnostics.
func (s *Store) Stats() (traceEntries, analysisEntries int, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketTrace)
		ferr := parent.ForEachBucket(func(name []byte) error {
			traceEntries += parent.Bucket(name).Stats().KeyN
			return nil
		})
		if ferr != nil {
			return ferr
		}
		analysisEntries = tx.Bucket(bucketAnalysis).Stats().KeyN
		return nil
	})
	return traceEntries, analysisEntries, err
}
