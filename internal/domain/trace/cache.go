package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/wlame/rx/internal/ports"
)

// DefaultLargeFileBytes is the size floor for caching trace results.
// Small files re-scan faster than a cache round trip.
const DefaultLargeFileBytes = 50 * 1024 * 1024

// matchingFlags are the passthrough flags that change what a pattern
// matches and therefore participate in the cache key.
var matchingFlags = map[string]bool{
	"-i":               true,
	"-w":               true,
	"-x":               true,
	"-F":               true,
	"-P":               true,
	"--case-sensitive": true,
	"--ignore-case":    true,
}

// PatternsHash derives the cache key component for a pattern set: the
// sorted patterns plus the sorted matching-relevant subset of flags,
// hashed and truncated to 16 hex chars. Flag order and pattern order on
// the command line do not change the key.
func PatternsHash(patterns, flags []string) string {
	sortedPatterns := append([]string(nil), patterns...)
	sort.Strings(sortedPatterns)

	var relevant []string
	for _, f := range flags {
		if matchingFlags[f] {
			relevant = append(relevant, f)
		}
	}
	sort.Strings(relevant)

	input, _ := json.Marshal(struct {
		Flags    []string `json:"flags"`
		Patterns []string `json:"patterns"`
	}{Flags: relevant, Patterns: sortedPatterns})

	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])[:16]
}

// ShouldCache decides whether a file's scan result is worth persisting.
// Only complete, untruncated scans of large files qualify: a truncated
// match set would poison later unbudgeted queries.
func ShouldCache(fileSize, threshold int64, truncated bool, failed bool) bool {
	if threshold <= 0 {
		threshold = DefaultLargeFileBytes
	}
	if fileSize < threshold {
		return false
	}
	if truncated || failed {
		return false
	}
	return true
}

// CachedMatches consults the store for a valid cached result. A stale
// fingerprint invalidates silently; the caller falls through to a fresh
// scan.
func CachedMatches(store ports.CacheStore, patternsHash, path string) ([]ports.Match, bool) {
	entry, err := store.LoadTrace(patternsHash, path)
	if err != nil {
		slog.Warn("trace cache read failed", "path", path, "error", err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if ports.FingerprintOf(st.Size(), st.ModTime()) != entry.Fingerprint {
		return nil, false
	}
	return entry.Matches, true
}

// StoreMatches persists a complete scan result, stamped with the file's
// current fingerprint. Failures are logged, never surfaced: a cache
// write must not fail a successful search.
func StoreMatches(store ports.CacheStore, patternsHash, path string, matches []ports.Match) {
	st, err := os.Stat(path)
	if err != nil {
		return
	}
	entry := &ports.TraceEntry{
		Fingerprint: ports.FingerprintOf(st.Size(), st.ModTime()),
		Matches:     matches,
		CreatedAt:   time.Now().Unix(),
	}
	if err := store.SaveTrace(patternsHash, path, entry); err != nil {
		slog.Warn("trace cache write failed", "path", path, "error", err)
	}
}
