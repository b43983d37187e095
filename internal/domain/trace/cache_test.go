package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlame/rx/internal/ports"
)

func TestPatternsHashOrderInsensitive(t *testing.T) {
	h1 := PatternsHash([]string{"error", "warn"}, []string{"-i", "-w"})
	h2 := PatternsHash([]string{"warn", "error"}, []string{"-w", "-i"})
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestPatternsHashIgnoresNonMatchingFlags(t *testing.T) {
	base := PatternsHash([]string{"error"}, nil)
	withCosmetic := PatternsHash([]string{"error"}, []string{"--max-count", "5", "--threads", "2"})
	assert.Equal(t, base, withCosmetic, "flags that cannot change what matches stay out of the key")

	withCase := PatternsHash([]string{"error"}, []string{"-i"})
	assert.NotEqual(t, base, withCase, "-i changes matching and must change the key")
}

func TestPatternsHashDistinctPatterns(t *testing.T) {
	assert.NotEqual(t,
		PatternsHash([]string{"error"}, nil),
		PatternsHash([]string{"warn"}, nil))
}

func TestShouldCache(t *testing.T) {
	const threshold = 50 * 1024 * 1024

	assert.True(t, ShouldCache(threshold, threshold, false, false))
	assert.False(t, ShouldCache(threshold-1, threshold, false, false), "small files are not cached")
	assert.False(t, ShouldCache(threshold, threshold, true, false), "truncated results are not cached")
	assert.False(t, ShouldCache(threshold, threshold, false, true), "failed scans are not cached")
}

func TestShouldCacheDefaultThreshold(t *testing.T) {
	assert.False(t, ShouldCache(1024, 0, false, false))
	assert.True(t, ShouldCache(DefaultLargeFileBytes, 0, false, false))
}

// memStore is a minimal in-memory CacheStore for policy tests.
type memStore struct {
	traces   map[string]*ports.TraceEntry
	analyses map[string]*ports.AnalysisEntry
}

func newMemStore() *memStore {
	return &memStore{
		traces:   make(map[string]*ports.TraceEntry),
		analyses: make(map[string]*ports.AnalysisEntry),
	}
}

func (m *memStore) SaveTrace(hash, path string, e *ports.TraceEntry) error {
	m.traces[hash+"|"+path] = e
	return nil
}

func (m *memStore) LoadTrace(hash, path string) (*ports.TraceEntry, error) {
	return m.traces[hash+"|"+path], nil
}

func (m *memStore) SaveAnalysis(path string, e *ports.AnalysisEntry) error {
	m.analyses[path] = e
	return nil
}

func (m *memStore) LoadAnalysis(path string) (*ports.AnalysisEntry, error) {
	return m.analyses[path], nil
}

func (m *memStore) InvalidatePath(path string) error {
	for k := range m.traces {
		if strings.HasSuffix(k, "|"+path) {
			delete(m.traces, k)
		}
	}
	delete(m.analyses, path)
	return nil
}

func (m *memStore) Wipe() error {
	m.traces = make(map[string]*ports.TraceEntry)
	m.analyses = make(map[string]*ports.AnalysisEntry)
	return nil
}

func TestCachedMatchesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.log")
	require.NoError(t, os.WriteFile(path, []byte("data\n"), 0o644))

	store := newMemStore()
	matches := []ports.Match{{Path: path, Offset: 0, Text: "data"}}
	StoreMatches(store, "hash", path, matches)

	got, ok := CachedMatches(store, "hash", path)
	require.True(t, ok)
	assert.Equal(t, matches, got)
}

func TestCachedMatchesStaleFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.log")
	require.NoError(t, os.WriteFile(path, []byte("data\n"), 0o644))

	store := newMemStore()
	StoreMatches(store, "hash", path, []ports.Match{{Path: path, Offset: 0}})

	// Append to the file: size changes, fingerprint no longer matches.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("more\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, ok := CachedMatches(store, "hash", path)
	assert.False(t, ok)
}

func TestCachedMatchesMissingEntry(t *testing.T) {
	_, ok := CachedMatches(newMemStore(), "hash", "/nonexistent/file")
	assert.False(t, ok)
}

func TestCachedMatchesDeletedSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.log")
	require.NoError(t, os.WriteFile(path, []byte("data\n"), 0o644))

	store := newMemStore()
	StoreMatches(store, "hash", path, nil)
	require.NoError(t, os.Remove(path))

	_, ok := CachedMatches(store, "hash", path)
	assert.False(t, ok)
}

func TestStoreMatchesStampsFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")
	content := []byte("hello world\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	store := newMemStore()
	StoreMatches(store, "h", path, nil)

	entry := store.traces["h|"+path]
	require.NotNil(t, entry)
	assert.Equal(t, int64(len(content)), entry.Fingerprint.SizeBytes)
	assert.InDelta(t, time.Now().Unix(), entry.CreatedAt, 5)
}
