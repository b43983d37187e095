package app

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxStoredRequests bounds the in-memory request history.
const maxStoredRequests = 10000

// RequestInfo records one trace request's lifecycle for the API.
type RequestInfo struct {
	RequestID   string     `json:"request_id"`
	Paths       []string   `json:"paths"`
	Patterns    []string   `json:"patterns"`
	MaxResults  int        `json:"max_results,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalMatches      int   `json:"total_matches"`
	TotalFilesScanned int   `json:"total_files_scanned"`
	TotalFilesSkipped int   `json:"total_files_skipped"`
	TotalTimeMS       int64 `json:"total_time_ms"`
}

// RequestStore keeps recent request records in memory, oldest completed
// evicted first once full.
type RequestStore struct {
	mu       sync.Mutex
	requests map[string]*RequestInfo
}

// NewRequestStore creates an empty store.
func NewRequestStore() *RequestStore {
	return &RequestStore{requests: make(map[string]*RequestInfo)}
}

// Begin registers a new request and returns its ID.
func (s *RequestStore) Begin(paths, patterns []string, maxResults int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.requests) >= maxStoredRequests {
		s.evictOldestCompletedLocked()
	}

	id := uuid.NewString()
	s.requests[id] = &RequestInfo{
		RequestID:  id,
		Paths:      paths,
		Patterns:   patterns,
		MaxResults: maxResults,
		StartedAt:  time.Now().UTC(),
	}
	return id
}

// Complete stamps a request with its final counters.
func (s *RequestStore) Complete(id string, matches, scanned, skipped int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.requests[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	info.CompletedAt = &now
	info.TotalMatches = matches
	info.TotalFilesScanned = scanned
	info.TotalFilesSkipped = skipped
	info.TotalTimeMS = elapsed.Milliseconds()
}

// Get returns a copy of the request record, or nil.
func (s *RequestStore) Get(id string) *RequestInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.requests[id]
	if !ok {
		return nil
	}
	cp := *info
	return &cp
}

// List returns up to limit requests, most recent first.
func (s *RequestStore) List(limit int, includeCompleted bool) []RequestInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RequestInfo, 0, len(s.requests))
	for _, info := range s.requests {
		if !includeCompleted && info.CompletedAt != nil {
			continue
		}
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ClearOld removes completed requests older than maxAge. Returns the
// number removed.
func (s *RequestStore) ClearOld(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, info := range s.requests {
		if info.CompletedAt != nil && info.CompletedAt.Before(cutoff) {
			delete(s.requests, id)
			removed++
		}
	}
	return removed
}

// Len returns the current record count.
func (s *RequestStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// evictOldestCompletedLocked removes the single oldest completed
// request; when none is completed, the oldest overall goes.
func (s *RequestStore) evictOldestCompletedLocked() {
	var oldestID string
	var oldestAt time.Time
	var fallbackID string
	var fallbackAt time.Time

	for id, info := range s.requests {
		if info.CompletedAt != nil {
			if oldestID == "" || info.StartedAt.Before(oldestAt) {
				oldestID, oldestAt = id, info.StartedAt
			}
		}
		if fallbackID == "" || info.StartedAt.Before(fallbackAt) {
			fallbackID, fallbackAt = id, info.StartedAt
		}
	}
	if oldestID != "" {
		delete(s.requests, oldestID)
		return
	}
	if fallbackID != "" {
		delete(s.requests, fallbackID)
	}
}
