package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBeginAndGet(t *testing.T) {
	s := NewRequestStore()

	id := s.Begin([]string{"/logs"}, []string{"error"}, 100)
	require.NotEmpty(t, id)

	info := s.Get(id)
	require.NotNil(t, info)
	assert.Equal(t, id, info.RequestID)
	assert.Equal(t, []string{"/logs"}, info.Paths)
	assert.Equal(t, 100, info.MaxResults)
	assert.Nil(t, info.CompletedAt)
}

func TestRequestComplete(t *testing.T) {
	s := NewRequestStore()
	id := s.Begin([]string{"/logs"}, []string{"error"}, 100)

	s.Complete(id, 42, 3, 1, 250*time.Millisecond)

	info := s.Get(id)
	require.NotNil(t, info)
	require.NotNil(t, info.CompletedAt)
	assert.Equal(t, 42, info.TotalMatches)
	assert.Equal(t, 3, info.TotalFilesScanned)
	assert.Equal(t, 1, info.TotalFilesSkipped)
	assert.Equal(t, int64(250), info.TotalTimeMS)
}

func TestRequestGetUnknown(t *testing.T) {
	s := NewRequestStore()
	assert.Nil(t, s.Get("nope"))
}

func TestRequestGetReturnsCopy(t *testing.T) {
	s := NewRequestStore()
	id := s.Begin([]string{"/logs"}, []string{"error"}, 10)

	info := s.Get(id)
	info.TotalMatches = 999

	assert.Equal(t, 0, s.Get(id).TotalMatches)
}

func TestRequestListMostRecentFirst(t *testing.T) {
	s := NewRequestStore()
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, s.Begin([]string{"/logs"}, []string{"e"}, 10))
		time.Sleep(2 * time.Millisecond)
	}

	list := s.List(10, true)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].RequestID)
	assert.Equal(t, ids[0], list[2].RequestID)
}

func TestRequestListExcludesCompleted(t *testing.T) {
	s := NewRequestStore()
	done := s.Begin([]string{"/logs"}, []string{"e"}, 10)
	open := s.Begin([]string{"/logs"}, []string{"e"}, 10)
	s.Complete(done, 1, 1, 0, time.Millisecond)

	list := s.List(10, false)
	require.Len(t, list, 1)
	assert.Equal(t, open, list[0].RequestID)
}

func TestRequestListLimit(t *testing.T) {
	s := NewRequestStore()
	for i := 0; i < 5; i++ {
		s.Begin([]string{"/logs"}, []string{"e"}, 10)
	}
	assert.Len(t, s.List(2, true), 2)
}

func TestRequestClearOld(t *testing.T) {
	s := NewRequestStore()
	old := s.Begin([]string{"/logs"}, []string{"e"}, 10)
	s.Complete(old, 1, 1, 0, time.Millisecond)
	fresh := s.Begin([]string{"/logs"}, []string{"e"}, 10)

	time.Sleep(5 * time.Millisecond)
	removed := s.ClearOld(time.Nanosecond)

	assert.Equal(t, 1, removed)
	assert.Nil(t, s.Get(old))
	assert.NotNil(t, s.Get(fresh))
}

func TestRequestEvictionPrefersCompleted(t *testing.T) {
	s := NewRequestStore()
	first := s.Begin([]string{"/logs"}, []string{"e"}, 10)
	s.Complete(first, 1, 1, 0, time.Millisecond)
	for i := 1; i < maxStoredRequests; i++ {
		s.Begin([]string{"/logs"}, []string{"e"}, 10)
	}
	require.Equal(t, maxStoredRequests, s.Len())

	s.Begin([]string{"/logs"}, []string{"e"}, 10)

	assert.Equal(t, maxStoredRequests, s.Len())
	assert.Nil(t, s.Get(first))
}
