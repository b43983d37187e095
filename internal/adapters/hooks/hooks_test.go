package hooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	mu    sync.Mutex
	calls []url.Values
}

func (r *recorded) add(v url.Values) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
}

func (r *recorded) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func hookServer(t *testing.T) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Query())
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestOnFileSendsQueryParams(t *testing.T) {
	srv, rec := hookServer(t)
	n := NewNotifier(Config{OnFileURL: srv.URL})

	n.OnFile(context.Background(), "/logs/app.log", 12345)

	require.Equal(t, 1, rec.count())
	q := rec.calls[0]
	assert.Equal(t, "/logs/app.log", q.Get("path"))
	assert.Equal(t, "12345", q.Get("size"))
	assert.Equal(t, EventOnFile, q.Get("event"))
	assert.Equal(t, n.RequestID(), q.Get("request_id"))
}

func TestOnMatchAndOnComplete(t *testing.T) {
	srv, rec := hookServer(t)
	n := NewNotifier(Config{OnMatchURL: srv.URL, OnCompleteURL: srv.URL})

	n.OnMatch(context.Background(), "/logs/app.log", 99, "error here")
	n.OnComplete(context.Background(), 7, 3, 1500*time.Millisecond)

	require.Equal(t, 2, rec.count())
	assert.Equal(t, "99", rec.calls[0].Get("offset"))
	assert.Equal(t, "error here", rec.calls[0].Get("text"))
	assert.Equal(t, "7", rec.calls[1].Get("total_matches"))
	assert.Equal(t, "1500", rec.calls[1].Get("elapsed_ms"))
}

func TestUnconfiguredEventIsNoop(t *testing.T) {
	srv, rec := hookServer(t)
	n := NewNotifier(Config{OnFileURL: srv.URL})

	n.OnMatch(context.Background(), "/x", 0, "t")
	n.OnComplete(context.Background(), 0, 0, 0)

	assert.Equal(t, 0, rec.count())
}

func TestFailingEndpointNeverPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(Config{OnFileURL: srv.URL})
	// Must not panic or block; errors are logged only.
	n.OnFile(context.Background(), "/x", 1)
}

func TestUnreachableEndpointNeverPropagates(t *testing.T) {
	n := NewNotifier(Config{OnCompleteURL: "http://127.0.0.1:1/unreachable"})
	n.OnComplete(context.Background(), 0, 0, 0)
}

func TestSlowEndpointTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	n := NewNotifier(Config{OnFileURL: srv.URL})
	start := time.Now()
	n.OnFile(context.Background(), "/x", 1)
	assert.Less(t, time.Since(start), Timeout+2*time.Second)
}

func TestMergeOverlaysCallerURLs(t *testing.T) {
	env := Config{OnFileURL: "http://env/file"}
	merged := env.Merge("", "http://caller/match", "")
	assert.Equal(t, "http://env/file", merged.OnFileURL)
	assert.Equal(t, "http://caller/match", merged.OnMatchURL)
}

func TestMergeIgnoredWhenDisabled(t *testing.T) {
	env := Config{OnFileURL: "http://env/file", Disabled: true}
	merged := env.Merge("http://caller/file", "http://caller/match", "")
	assert.Equal(t, "http://env/file", merged.OnFileURL)
	assert.Empty(t, merged.OnMatchURL)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RX_HOOK_ON_FILE_URL", "http://h/file")
	t.Setenv("RX_DISABLE_CUSTOM_HOOKS", "TRUE")

	c := FromEnv()
	assert.Equal(t, "http://h/file", c.OnFileURL)
	assert.True(t, c.Disabled)
	assert.True(t, c.HasAny())
}

func TestHasAnyEmpty(t *testing.T) {
	assert.False(t, Config{}.HasAny())
}
