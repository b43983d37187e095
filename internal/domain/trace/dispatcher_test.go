package trace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wlame/rx/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEngine returns scripted outcomes per chunk index. Delays simulate
// subprocess runtimes so completion order differs from file order.
type fakeEngine struct {
	mu       sync.Mutex
	results  map[int][]ports.Match
	errs     map[int]error
	delays   map[int]time.Duration
	searched []int
}

func (f *fakeEngine) Available() bool { return true }

func (f *fakeEngine) Search(ctx context.Context, task ports.SearchTask) ([]ports.Match, error) {
	idx := task.Chunk.SeqIndex
	f.mu.Lock()
	f.searched = append(f.searched, idx)
	delay := f.delays[idx]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.errs[idx]; ok {
		return nil, err
	}
	if m, ok := f.results[idx]; ok {
		return m, nil
	}
	return nil, ports.ErrNoMatch
}

func (f *fakeEngine) searchedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searched)
}

// makeTasks builds n contiguous 100-byte chunks of one file.
func makeTasks(n int) ([]ports.SearchTask, []ports.Chunk) {
	tasks := make([]ports.SearchTask, 0, n)
	chunks := make([]ports.Chunk, 0, n)
	for i := 0; i < n; i++ {
		c := ports.Chunk{Path: "/data/big.log", Start: int64(i * 100), End: int64((i + 1) * 100), SeqIndex: i}
		chunks = append(chunks, c)
		tasks = append(tasks, ports.SearchTask{Chunk: c, Patterns: []string{"error"}})
	}
	return tasks, chunks
}

// match places one match at the chunk's start plus rel.
func match(chunk, rel int) ports.Match {
	return ports.Match{Path: "/data/big.log", Offset: int64(chunk*100 + rel), Text: "error"}
}

func TestDispatchAllChunksInOrder(t *testing.T) {
	tasks, chunks := makeTasks(5)
	eng := &fakeEngine{
		results: map[int][]ports.Match{
			0: {match(0, 10)},
			1: {match(1, 20)},
			2: {match(2, 30)},
			3: {match(3, 40)},
			4: {match(4, 50)},
		},
		// Completion order deliberately scrambled.
		delays: map[int]time.Duration{
			0: 40 * time.Millisecond,
			2: 20 * time.Millisecond,
		},
	}

	d := NewDispatcher(eng, 5)
	out := d.Dispatch(context.Background(), tasks, Unbounded)
	result := Collect(out, chunks, Unbounded, nil)

	require.Len(t, result.Matches, 5)
	assert.False(t, result.Truncated)
	assert.False(t, result.Failed)
	assert.Empty(t, result.ChunkErrors)
	for i := 1; i < len(result.Matches); i++ {
		assert.Less(t, result.Matches[i-1].Offset, result.Matches[i].Offset, "matches must ascend by offset")
	}
}

func TestDispatchStreamsInOrderRelease(t *testing.T) {
	tasks, chunks := makeTasks(3)
	eng := &fakeEngine{
		results: map[int][]ports.Match{
			0: {match(0, 1)},
			1: {match(1, 1)},
			2: {match(2, 1)},
		},
		delays: map[int]time.Duration{0: 50 * time.Millisecond},
	}

	var streamed []int64
	d := NewDispatcher(eng, 3)
	out := d.Dispatch(context.Background(), tasks, Unbounded)
	Collect(out, chunks, Unbounded, func(m ports.Match) {
		streamed = append(streamed, m.Offset)
	})

	// Chunk 0 finished last, yet nothing was released before it.
	assert.Equal(t, []int64{1, 101, 201}, streamed)
}

func TestDispatchBudgetStopsEarly(t *testing.T) {
	tasks, chunks := makeTasks(50)
	results := make(map[int][]ports.Match)
	delays := make(map[int]time.Duration)
	for i := 0; i < 50; i++ {
		results[i] = []ports.Match{match(i, 5)}
		// Later chunks are slower so cancellation can outrun them.
		delays[i] = time.Duration(i) * 3 * time.Millisecond
	}
	eng := &fakeEngine{results: results, delays: delays}

	d := NewDispatcher(eng, 4)
	out := d.Dispatch(context.Background(), tasks, 3)
	result := Collect(out, chunks, 3, nil)

	assert.Len(t, result.Matches, 3)
	assert.True(t, result.Truncated)
	assert.Less(t, eng.searchedCount(), 50, "not every chunk should have started")
}

func TestDispatchBudgetExactCount(t *testing.T) {
	tasks, chunks := makeTasks(5)
	eng := &fakeEngine{results: map[int][]ports.Match{
		0: {match(0, 1), match(0, 2)},
		1: {match(1, 1), match(1, 2)},
		2: {match(2, 1)},
		3: {match(3, 1)},
		4: {match(4, 1)},
	}}

	d := NewDispatcher(eng, 1) // serial: deterministic completion order
	out := d.Dispatch(context.Background(), tasks, 3)
	result := Collect(out, chunks, 3, nil)

	require.Len(t, result.Matches, 3)
	assert.True(t, result.Truncated)
	assert.Equal(t, []int64{1, 2, 101}, []int64{result.Matches[0].Offset, result.Matches[1].Offset, result.Matches[2].Offset})
}

func TestDispatchChunkErrorDoesNotAbortSiblings(t *testing.T) {
	tasks, chunks := makeTasks(4)
	eng := &fakeEngine{
		results: map[int][]ports.Match{
			0: {match(0, 1)},
			3: {match(3, 1)},
		},
		errs: map[int]error{1: errors.New("exit status 2: I/O error")},
		// Chunk 2 reports NoMatch.
	}

	d := NewDispatcher(eng, 4)
	out := d.Dispatch(context.Background(), tasks, Unbounded)
	result := Collect(out, chunks, Unbounded, nil)

	assert.Len(t, result.Matches, 2)
	require.Len(t, result.ChunkErrors, 1)
	assert.Equal(t, 1, result.ChunkErrors[0].ChunkIndex)
	assert.Equal(t, int64(100), result.ChunkErrors[0].Start)
	assert.False(t, result.Failed, "matches from healthy chunks keep the file out of error status")
	assert.False(t, result.Truncated)
}

func TestDispatchAllErrorsMarksFailed(t *testing.T) {
	tasks, chunks := makeTasks(2)
	eng := &fakeEngine{errs: map[int]error{
		0: errors.New("boom"),
		1: errors.New("boom"),
	}}

	d := NewDispatcher(eng, 2)
	out := d.Dispatch(context.Background(), tasks, Unbounded)
	result := Collect(out, chunks, Unbounded, nil)

	assert.True(t, result.Failed)
	assert.Len(t, result.ChunkErrors, 2)
	assert.Empty(t, result.Matches)
}

func TestDispatchNoMatchIsNotError(t *testing.T) {
	tasks, chunks := makeTasks(3)
	eng := &fakeEngine{} // every chunk: ErrNoMatch

	d := NewDispatcher(eng, 3)
	out := d.Dispatch(context.Background(), tasks, Unbounded)
	result := Collect(out, chunks, Unbounded, nil)

	assert.Empty(t, result.Matches)
	assert.Empty(t, result.ChunkErrors)
	assert.False(t, result.Failed)
	assert.False(t, result.Truncated)
}

func TestDispatchContextTimeoutCancels(t *testing.T) {
	tasks, chunks := makeTasks(6)
	delays := make(map[int]time.Duration)
	results := make(map[int][]ports.Match)
	for i := range tasks {
		delays[i] = 300 * time.Millisecond
		results[i] = []ports.Match{match(i, 1)}
	}
	eng := &fakeEngine{results: results, delays: delays}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	d := NewDispatcher(eng, 2)
	out := d.Dispatch(ctx, tasks, Unbounded)
	result := Collect(out, chunks, Unbounded, nil)

	assert.True(t, result.Truncated)
	assert.Empty(t, result.Matches)
}

func TestDispatchEmptyTaskList(t *testing.T) {
	d := NewDispatcher(&fakeEngine{}, 4)
	out := d.Dispatch(context.Background(), nil, Unbounded)
	result := Collect(out, nil, Unbounded, nil)
	assert.Empty(t, result.Matches)
	assert.False(t, result.Truncated)
}

func TestDispatchManyTasksBoundedPool(t *testing.T) {
	const n = 200
	tasks, chunks := makeTasks(n)
	results := make(map[int][]ports.Match)
	for i := 0; i < n; i++ {
		results[i] = []ports.Match{match(i, 7)}
	}
	eng := &fakeEngine{results: results}

	d := NewDispatcher(eng, 8)
	out := d.Dispatch(context.Background(), tasks, Unbounded)
	result := Collect(out, chunks, Unbounded, nil)

	require.Len(t, result.Matches, n)
	for i, m := range result.Matches {
		assert.Equal(t, int64(i*100+7), m.Offset, "match %d", i)
	}
}

func TestCollectPartialGapAfterCancel(t *testing.T) {
	// Simulate a dispatcher stream where chunk 1 never reports (killed)
	// but chunks 0 and 2 completed before cancellation took hold.
	_, chunks := makeTasks(3)
	out := make(chan ports.Outcome, 2)
	out <- ports.Outcome{ChunkIndex: 2, Matches: []ports.Match{match(2, 1)}}
	out <- ports.Outcome{ChunkIndex: 0, Matches: []ports.Match{match(0, 1)}}
	close(out)

	result := Collect(out, chunks, Unbounded, nil)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, int64(1), result.Matches[0].Offset)
	assert.Equal(t, int64(201), result.Matches[1].Offset)
	assert.True(t, result.Truncated, "a missing chunk marks the result truncated")
}

func TestFileOutcomeErrorRangesNamed(t *testing.T) {
	_, chunks := makeTasks(2)
	out := make(chan ports.Outcome, 2)
	out <- ports.Outcome{ChunkIndex: 0, NoMatch: true}
	out <- ports.Outcome{ChunkIndex: 1, Err: fmt.Errorf("exit status 2")}
	close(out)

	result := Collect(out, chunks, Unbounded, nil)
	require.Len(t, result.ChunkErrors, 1)
	assert.Equal(t, "exit status 2", result.ChunkErrors[0].Cause)
	assert.Equal(t, int64(100), result.ChunkErrors[0].Start)
	assert.Equal(t, int64(200), result.ChunkErrors[0].End)
	assert.True(t, result.Failed)
}
