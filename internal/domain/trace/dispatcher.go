// Package trace owns the chunked search pipeline: a bounded worker pool
// dispatching one external search subprocess per chunk, and an aggregator
// that restores file order over the completion-order outcome stream.
package trace

import (
	"context"
	"errors"
	"sync"

	"github.com/wlame/rx/internal/ports"
)

// DefaultWorkers bounds concurrent search subprocesses per dispatch.
const DefaultWorkers = 20

// Unbounded disables the result budget.
const Unbounded = 0

// Dispatcher runs search tasks on a fixed-size worker pool. The pool is
// the only shared mutable state: submission and completion accounting go
// through one channel and one mutex.
type Dispatcher struct {
	engine  ports.Engine
	workers int
}

// NewDispatcher creates a dispatcher with the given pool size. Sizes
// below 1 fall back to DefaultWorkers.
func NewDispatcher(engine ports.Engine, workers int) *Dispatcher {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Dispatcher{engine: engine, workers: workers}
}

// Dispatch submits every task immediately, without batching beyond the
// pool's own concurrency cap, and streams one Outcome per completed task in
// completion order. Once the running match total reaches budget (when
// budget > 0) the dispatch context is cancelled: queued tasks are dropped
// and in-flight subprocesses are killed, their partial output discarded.
// The returned channel is closed after the last worker exits.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []ports.SearchTask, budget int) <-chan ports.Outcome {
	out := make(chan ports.Outcome, len(tasks))
	if len(tasks) == 0 {
		close(out)
		return out
	}

	ctx, cancel := context.WithCancel(ctx)

	queue := make(chan ports.SearchTask, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)

	workers := d.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				if ctx.Err() != nil {
					return
				}
				d.run(ctx, task, budget, &mu, &total, cancel, out)
			}
		}()
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()
	return out
}

// run executes one task and publishes its outcome. Cancelled tasks
// publish nothing: their partial output is discarded by contract.
func (d *Dispatcher) run(ctx context.Context, task ports.SearchTask, budget int, mu *sync.Mutex, total *int, cancel context.CancelFunc, out chan<- ports.Outcome) {
	matches, err := d.engine.Search(ctx, task)
	switch {
	case errors.Is(err, ports.ErrNoMatch):
		out <- ports.Outcome{ChunkIndex: task.Chunk.SeqIndex, NoMatch: true}
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		out <- ports.Outcome{ChunkIndex: task.Chunk.SeqIndex, Err: err}
	default:
		if ctx.Err() != nil {
			return
		}
		mu.Lock()
		*total += len(matches)
		if budget > Unbounded && *total >= budget {
			cancel()
		}
		mu.Unlock()
		out <- ports.Outcome{ChunkIndex: task.Chunk.SeqIndex, Matches: matches}
	}
}
