package trace

import (
	"github.com/wlame/rx/internal/ports"
)

// ChunkError records a single chunk's execution failure without failing
// its siblings.
type ChunkError struct {
	ChunkIndex int    `json:"chunk_index"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	Cause      string `json:"cause"`
}

// FileOutcome is the aggregated, deterministic result for one file.
type FileOutcome struct {
	// Matches in ascending byte-offset order (chunk sequence order,
	// ascending within each chunk).
	Matches []ports.Match

	// ChunkErrors lists ranges whose subprocess truly failed.
	ChunkErrors []ChunkError

	// Truncated is set when early termination or cancellation cut off
	// remaining chunks, or when the match list was trimmed to budget.
	Truncated bool

	// Failed marks the file-level error status: at least one chunk
	// errored and no chunk produced a match. Non-match outcomes from
	// healthy chunks never demote to Failed.
	Failed bool
}

// Collect drains a dispatcher's completion-order stream and produces a
// file-order-stable result using strict in-order release: a completed
// chunk's matches are buffered until every lower sequence index has been
// flushed, so onMatch observes matches in ascending byte-offset order.
//
// onMatch may be nil. Matches are trimmed to budget (when budget > 0).
func Collect(outcomes <-chan ports.Outcome, chunks []ports.Chunk, budget int, onMatch func(ports.Match)) FileOutcome {
	var result FileOutcome

	pending := make(map[int]ports.Outcome)
	byIndex := make(map[int]ports.Chunk, len(chunks))
	for _, c := range chunks {
		byIndex[c.SeqIndex] = c
	}

	seen := 0
	next := 0
	full := false // budget reached, flush no further matches

	flush := func(o ports.Outcome) {
		if o.Err != nil {
			c := byIndex[o.ChunkIndex]
			result.ChunkErrors = append(result.ChunkErrors, ChunkError{
				ChunkIndex: o.ChunkIndex,
				Start:      c.Start,
				End:        c.End,
				Cause:      o.Err.Error(),
			})
			return
		}
		for _, m := range o.Matches {
			if full {
				result.Truncated = true
				return
			}
			result.Matches = append(result.Matches, m)
			if onMatch != nil {
				onMatch(m)
			}
			if budget > Unbounded && len(result.Matches) >= budget {
				full = true
			}
		}
	}

	for o := range outcomes {
		seen++
		pending[o.ChunkIndex] = o
		for {
			p, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			flush(p)
			next++
		}
	}

	// Chunks past a cancellation point complete out of order; release
	// whatever arrived, still in ascending sequence order.
	for ; len(pending) > 0; next++ {
		if p, ok := pending[next]; ok {
			delete(pending, next)
			flush(p)
		}
	}

	if seen < len(chunks) {
		result.Truncated = true
	}
	result.Failed = len(result.ChunkErrors) > 0 && len(result.Matches) == 0
	return result
}
