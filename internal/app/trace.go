package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/wlame/rx/internal/adapters/codec"
	"github.com/wlame/rx/internal/adapters/hooks"
	"github.com/wlame/rx/internal/domain/lineindex"
	"github.com/wlame/rx/internal/domain/plan"
	"github.com/wlame/rx/internal/domain/trace"
	"github.com/wlame/rx/internal/observability"
	"github.com/wlame/rx/internal/ports"
)

// DefaultMaxResults caps a trace request that does not set its own limit.
const DefaultMaxResults = 1000

// TraceRequest carries one search invocation over one or more paths.
// Passthrough flags are forwarded to the engine verbatim.
type TraceRequest struct {
	Paths       []string
	Patterns    []string
	Passthrough []string
	MaxResults  int
	Include     []string
	Exclude     []string

	BeforeContext int
	AfterContext  int

	// NoCache bypasses the trace cache for both reads and writes.
	NoCache bool

	// Per-request hook endpoint overrides, layered over the app config.
	OnFileHook     string
	OnMatchHook    string
	OnCompleteHook string
}

// Trace runs the full search pipeline: resolve paths inside the sandbox,
// discover files, and for each file consult the trace cache or plan
// chunks and dispatch them to the engine pool. Matches stream out in
// file order with ascending byte offsets, enriched with line numbers
// and text through the line-offset index.
func (a *App) Trace(ctx context.Context, req TraceRequest) (*TraceResponse, error) {
	started := time.Now()

	if len(req.Patterns) == 0 {
		return nil, fmt.Errorf("at least one pattern is required")
	}
	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("at least one path is required")
	}
	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}

	resolved, err := a.Sandbox.ResolveAll(req.Paths)
	if err != nil {
		return nil, err
	}

	files, skipped := discoverFiles(resolved, req.Include, req.Exclude)
	for _, reason := range skipped {
		observability.FilesSkipped.WithLabelValues(string(reason)).Inc()
	}

	requestID := a.Requests.Begin(resolved, req.Patterns, req.MaxResults)
	notifier := hooks.NewNotifier(a.Hooks.Merge(req.OnFileHook, req.OnMatchHook, req.OnCompleteHook))

	resp := &TraceResponse{
		RequestID:     requestID,
		Path:          resolved[0],
		Patterns:      make(map[string]string, len(req.Patterns)),
		Files:         make(map[string]string),
		BeforeContext: req.BeforeContext,
		AfterContext:  req.AfterContext,
		CLICommand:    TraceCLICommand(req),
	}
	if req.BeforeContext > 0 || req.AfterContext > 0 {
		resp.ContextLines = make(map[string][]ContextLine)
	}
	patternID := make(map[int]string, len(req.Patterns))
	for i, p := range req.Patterns {
		id := fmt.Sprintf("p%d", i+1)
		resp.Patterns[id] = p
		patternID[i] = id
	}
	fileID := make(map[string]string)

	patternsHash := trace.PatternsHash(req.Patterns, req.Passthrough)
	dispatcher := trace.NewDispatcher(a.Engine, a.Config.MaxSubprocesses)

	remaining := req.MaxResults
	for _, f := range files {
		if ctx.Err() != nil {
			resp.Truncated = true
			break
		}
		if remaining <= 0 {
			resp.Truncated = true
			break
		}

		notifier.OnFile(ctx, f.path, f.size)
		observability.HookCalls.WithLabelValues(hooks.EventOnFile).Inc()

		result, err := a.traceOneFile(ctx, dispatcher, req, f, patternsHash, remaining, notifier)
		if err != nil {
			var reason skipReason
			switch {
			case errors.Is(err, ports.ErrNoSpace):
				reason = skipNoSpace
			default:
				reason = skipError
			}
			slog.Warn("file skipped", "path", f.path, "reason", reason, "error", err)
			skipped[f.path] = reason
			observability.FilesSkipped.WithLabelValues(string(reason)).Inc()
			continue
		}

		resp.ScannedFiles = append(resp.ScannedFiles, f.path)
		if result.truncated {
			resp.Truncated = true
		}
		if len(result.matches) == 0 {
			continue
		}

		fid, ok := fileID[f.path]
		if !ok {
			fid = fmt.Sprintf("f%d", len(fileID)+1)
			fileID[f.path] = fid
			resp.Files[fid] = f.path
		}
		for _, em := range result.matches {
			resp.Matches = append(resp.Matches, TraceMatch{
				Pattern:    patternID[em.match.PatternIdx],
				File:       fid,
				Offset:     em.lineStart,
				LineNumber: em.lineNumber,
				LineText:   em.lineText,
				Submatches: em.submatches,
			})
			if len(em.context) > 0 {
				key := fmt.Sprintf("%s:%s:%d", patternID[em.match.PatternIdx], fid, em.lineStart)
				resp.ContextLines[key] = em.context
			}
		}
		remaining -= len(result.matches)
	}

	for path := range skipped {
		resp.SkippedFiles = append(resp.SkippedFiles, path)
	}
	sort.Strings(resp.SkippedFiles)

	elapsed := time.Since(started)
	resp.Time = elapsedSeconds(started)
	notifier.OnComplete(ctx, len(resp.Matches), len(resp.ScannedFiles), elapsed)
	observability.HookCalls.WithLabelValues(hooks.EventOnComplete).Inc()
	observability.SearchDuration.Observe(elapsed.Seconds())
	a.Requests.Complete(requestID, len(resp.Matches), len(resp.ScannedFiles), len(resp.SkippedFiles), elapsed)
	return resp, nil
}

// enrichedMatch is one raw match joined with its containing line.
type enrichedMatch struct {
	match      ports.Match
	lineNumber int64
	lineStart  int64
	lineText   string
	submatches []Submatch
	context    []ContextLine
}

type fileResult struct {
	matches   []enrichedMatch
	truncated bool
}

// traceOneFile searches a single file and returns its enriched matches.
// Compressed files are decompressed to scratch space first; match
// offsets refer to the decompressed content.
func (a *App) traceOneFile(ctx context.Context, dispatcher *trace.Dispatcher, req TraceRequest, f discovered, patternsHash string, budget int, notifier *hooks.Notifier) (*fileResult, error) {
	searchPath := f.path
	searchSize := f.size
	isTemp := false

	if codec.IsCompressed(f.path) {
		tmp, err := codec.DecompressToTemp(ctx, f.path, a.Config.ScratchDir())
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		st, err := os.Stat(tmp)
		if err != nil {
			return nil, err
		}
		searchPath = tmp
		searchSize = st.Size()
		isTemp = true
	}

	var (
		matches   []ports.Match
		truncated bool
		fromCache bool
	)

	if !req.NoCache {
		if cached, ok := trace.CachedMatches(a.Cache, patternsHash, f.path); ok {
			observability.TraceCacheHits.Inc()
			matches = cached
			fromCache = true
		} else {
			observability.TraceCacheMisses.Inc()
		}
	}

	if !fromCache {
		chunks := plan.Plan(searchPath, searchSize, a.Config.MinChunkBytes())
		tasks := make([]ports.SearchTask, len(chunks))
		for i, c := range chunks {
			tasks[i] = ports.SearchTask{Chunk: c, Patterns: req.Patterns, Passthrough: req.Passthrough}
		}
		observability.ChunksDispatched.Add(float64(len(chunks)))

		onMatch := func(m ports.Match) {
			notifier.OnMatch(ctx, f.path, m.Offset, m.Text)
		}
		outcome := trace.Collect(dispatcher.Dispatch(ctx, tasks, budget), chunks, budget, onMatch)
		observability.ChunkErrors.Add(float64(len(outcome.ChunkErrors)))
		if outcome.Failed {
			return nil, fmt.Errorf("all chunks failed: %s", outcome.ChunkErrors[0].Cause)
		}
		matches = outcome.Matches
		truncated = outcome.Truncated

		if !req.NoCache && trace.ShouldCache(searchSize, a.Config.LargeFileBytes(), truncated, false) {
			trace.StoreMatches(a.Cache, patternsHash, f.path, matches)
			observability.TraceCacheWrites.Inc()
		}
	}

	if len(matches) > budget {
		matches = matches[:budget]
		truncated = true
	}
	if len(matches) == 0 {
		return &fileResult{truncated: truncated}, nil
	}

	enriched, err := a.enrichMatches(searchPath, searchSize, isTemp, matches, req.BeforeContext, req.AfterContext)
	if err != nil {
		// Enrichment is best effort; raw offsets still stand.
		slog.Warn("line enrichment failed", "path", f.path, "error", err)
		enriched = make([]enrichedMatch, len(matches))
		for i, m := range matches {
			enriched[i] = enrichedMatch{match: m, lineStart: m.Offset}
		}
	}
	return &fileResult{matches: enriched, truncated: truncated}, nil
}

// enrichMatches joins raw byte-offset matches with their containing
// lines via the line-offset index. Indexes for scratch files are built
// in memory and never persisted.
func (a *App) enrichMatches(path string, size int64, temp bool, matches []ports.Match, before, after int) ([]enrichedMatch, error) {
	var (
		idx *lineindex.Index
		err error
	)
	interval := lineindex.DefaultInterval(size)
	if temp {
		idx, err = lineindex.Build(path, interval)
	} else {
		idx, _, err = lineindex.Ensure(a.Config.IndexDir(), path, interval)
	}
	if err != nil {
		return nil, err
	}

	offsets := make([]int64, len(matches))
	for i, m := range matches {
		offsets[i] = m.Offset
	}
	spans, err := idx.LinesForOffsets(path, offsets)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	enriched := make([]enrichedMatch, 0, len(matches))
	for _, m := range matches {
		span, ok := spans[m.Offset]
		if !ok {
			enriched = append(enriched, enrichedMatch{match: m, lineStart: m.Offset})
			continue
		}
		text, err := readSpan(f, span)
		if err != nil {
			return nil, err
		}
		em := enrichedMatch{
			match:      m,
			lineNumber: span.Line,
			lineStart:  span.Start,
			lineText:   text,
			submatches: []Submatch{{
				Text:  m.Text,
				Start: int(m.Offset - span.Start),
				End:   int(m.Offset-span.Start) + len(m.Text),
			}},
		}
		if before > 0 || after > 0 {
			em.context, err = contextAround(idx, f, path, span, before, after)
			if err != nil {
				return nil, err
			}
		}
		enriched = append(enriched, em)
	}
	return enriched, nil
}

// readSpan reads one line's bytes, trimming the terminator.
func readSpan(f *os.File, span lineindex.LineSpan) (string, error) {
	buf := make([]byte, span.End-span.Start)
	if _, err := f.ReadAt(buf, span.Start); err != nil && err != io.EOF {
		return "", err
	}
	return trimLineEnding(string(buf)), nil
}

func trimLineEnding(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// contextAround reads up to before lines above and after lines below the
// match line, excluding the match line itself.
func contextAround(idx *lineindex.Index, f *os.File, path string, span lineindex.LineSpan, before, after int) ([]ContextLine, error) {
	firstLine := span.Line - int64(before)
	if firstLine < 1 {
		firstLine = 1
	}
	startOff, err := idx.Lookup(path, firstLine)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(startOff, io.SeekStart); err != nil {
		return nil, err
	}
	reader := bufio.NewReaderSize(f, 64*1024)

	var out []ContextLine
	line := firstLine
	offset := startOff
	lastLine := span.Line + int64(after)
	for line <= lastLine {
		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			if line != span.Line {
				out = append(out, ContextLine{
					LineNumber:     line,
					LineText:       trimLineEnding(string(raw)),
					AbsoluteOffset: offset,
				})
			}
			offset += int64(len(raw))
			line++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
