package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/wlame/rx/internal/adapters/codec"
	"github.com/wlame/rx/internal/domain/lineindex"
	"github.com/wlame/rx/internal/observability"
	"github.com/wlame/rx/internal/ports"
)

// DefaultAnalyseWorkers bounds parallel file analysis.
const DefaultAnalyseWorkers = 10

// AnalyseRequest asks for metadata and line statistics on paths.
type AnalyseRequest struct {
	Paths      []string
	Include    []string
	Exclude    []string
	MaxWorkers int
	NoCache    bool
}

// Analyse extracts per-file metadata and line statistics. Text files
// get a full line-index build (persisted for later lookups); compressed
// files report size and format only. Results are cached in the analysis
// bucket and served from cache while the fingerprint holds.
func (a *App) Analyse(ctx context.Context, req AnalyseRequest) (*AnalyseResponse, error) {
	started := time.Now()

	if req.MaxWorkers <= 0 {
		req.MaxWorkers = DefaultAnalyseWorkers
	}

	resolved, err := a.Sandbox.ResolveAll(req.Paths)
	if err != nil {
		return nil, err
	}
	files, skipped := discoverFiles(resolved, req.Include, req.Exclude)

	// One file's failure never aborts the batch: per-file errors land
	// in errs and the file is reported as skipped.
	results := make([]AnalyseFileResult, len(files))
	errs := make([]error, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(req.MaxWorkers)
	for i, f := range files {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r, err := a.analyseOne(f.path, req.NoCache)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &AnalyseResponse{}
	for i, f := range files {
		if errs[i] != nil {
			slog.Warn("analyse failed", "path", f.path, "error", errs[i])
			observability.FilesSkipped.WithLabelValues(string(skipError)).Inc()
			skipped[f.path] = skipError
			continue
		}
		resp.Files = append(resp.Files, results[i])
	}
	for path := range skipped {
		resp.SkippedFiles = append(resp.SkippedFiles, path)
	}
	sort.Strings(resp.SkippedFiles)
	resp.Time = elapsedSeconds(started)
	return resp, nil
}

func (a *App) analyseOne(path string, noCache bool) (*AnalyseFileResult, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	result := AnalyseFileResult{
		Path:      path,
		SizeBytes: st.Size(),
		SizeHuman: humanize.Bytes(uint64(st.Size())),
		ModTime:   st.ModTime().UTC().Format(time.RFC3339),
	}

	if format := codec.Detect(path); format != codec.FormatNone {
		result.Compressed = true
		result.CompressedFormat = string(format)
		return &result, nil
	}

	fp := ports.FingerprintOf(st.Size(), st.ModTime())
	if !noCache {
		if entry, err := a.Cache.LoadAnalysis(path); err == nil && entry != nil && entry.Fingerprint == fp {
			var cached AnalyseFileResult
			if json.Unmarshal(entry.Payload, &cached) == nil {
				cached.FromCache = true
				return &cached, nil
			}
		}
	}

	buildStart := time.Now()
	idx, built, err := lineindex.Ensure(a.Config.IndexDir(), path, lineindex.DefaultInterval(st.Size()))
	if err != nil {
		return nil, err
	}
	if built {
		observability.IndexBuildDuration.Observe(time.Since(buildStart).Seconds())
	}

	stats := idx.Stats
	result.TotalLines = stats.LineCount
	result.MaxLineLength = stats.MaxLength
	result.MaxLineNumber = stats.MaxLengthLine
	result.AvgLineLength = stats.AvgLength
	result.MedianLineLength = stats.MedianLength
	result.P95LineLength = stats.P95Length
	result.P99LineLength = stats.P99Length
	result.LineEnding = stats.LineEnding

	if !noCache {
		if payload, err := json.Marshal(result); err == nil {
			entry := &ports.AnalysisEntry{
				Fingerprint: fp,
				Payload:     payload,
				CreatedAt:   time.Now().Unix(),
			}
			a.Cache.SaveAnalysis(path, entry)
		}
	}
	return &result, nil
}
