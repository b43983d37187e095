package app

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// Submatch is one engine match within its line.
type Submatch struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ContextLine is a non-matching line shown around a match.
type ContextLine struct {
	LineNumber     int64  `json:"line_number"`
	LineText       string `json:"line_text"`
	AbsoluteOffset int64  `json:"absolute_offset"`
}

// TraceMatch is one matched line in ID-based form: pattern and file are
// referenced as p1/f1 style IDs resolved through the response maps.
type TraceMatch struct {
	Pattern    string     `json:"pattern"`
	File       string     `json:"file"`
	Offset     int64      `json:"offset"`
	LineNumber int64      `json:"line_number,omitempty"`
	LineText   string     `json:"line_text,omitempty"`
	Submatches []Submatch `json:"submatches,omitempty"`
}

// TraceResponse is the full result of one trace request. Offset is the
// byte position where the matched line starts; submatch positions are
// relative to that line.
type TraceResponse struct {
	RequestID    string            `json:"request_id"`
	Path         string            `json:"path"`
	Time         float64           `json:"time"`
	Patterns     map[string]string `json:"patterns"`
	Files        map[string]string `json:"files"`
	Matches      []TraceMatch      `json:"matches"`
	ScannedFiles []string          `json:"scanned_files"`
	SkippedFiles []string          `json:"skipped_files"`
	Truncated    bool              `json:"truncated,omitempty"`

	// Context lines keyed "p1:f1:offset" when context was requested.
	ContextLines  map[string][]ContextLine `json:"context_lines,omitempty"`
	BeforeContext int                      `json:"before_context,omitempty"`
	AfterContext  int                      `json:"after_context,omitempty"`

	// CLICommand is the equivalent standalone invocation.
	CLICommand string `json:"cli_command,omitempty"`
}

// ToCLI renders the response for terminal output, resolving IDs back to
// their values.
func (r *TraceResponse) ToCLI(colorize bool) string {
	grey := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan, color.Bold)
	magenta := color.New(color.FgMagenta)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen, color.Bold)
	if !colorize {
		for _, c := range []*color.Color{grey, cyan, magenta, yellow, green} {
			c.DisableColor()
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", grey.Sprint("Path:"), cyan.Sprint(r.Path))

	patternIDs := sortedKeys(r.Patterns)
	if len(patternIDs) == 1 {
		fmt.Fprintf(&b, "%s %s\n", grey.Sprint("Pattern:"), magenta.Sprint(r.Patterns[patternIDs[0]]))
	} else if len(patternIDs) > 1 {
		fmt.Fprintf(&b, "%s\n", grey.Sprintf("Patterns (%d):", len(patternIDs)))
		for _, id := range patternIDs {
			fmt.Fprintf(&b, "  %s: %s\n", grey.Sprint(id), magenta.Sprint(r.Patterns[id]))
		}
	}

	fmt.Fprintf(&b, "%s %s\n", grey.Sprint("Time:"), yellow.Sprintf("%.3fs", r.Time))
	if len(r.ScannedFiles) > 0 {
		fmt.Fprintf(&b, "%s %s\n", grey.Sprint("Files scanned:"), green.Sprint(len(r.ScannedFiles)))
	}
	if len(r.SkippedFiles) > 0 {
		fmt.Fprintf(&b, "%s %d\n", grey.Sprint("Files skipped:"), len(r.SkippedFiles))
	}

	fmt.Fprintf(&b, "%s %s", grey.Sprint("Matches:"), green.Sprint(len(r.Matches)))
	if r.Truncated {
		fmt.Fprintf(&b, " %s", grey.Sprint("(truncated)"))
	}
	b.WriteString("\n")

	for _, m := range r.Matches {
		file := r.Files[m.File]
		pattern := r.Patterns[m.Pattern]
		fmt.Fprintf(&b, "%s%s%s %s\n",
			cyan.Sprint(file),
			grey.Sprint(":"),
			yellow.Sprint(m.Offset),
			grey.Sprintf("[%s]", magenta.Sprint(pattern)))
		if m.LineText != "" {
			fmt.Fprintf(&b, "  %s\n", m.LineText)
		}
	}
	return b.String()
}

// AnalyseFileResult holds per-file metadata and line statistics.
type AnalyseFileResult struct {
	Path             string  `json:"path"`
	SizeBytes        int64   `json:"size_bytes"`
	SizeHuman        string  `json:"size_human"`
	ModTime          string  `json:"mod_time"`
	Compressed       bool    `json:"compressed"`
	CompressedFormat string  `json:"compressed_format,omitempty"`
	TotalLines       int64   `json:"total_lines"`
	MaxLineLength    int64   `json:"max_line_length"`
	MaxLineNumber    int64   `json:"max_line_number"`
	AvgLineLength    float64 `json:"avg_line_length"`
	MedianLineLength float64 `json:"median_line_length"`
	P95LineLength    float64 `json:"p95_line_length"`
	P99LineLength    float64 `json:"p99_line_length"`
	LineEnding       string  `json:"line_ending"`
	FromCache        bool    `json:"from_cache"`
}

// AnalyseResponse is the result of analysing one or more files.
type AnalyseResponse struct {
	Time         float64             `json:"time"`
	Files        []AnalyseFileResult `json:"files"`
	SkippedFiles []string            `json:"skipped_files"`
	CLICommand   string              `json:"cli_command,omitempty"`
}

// ToCLI renders the analysis for terminal output.
func (r *AnalyseResponse) ToCLI(colorize bool) string {
	grey := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	if !colorize {
		for _, c := range []*color.Color{grey, cyan, yellow} {
			c.DisableColor()
		}
	}

	var b strings.Builder
	for _, f := range r.Files {
		fmt.Fprintf(&b, "%s\n", cyan.Sprint(f.Path))
		fmt.Fprintf(&b, "  %s %s (%s bytes)\n", grey.Sprint("Size:"), f.SizeHuman, humanize.Comma(f.SizeBytes))
		fmt.Fprintf(&b, "  %s %s\n", grey.Sprint("Lines:"), humanize.Comma(f.TotalLines))
		fmt.Fprintf(&b, "  %s max=%d avg=%.1f p95=%.1f p99=%.1f\n",
			grey.Sprint("Line length:"), f.MaxLineLength, f.AvgLineLength, f.P95LineLength, f.P99LineLength)
		fmt.Fprintf(&b, "  %s %s\n", grey.Sprint("Line ending:"), f.LineEnding)
		if f.Compressed {
			fmt.Fprintf(&b, "  %s %s\n", grey.Sprint("Compression:"), f.CompressedFormat)
		}
		if f.FromCache {
			fmt.Fprintf(&b, "  %s\n", grey.Sprint("(cached)"))
		}
	}
	if len(r.SkippedFiles) > 0 {
		fmt.Fprintf(&b, "%s %d\n", grey.Sprint("Skipped:"), len(r.SkippedFiles))
	}
	fmt.Fprintf(&b, "%s %s\n", grey.Sprint("Time:"), yellow.Sprintf("%.3fs", r.Time))
	return b.String()
}

// SamplesResponse returns context windows around byte offsets or line
// numbers in one file. In offset mode Offsets maps each requested byte
// offset to its resolved line number; in line mode Lines maps each
// requested line number to its resolved byte offset (-1 when unknown).
// Samples is keyed by the string form of the requested offset or line.
type SamplesResponse struct {
	Time              float64             `json:"time"`
	Path              string              `json:"path"`
	Offsets           map[string]int64    `json:"offsets"`
	Lines             map[string]int64    `json:"lines"`
	BeforeContext     int                 `json:"before_context"`
	AfterContext      int                 `json:"after_context"`
	Samples           map[string][]string `json:"samples"`
	Compressed        bool                `json:"is_compressed,omitempty"`
	CompressionFormat string              `json:"compression_format,omitempty"`
	CLICommand        string              `json:"cli_command,omitempty"`
}

// ToCLI renders the sample windows, optionally highlighting pattern
// matches within each line.
func (r *SamplesResponse) ToCLI(colorize bool, pattern string) string {
	grey := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)
	if !colorize {
		grey.DisableColor()
		red.DisableColor()
	}

	var highlight *regexp.Regexp
	if colorize && pattern != "" {
		highlight, _ = regexp.Compile(pattern)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", r.Path)
	fmt.Fprintf(&b, "Context: %d before, %d after\n\n", r.BeforeContext, r.AfterContext)

	keys := make([]string, 0, len(r.Samples))
	for k := range r.Samples {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.ParseInt(keys[i], 10, 64)
		c, _ := strconv.ParseInt(keys[j], 10, 64)
		return a < c
	})

	for _, k := range keys {
		if len(r.Lines) > 0 {
			fmt.Fprintf(&b, "%s\n", grey.Sprintf("=== Line: %s ===", k))
		} else {
			fmt.Fprintf(&b, "%s\n", grey.Sprintf("=== Offset: %s ===", k))
		}
		for _, line := range r.Samples[k] {
			if highlight != nil {
				line = highlight.ReplaceAllStringFunc(line, func(m string) string {
					return red.Sprint(m)
				})
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// elapsedSeconds rounds a duration for response payloads.
func elapsedSeconds(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1e6
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// IDs are p1, p2, ... so length sorts before lexicography.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
