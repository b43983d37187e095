// Package lineindex maintains sparse line-number -> byte-offset indexes for
// files too large to scan linearly on every query. A checkpoint is recorded
// every IntervalLines lines; a lookup binary-searches the checkpoints and
// finishes with a bounded forward scan, O(log checkpoints + interval).
package lineindex

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/wlame/rx/internal/ports"
)

// Version is bumped whenever the persisted layout changes; a loaded index
// with a different version is discarded and rebuilt.
const Version = 2

const lineEndingSampleBytes = 64 * 1024

// Checkpoint maps a 1-based line number to the byte offset of its start.
// Both fields increase monotonically across a checkpoint sequence.
type Checkpoint struct {
	Line   int64 `json:"line"`
	Offset int64 `json:"offset"`
}

// LineStats summarizes the line structure observed during a build pass.
// Lengths exclude terminators; whitespace-only lines count as empty.
type LineStats struct {
	LineCount      int64   `json:"line_count"`
	EmptyLineCount int64   `json:"empty_line_count"`
	MaxLength      int64   `json:"max_length"`
	MaxLengthLine  int64   `json:"max_length_line"`
	MaxLengthOff   int64   `json:"max_length_offset"`
	AvgLength      float64 `json:"avg_length"`
	MedianLength   float64 `json:"median_length"`
	P95Length      float64 `json:"p95_length"`
	P99Length      float64 `json:"p99_length"`
	StddevLength   float64 `json:"stddev_length"`
	LineEnding     string  `json:"line_ending"`
}

// Index is the persisted checkpoint structure for one file.
type Index struct {
	Version       int               `json:"version"`
	Path          string            `json:"path"`
	Fingerprint   ports.Fingerprint `json:"fingerprint"`
	IntervalLines int64             `json:"interval_lines"`
	Checkpoints   []Checkpoint      `json:"checkpoints"`
	Stats         LineStats         `json:"stats"`
}

// DefaultInterval picks a checkpoint interval so that even a multi-GB file
// keeps a bounded, memory-resident checkpoint count (~4k checkpoints at a
// 100-byte average line).
func DefaultInterval(fileSize int64) int64 {
	interval := fileSize / (100 * 4096)
	if interval < 1000 {
		return 1000
	}
	const maxInterval = 1 << 20
	if interval > maxInterval {
		return maxInterval
	}
	return interval
}

// Build streams the file once, recording a checkpoint every intervalLines
// lines (line 1 always included) and collecting line statistics as it goes.
func Build(path string, intervalLines int64) (*Index, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if intervalLines <= 0 {
		intervalLines = DefaultInterval(info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	idx := &Index{
		Version:       Version,
		Path:          path,
		Fingerprint:   ports.FingerprintOf(info.Size(), info.ModTime()),
		IntervalLines: intervalLines,
	}

	var (
		offset   int64
		line     int64
		lengths  []int64
		sample   []byte
		reader   = bufio.NewReaderSize(f, 256*1024)
		stats    = &idx.Stats
		sampleOK = false
	)

	for {
		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			if (line-1)%intervalLines == 0 {
				idx.Checkpoints = append(idx.Checkpoints, Checkpoint{Line: line, Offset: offset})
			}
			if !sampleOK {
				sample = append(sample, raw...)
				if len(sample) >= lineEndingSampleBytes {
					sampleOK = true
				}
			}

			content := bytes.TrimRight(raw, "\r\n")
			if len(bytes.TrimSpace(content)) == 0 {
				stats.EmptyLineCount++
			} else {
				l := int64(len(content))
				lengths = append(lengths, l)
				if l > stats.MaxLength {
					stats.MaxLength = l
					stats.MaxLengthLine = line
					stats.MaxLengthOff = offset
				}
			}
			offset += int64(len(raw))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	stats.LineCount = line
	stats.LineEnding = detectLineEnding(sample)
	fillLengthStats(stats, lengths)
	return idx, nil
}

// Lookup returns the exact byte offset of the start of line n (1-based):
// the nearest preceding checkpoint plus a forward scan counting the
// remaining terminators. Returns an error when n is past end of file.
func (idx *Index) Lookup(path string, n int64) (int64, error) {
	if n < 1 {
		return 0, fmt.Errorf("line numbers are 1-based, got %d", n)
	}
	cp := idx.checkpointFor(n)
	if cp.Line == n {
		return cp.Offset, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(cp.Offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek %s: %w", path, err)
	}

	reader := bufio.NewReaderSize(f, 256*1024)
	line := cp.Line
	offset := cp.Offset
	for {
		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			if line == n {
				return offset, nil
			}
			offset += int64(len(raw))
			line++
		}
		if err == io.EOF {
			if line == n && len(raw) == 0 {
				return offset, nil
			}
			return 0, fmt.Errorf("line %d past end of %s (%d lines)", n, path, line-1)
		}
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
	}
}

// checkpointFor returns the checkpoint with the greatest Line <= n, or the
// implicit {1, 0} origin when the sequence is empty or n precedes it.
func (idx *Index) checkpointFor(n int64) Checkpoint {
	cps := idx.Checkpoints
	i := sort.Search(len(cps), func(i int) bool { return cps[i].Line > n })
	if i == 0 {
		return Checkpoint{Line: 1, Offset: 0}
	}
	return cps[i-1]
}

// checkpointForOffset returns the checkpoint with the greatest Offset <= off.
func (idx *Index) checkpointForOffset(off int64) Checkpoint {
	cps := idx.Checkpoints
	i := sort.Search(len(cps), func(i int) bool { return cps[i].Offset > off })
	if i == 0 {
		return Checkpoint{Line: 1, Offset: 0}
	}
	return cps[i-1]
}

// LineSpan locates the line containing a byte offset.
type LineSpan struct {
	Line  int64 // 1-based line number
	Start int64 // byte offset of the line start
	End   int64 // byte offset just past the terminator
}

// LinesForOffsets resolves the containing line for each requested byte
// offset in a single forward pass from the nearest checkpoint. Offsets
// beyond end of file are absent from the result.
func (idx *Index) LinesForOffsets(path string, offsets []int64) (map[int64]LineSpan, error) {
	result := make(map[int64]LineSpan, len(offsets))
	if len(offsets) == 0 {
		return result, nil
	}

	sorted := append([]int64(nil), offsets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	cp := idx.checkpointForOffset(sorted[0])

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(cp.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}

	reader := bufio.NewReaderSize(f, 256*1024)
	line := cp.Line
	offset := cp.Offset
	next := 0
	for next < len(sorted) {
		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			end := offset + int64(len(raw))
			for next < len(sorted) && sorted[next] < end {
				if sorted[next] >= offset {
					result[sorted[next]] = LineSpan{Line: line, Start: offset, End: end}
				}
				next++
			}
			offset = end
			line++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return result, nil
}

func detectLineEnding(sample []byte) string {
	crlf := int64(bytes.Count(sample, []byte("\r\n")))
	cr := int64(bytes.Count(sample, []byte("\r"))) - crlf
	lf := int64(bytes.Count(sample, []byte("\n"))) - crlf

	kinds := 0
	dominant := "LF"
	if crlf > 0 {
		kinds++
		dominant = "CRLF"
	}
	if lf > 0 {
		kinds++
		dominant = "LF"
	}
	if cr > 0 {
		kinds++
		dominant = "CR"
	}
	switch kinds {
	case 0:
		return "LF"
	case 1:
		return dominant
	default:
		return "mixed"
	}
}
