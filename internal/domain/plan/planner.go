// Package plan computes line-aligned chunk layouts for parallel search.
// A file is split into roughly even byte ranges whose interior boundaries
// are snapped forward to the next line start, so no chunk begins mid-line
// and per-chunk results can be merged without overlap handling.
package plan

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/wlame/rx/internal/ports"
)

const (
	// DefaultMinChunkBytes is the smallest chunk worth a dedicated
	// subprocess. Files at or below this size get a single chunk.
	DefaultMinChunkBytes = 20 * 1024 * 1024

	// probeCapBytes bounds the forward scan for a line terminator at a
	// candidate boundary. A line longer than this degrades that one
	// boundary to a byte-exact split, which can split a match crossing
	// it. Known limitation, not silently papered over.
	probeCapBytes = 64 * 1024

	probeReadSize = 8 * 1024
)

// Plan splits a file of fileSize bytes into line-aligned chunks of at
// least minChunkBytes each. The returned chunks partition [0, fileSize)
// in order; an empty file yields no chunks. A probing I/O error degrades
// to a single whole-file chunk.
func Plan(path string, fileSize, minChunkBytes int64) []ports.Chunk {
	if minChunkBytes <= 0 {
		minChunkBytes = DefaultMinChunkBytes
	}
	if fileSize <= 0 {
		return nil
	}
	if fileSize <= minChunkBytes {
		return []ports.Chunk{{Path: path, Start: 0, End: fileSize, SeqIndex: 0}}
	}

	pieces := fileSize / minChunkBytes
	if fileSize%minChunkBytes != 0 {
		pieces++
	}
	target := fileSize / pieces

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("chunk planning fell back to whole file", "path", path, "error", err)
		return []ports.Chunk{{Path: path, Start: 0, End: fileSize, SeqIndex: 0}}
	}
	defer f.Close()

	chunks := make([]ports.Chunk, 0, pieces)
	start := int64(0)
	for i := int64(0); i < pieces && start < fileSize; i++ {
		end := start + target
		if i == pieces-1 || end >= fileSize {
			end = fileSize
		} else {
			snapped, err := snapToLineStart(f, end, fileSize)
			if err != nil {
				slog.Warn("boundary probe failed, using single chunk", "path", path, "offset", end, "error", err)
				return []ports.Chunk{{Path: path, Start: 0, End: fileSize, SeqIndex: 0}}
			}
			end = snapped
		}
		if end <= start {
			continue
		}
		chunks = append(chunks, ports.Chunk{Path: path, Start: start, End: end, SeqIndex: len(chunks)})
		start = end
	}
	if start < fileSize {
		chunks = append(chunks, ports.Chunk{Path: path, Start: start, End: fileSize, SeqIndex: len(chunks)})
	}
	return chunks
}

// snapToLineStart scans forward from offset for the next line terminator
// and returns the offset just past it. The scan is capped: when no
// terminator appears within probeCapBytes the byte-exact offset is kept.
func snapToLineStart(r io.ReaderAt, offset, fileSize int64) (int64, error) {
	// Already at a line start: nothing to adjust.
	var prev [1]byte
	if _, err := r.ReadAt(prev[:], offset-1); err == nil && prev[0] == '\n' {
		return offset, nil
	}
	buf := make([]byte, probeReadSize)
	scanned := int64(0)
	for scanned < probeCapBytes {
		pos := offset + scanned
		if pos >= fileSize {
			return fileSize, nil
		}
		n, err := r.ReadAt(buf, pos)
		if n == 0 && err != nil && err != io.EOF {
			return 0, fmt.Errorf("probe read at %d: %w", pos, err)
		}
		if idx := bytes.IndexByte(buf[:n], '\n'); idx >= 0 {
			return pos + int64(idx) + 1, nil
		}
		scanned += int64(n)
		if err == io.EOF {
			return fileSize, nil
		}
	}
	// Cap exhausted: accept a mid-line boundary.
	return offset, nil
}

// Validate checks the planner invariants over a chunk sequence: sorted,
// non-empty, gap-free and overlap-free coverage of [0, fileSize).
func Validate(chunks []ports.Chunk, fileSize int64) error {
	if len(chunks) == 0 {
		if fileSize == 0 {
			return nil
		}
		return fmt.Errorf("no chunks for %d bytes", fileSize)
	}
	if chunks[0].Start != 0 {
		return fmt.Errorf("first chunk starts at %d, want 0", chunks[0].Start)
	}
	for i, c := range chunks {
		if c.SeqIndex != i {
			return fmt.Errorf("chunk %d has sequence index %d", i, c.SeqIndex)
		}
		if c.Start >= c.End {
			return fmt.Errorf("chunk %d is empty: [%d, %d)", i, c.Start, c.End)
		}
		if i > 0 && c.Start != chunks[i-1].End {
			return fmt.Errorf("gap or overlap at chunk %d: prev end %d, start %d", i, chunks[i-1].End, c.Start)
		}
	}
	if last := chunks[len(chunks)-1].End; last != fileSize {
		return fmt.Errorf("last chunk ends at %d, want %d", last, fileSize)
	}
	return nil
}
