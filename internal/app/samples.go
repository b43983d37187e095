package app

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/wlame/rx/internal/adapters/codec"
	"github.com/wlame/rx/internal/domain/lineindex"
)

// SamplesRequest asks for context windows around byte offsets or line
// numbers in one file. The two modes are mutually exclusive.
type SamplesRequest struct {
	Path        string
	ByteOffsets []int64
	LineNumbers []int64
	Before      int
	After       int
}

// Samples reads context lines around the requested positions. Plain
// files serve both modes through the line-offset index. Compressed
// files support line mode only: seekable zstd archives decompress just
// the frames up to the target, other formats decompress to scratch.
func (a *App) Samples(ctx context.Context, req SamplesRequest) (*SamplesResponse, error) {
	started := time.Now()

	if len(req.ByteOffsets) > 0 && len(req.LineNumbers) > 0 {
		return nil, fmt.Errorf("byte offsets and line numbers are mutually exclusive")
	}
	if len(req.ByteOffsets) == 0 && len(req.LineNumbers) == 0 {
		return nil, fmt.Errorf("at least one byte offset or line number is required")
	}
	if req.Before < 0 || req.After < 0 {
		return nil, fmt.Errorf("context values must be non-negative")
	}

	path, err := a.Sandbox.Resolve(req.Path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	resp := &SamplesResponse{
		Path:          path,
		Offsets:       map[string]int64{},
		Lines:         map[string]int64{},
		BeforeContext: req.Before,
		AfterContext:  req.After,
		Samples:       map[string][]string{},
		CLICommand:    SamplesCLICommand(req),
	}

	if format := codec.Detect(path); format != codec.FormatNone {
		if len(req.ByteOffsets) > 0 {
			return nil, fmt.Errorf("byte offsets are not supported for compressed files, use line numbers")
		}
		resp.Compressed = true
		resp.CompressionFormat = string(format)

		if codec.IsSeekable(path) {
			if err := a.sampleSeekable(path, req, resp); err != nil {
				return nil, err
			}
			resp.Time = elapsedSeconds(started)
			return resp, nil
		}

		tmp, err := codec.DecompressToTemp(ctx, path, a.Config.ScratchDir())
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		if err := a.sampleLines(tmp, req, resp, false); err != nil {
			return nil, err
		}
		resp.Time = elapsedSeconds(started)
		return resp, nil
	}

	if isBinary(path) {
		return nil, fmt.Errorf("%s is not a text file", path)
	}

	if len(req.ByteOffsets) > 0 {
		err = a.sampleOffsets(path, st.Size(), req, resp)
	} else {
		err = a.sampleLines(path, req, resp, true)
	}
	if err != nil {
		return nil, err
	}
	resp.Time = elapsedSeconds(started)
	return resp, nil
}

// sampleOffsets resolves each byte offset to its containing line and
// reads the surrounding window.
func (a *App) sampleOffsets(path string, size int64, req SamplesRequest, resp *SamplesResponse) error {
	idx, _, err := lineindex.Ensure(a.Config.IndexDir(), path, lineindex.DefaultInterval(size))
	if err != nil {
		return err
	}
	spans, err := idx.LinesForOffsets(path, req.ByteOffsets)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, off := range req.ByteOffsets {
		key := strconv.FormatInt(off, 10)
		span, ok := spans[off]
		if !ok {
			resp.Offsets[key] = -1
			resp.Samples[key] = []string{}
			continue
		}
		resp.Offsets[key] = span.Line
		window, err := readWindow(idx, f, path, span.Line, req.Before, req.After)
		if err != nil {
			return err
		}
		resp.Samples[key] = window
	}
	return nil
}

// sampleLines reads a window around each line number. When persist is
// false the index is built in memory only (scratch files).
func (a *App) sampleLines(path string, req SamplesRequest, resp *SamplesResponse, persist bool) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	interval := lineindex.DefaultInterval(st.Size())

	var idx *lineindex.Index
	if persist {
		idx, _, err = lineindex.Ensure(a.Config.IndexDir(), path, interval)
	} else {
		idx, err = lineindex.Build(path, interval)
	}
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, line := range req.LineNumbers {
		key := strconv.FormatInt(line, 10)
		off, err := idx.Lookup(path, line)
		if err != nil {
			resp.Lines[key] = -1
			resp.Samples[key] = []string{}
			continue
		}
		resp.Lines[key] = off
		window, err := readWindow(idx, f, path, line, req.Before, req.After)
		if err != nil {
			return err
		}
		resp.Samples[key] = window
	}
	return nil
}

// sampleSeekable serves line-number samples from a seekable zstd
// archive by walking frames in order and decompressing only up to the
// frame containing each target line.
func (a *App) sampleSeekable(path string, req SamplesRequest, resp *SamplesResponse) error {
	frames, err := codec.ReadSeekTable(path)
	if err != nil {
		return err
	}

	// One pass per archive: frame line spans are discovered lazily and
	// reused across target lines.
	firstLine := make([]int64, len(frames)+1)
	firstLine[0] = 1
	counted := 0

	countThrough := func(frameIdx int) error {
		for counted <= frameIdx {
			data, err := codec.DecompressFrame(path, frames, counted)
			if err != nil {
				return err
			}
			firstLine[counted+1] = firstLine[counted] + int64(bytes.Count(data, []byte{'\n'}))
			counted++
		}
		return nil
	}

	frameFor := func(line int64) (int, error) {
		for i := range frames {
			if err := countThrough(i); err != nil {
				return -1, err
			}
			if line >= firstLine[i] && line < firstLine[i+1] {
				return i, nil
			}
		}
		return -1, nil
	}

	for _, line := range req.LineNumbers {
		key := strconv.FormatInt(line, 10)
		frameIdx, err := frameFor(line)
		if err != nil {
			return err
		}
		if frameIdx < 0 {
			resp.Lines[key] = -1
			resp.Samples[key] = []string{}
			continue
		}

		data, err := codec.DecompressFrame(path, frames, frameIdx)
		if err != nil {
			return err
		}
		lines := bytes.Split(data, []byte{'\n'})
		inFrame := int(line - firstLine[frameIdx])

		offset := frames[frameIdx].DecompressedOffset
		for i := 0; i < inFrame; i++ {
			offset += int64(len(lines[i])) + 1
		}
		resp.Lines[key] = offset

		start := max(0, inFrame-req.Before)
		end := min(len(lines), inFrame+req.After+1)
		window := make([]string, 0, end-start)
		for _, raw := range lines[start:end] {
			window = append(window, trimLineEnding(string(raw)))
		}
		resp.Samples[key] = window
	}
	return nil
}

// readWindow reads before+after+1 lines centered on line, including the
// line itself.
func readWindow(idx *lineindex.Index, f *os.File, path string, line int64, before, after int) ([]string, error) {
	first := line - int64(before)
	if first < 1 {
		first = 1
	}
	startOff, err := idx.Lookup(path, first)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(startOff, io.SeekStart); err != nil {
		return nil, err
	}
	reader := bufio.NewReaderSize(f, 64*1024)

	var out []string
	last := line + int64(after)
	for n := first; n <= last; n++ {
		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			out = append(out, trimLineEnding(string(raw)))
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
