package codec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Seekable zstd layout: independently decompressable frames followed by
// a seek table inside a skippable frame. The table records per-frame
// (compressed_size u32, decompressed_size u32) pairs and ends with a
// 9-byte footer: magic u32, num_frames u32, flags u8. All little endian.
const (
	// DefaultFrameSize targets about 4 MiB of decompressed text per
	// frame, which keeps random access cheap at typical log ratios.
	DefaultFrameSize = 4 * 1024 * 1024

	// DefaultCompressionLevel maps to zstd level 3.
	DefaultCompressionLevel = 3

	skippableMagic   = 0x184D2A5E
	seekFooterMagic  = 0x8F92EAB1
	seekFooterSize   = 9
	seekEntrySize    = 8
	checksumFlagMask = 0x01
)

// Frame describes one independently decompressable region.
type Frame struct {
	Index              int   `json:"index"`
	CompressedOffset   int64 `json:"compressed_offset"`
	CompressedSize     int64 `json:"compressed_size"`
	DecompressedOffset int64 `json:"decompressed_offset"`
	DecompressedSize   int64 `json:"decompressed_size"`
}

// CompressedEnd is the offset one past the frame's compressed bytes.
func (f Frame) CompressedEnd() int64 { return f.CompressedOffset + f.CompressedSize }

// DecompressedEnd is the offset one past the frame's decompressed bytes.
func (f Frame) DecompressedEnd() int64 { return f.DecompressedOffset + f.DecompressedSize }

// SeekableInfo summarizes a seekable zstd file.
type SeekableInfo struct {
	Path             string  `json:"path"`
	CompressedSize   int64   `json:"compressed_size"`
	DecompressedSize int64   `json:"decompressed_size"`
	FrameCount       int     `json:"frame_count"`
	Frames           []Frame `json:"frames,omitempty"`
}

// IsSeekable reports whether the file carries a valid seek table footer.
// Only .zst files qualify.
func IsSeekable(path string) bool {
	if strings.ToLower(filepath.Ext(path)) != ".zst" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	footer := make([]byte, seekFooterSize)
	if _, err := f.Seek(-seekFooterSize, io.SeekEnd); err != nil {
		return false
	}
	if _, err := io.ReadFull(f, footer); err != nil {
		return false
	}
	return binary.LittleEndian.Uint32(footer[0:4]) == seekFooterMagic
}

// ReadSeekTable parses the seek table of a seekable zstd file and
// reconstructs absolute offsets by accumulating the per-frame sizes.
func ReadSeekTable(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	footer := make([]byte, seekFooterSize)
	if _, err := f.Seek(-seekFooterSize, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("seek footer: %w", err)
	}
	if _, err := io.ReadFull(f, footer); err != nil {
		return nil, fmt.Errorf("read footer: %w", err)
	}

	if magic := binary.LittleEndian.Uint32(footer[0:4]); magic != seekFooterMagic {
		return nil, fmt.Errorf("%s: not a seekable zstd file", path)
	}
	numFrames := int(binary.LittleEndian.Uint32(footer[4:8]))
	entrySize := seekEntrySize
	if footer[8]&checksumFlagMask != 0 {
		entrySize = 12
	}

	tableSize := int64(numFrames * entrySize)
	if _, err := f.Seek(-seekFooterSize-tableSize, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("seek table: %w", err)
	}
	table := make([]byte, tableSize)
	if _, err := io.ReadFull(f, table); err != nil {
		return nil, fmt.Errorf("read seek table: %w", err)
	}

	frames := make([]Frame, 0, numFrames)
	var compOff, decompOff int64
	for i := 0; i < numFrames; i++ {
		entry := table[i*entrySize:]
		compSize := int64(binary.LittleEndian.Uint32(entry[0:4]))
		decompSize := int64(binary.LittleEndian.Uint32(entry[4:8]))
		frames = append(frames, Frame{
			Index:              i,
			CompressedOffset:   compOff,
			CompressedSize:     compSize,
			DecompressedOffset: decompOff,
			DecompressedSize:   decompSize,
		})
		compOff += compSize
		decompOff += decompSize
	}
	return frames, nil
}

// Info returns summary details for a seekable zstd file.
func Info(path string) (*SeekableInfo, error) {
	frames, err := ReadSeekTable(path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	var decompressed int64
	for _, fr := range frames {
		decompressed += fr.DecompressedSize
	}
	return &SeekableInfo{
		Path:             path,
		CompressedSize:   st.Size(),
		DecompressedSize: decompressed,
		FrameCount:       len(frames),
		Frames:           frames,
	}, nil
}

// DecompressFrame returns the decompressed bytes of one frame.
func DecompressFrame(path string, frames []Frame, index int) ([]byte, error) {
	if index < 0 || index >= len(frames) {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", index, len(frames))
	}
	fr := frames[index]

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	compressed := make([]byte, fr.CompressedSize)
	if _, err := f.ReadAt(compressed, fr.CompressedOffset); err != nil {
		return nil, fmt.Errorf("read frame %d: %w", index, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(compressed, make([]byte, 0, fr.DecompressedSize))
	if err != nil {
		return nil, fmt.Errorf("decompress frame %d: %w", index, err)
	}
	return out, nil
}

// FramesForRange returns the indices of frames overlapping the half-open
// decompressed range [start, end).
func FramesForRange(frames []Frame, start, end int64) []int {
	var out []int
	for _, fr := range frames {
		if fr.DecompressedOffset < end && fr.DecompressedEnd() > start {
			out = append(out, fr.Index)
		}
	}
	return out
}

// DecompressRange extracts length decompressed bytes starting at the
// given decompressed offset, touching only the frames that overlap.
func DecompressRange(path string, frames []Frame, start, length int64) ([]byte, error) {
	end := start + length
	needed := FramesForRange(frames, start, end)
	if len(needed) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	for _, idx := range needed {
		fr := frames[idx]
		data, err := DecompressFrame(path, frames, idx)
		if err != nil {
			return nil, err
		}
		from := max(int64(0), start-fr.DecompressedOffset)
		to := min(int64(len(data)), end-fr.DecompressedOffset)
		buf.Write(data[from:to])
	}
	out := buf.Bytes()
	if int64(len(out)) > length {
		out = out[:length]
	}
	return out, nil
}

// Create compresses input into a seekable zstd file at output, one
// independent frame per roughly frameSize decompressed bytes. Frame
// boundaries extend to the next newline so no line straddles two
// frames. Compressed inputs are decompressed to scratch space first.
func Create(input, output string, frameSize int, level int) (*SeekableInfo, error) {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if level <= 0 {
		level = DefaultCompressionLevel
	}
	if strings.ToLower(filepath.Ext(output)) != ".zst" {
		output += ".zst"
	}

	src := input
	if IsCompressed(input) {
		tmp, err := DecompressToTemp(context.Background(), input, "")
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		src = tmp
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(output)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", output, err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()

	reader := bufio.NewReaderSize(in, 256*1024)
	var frames []Frame
	var compOff, decompOff int64

	for {
		chunk, err := readFrameChunk(reader, frameSize)
		if len(chunk) == 0 {
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", src, err)
			}
			break
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read %s: %w", src, err)
		}

		compressed := enc.EncodeAll(chunk, nil)
		if _, werr := out.Write(compressed); werr != nil {
			return nil, fmt.Errorf("write %s: %w", output, werr)
		}

		frames = append(frames, Frame{
			Index:              len(frames),
			CompressedOffset:   compOff,
			CompressedSize:     int64(len(compressed)),
			DecompressedOffset: decompOff,
			DecompressedSize:   int64(len(chunk)),
		})
		compOff += int64(len(compressed))
		decompOff += int64(len(chunk))

		if err == io.EOF {
			break
		}
	}

	if err := writeSeekTable(out, frames); err != nil {
		return nil, err
	}
	if err := out.Sync(); err != nil {
		return nil, fmt.Errorf("sync %s: %w", output, err)
	}

	return &SeekableInfo{
		Path:             output,
		CompressedSize:   compOff + seekTableBytes(len(frames)),
		DecompressedSize: decompOff,
		FrameCount:       len(frames),
		Frames:           frames,
	}, nil
}

// readFrameChunk reads about target bytes, then keeps reading whole
// lines until a newline ends the chunk or the input runs out.
func readFrameChunk(r *bufio.Reader, target int) ([]byte, error) {
	buf := make([]byte, 0, target+4096)
	for len(buf) < target {
		want := target - len(buf)
		tmp := make([]byte, want)
		n, err := r.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			return buf, err
		}
	}
	if len(buf) > 0 && buf[len(buf)-1] == '\n' {
		return buf, nil
	}
	rest, err := r.ReadBytes('\n')
	buf = append(buf, rest...)
	return buf, err
}

func writeSeekTable(w io.Writer, frames []Frame) error {
	table := make([]byte, 0, len(frames)*seekEntrySize+seekFooterSize)
	for _, fr := range frames {
		table = binary.LittleEndian.AppendUint32(table, uint32(fr.CompressedSize))
		table = binary.LittleEndian.AppendUint32(table, uint32(fr.DecompressedSize))
	}
	table = binary.LittleEndian.AppendUint32(table, seekFooterMagic)
	table = binary.LittleEndian.AppendUint32(table, uint32(len(frames)))
	table = append(table, 0) // flags: no checksums

	header := make([]byte, 0, 8)
	header = binary.LittleEndian.AppendUint32(header, skippableMagic)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(table)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write seek table header: %w", err)
	}
	if _, err := w.Write(table); err != nil {
		return fmt.Errorf("write seek table: %w", err)
	}
	return nil
}

func seekTableBytes(frameCount int) int64 {
	return int64(8 + frameCount*seekEntrySize + seekFooterSize)
}
