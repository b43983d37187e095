package plan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLines writes n lines of the given width (content only, newline
// added) and returns the file path.
func writeLines(t *testing.T, n, width int) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%0*d\n", width, i)
	}
	path := filepath.Join(t.TempDir(), "lines.log")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestPlanSmallFileSingleChunk(t *testing.T) {
	path := writeLines(t, 10, 9)
	info, err := os.Stat(path)
	require.NoError(t, err)

	chunks := Plan(path, info.Size(), 1024*1024)
	require.Len(t, chunks, 1)
	assert.Equal(t, int64(0), chunks[0].Start)
	assert.Equal(t, info.Size(), chunks[0].End)
	require.NoError(t, Validate(chunks, info.Size()))
}

func TestPlanEmptyFileNoChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	chunks := Plan(path, 0, 1024*1024)
	assert.Empty(t, chunks)
	require.NoError(t, Validate(chunks, 0))
}

func TestPlanBoundariesOnLineStarts(t *testing.T) {
	// 1000 lines of 100 bytes each (99 + newline) = 100000 bytes,
	// min chunk 16 KiB -> 7 pieces.
	path := writeLines(t, 1000, 99)
	info, err := os.Stat(path)
	require.NoError(t, err)

	chunks := Plan(path, info.Size(), 16*1024)
	require.Greater(t, len(chunks), 1)
	require.NoError(t, Validate(chunks, info.Size()))

	// Every interior boundary must land just past a newline.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, c := range chunks[1:] {
		assert.Equal(t, byte('\n'), data[c.Start-1], "chunk %d start %d not line-aligned", c.SeqIndex, c.Start)
	}
}

func TestPlanRoundTripReconstruction(t *testing.T) {
	path := writeLines(t, 5000, 37)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	chunks := Plan(path, int64(len(data)), 32*1024)
	require.NoError(t, Validate(chunks, int64(len(data))))

	var rebuilt bytes.Buffer
	for _, c := range chunks {
		rebuilt.Write(data[c.Start:c.End])
	}
	assert.True(t, bytes.Equal(data, rebuilt.Bytes()), "concatenated chunks must reproduce the file")
}

func TestPlanHugeLineDegradesToByteExact(t *testing.T) {
	// A single line far larger than the probe cap: interior boundaries
	// cannot be snapped, so a byte-exact split is accepted.
	line := strings.Repeat("x", 512*1024)
	path := filepath.Join(t.TempDir(), "huge.log")
	require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o644))

	size := int64(len(line) + 1)
	chunks := Plan(path, size, 128*1024)
	require.NoError(t, Validate(chunks, size))
	assert.Greater(t, len(chunks), 1)
}

func TestPlanMissingFileFallsBackToWholeFile(t *testing.T) {
	chunks := Plan(filepath.Join(t.TempDir(), "absent"), 100*1024*1024, 1024*1024)
	require.Len(t, chunks, 1)
	assert.Equal(t, int64(0), chunks[0].Start)
	assert.Equal(t, int64(100*1024*1024), chunks[0].End)
}

func TestPlanFiveChunksFor100MBEquivalent(t *testing.T) {
	// Scaled-down version of the 100 MB / 20 MB scenario: 100 KiB file,
	// 20 KiB min chunk, line width dividing the boundary evenly.
	path := writeLines(t, 6400, 15) // 6400 * 16 = 102400 bytes
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(100*1024), info.Size())

	chunks := Plan(path, info.Size(), 20*1024)
	assert.Len(t, chunks, 5)
	require.NoError(t, Validate(chunks, info.Size()))
}

func TestValidateRejectsGaps(t *testing.T) {
	chunks := Plan(writeLines(t, 100, 9), 1000, 100)
	chunks[1].Start++
	assert.Error(t, Validate(chunks, 1000))
}
