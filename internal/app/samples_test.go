package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wlame/rx/internal/adapters/codec"
)

func sampleFixture(t *testing.T, root string) string {
	t.Helper()
	var b strings.Builder
	for _, line := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return writeFile(t, root, "app.log", []byte(b.String()))
}

func TestSamplesByLineNumber(t *testing.T) {
	root := t.TempDir()
	path := sampleFixture(t, root)
	a, _ := newTestApp(t, root)

	resp, err := a.Samples(context.Background(), SamplesRequest{
		Path:        path,
		LineNumbers: []int64{4},
		Before:      1,
		After:       1,
	})
	require.NoError(t, err)

	// one\ntwo\nthree\n = 14 bytes before line 4
	assert.Equal(t, int64(14), resp.Lines["4"])
	assert.Equal(t, []string{"three", "four", "five"}, resp.Samples["4"])
	assert.False(t, resp.Compressed)
}

func TestSamplesByByteOffset(t *testing.T) {
	root := t.TempDir()
	path := sampleFixture(t, root)
	a, _ := newTestApp(t, root)

	// offset 9 is inside "three" (line 3)
	resp, err := a.Samples(context.Background(), SamplesRequest{
		Path:        path,
		ByteOffsets: []int64{9},
		Before:      1,
		After:       1,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), resp.Offsets["9"])
	assert.Equal(t, []string{"two", "three", "four"}, resp.Samples["9"])
}

func TestSamplesWindowClampsAtStart(t *testing.T) {
	root := t.TempDir()
	path := sampleFixture(t, root)
	a, _ := newTestApp(t, root)

	resp, err := a.Samples(context.Background(), SamplesRequest{
		Path:        path,
		LineNumbers: []int64{1},
		Before:      3,
		After:       1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two"}, resp.Samples["1"])
}

func TestSamplesLinePastEndOfFile(t *testing.T) {
	root := t.TempDir()
	path := sampleFixture(t, root)
	a, _ := newTestApp(t, root)

	resp, err := a.Samples(context.Background(), SamplesRequest{
		Path:        path,
		LineNumbers: []int64{500},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(-1), resp.Lines["500"])
	assert.Empty(t, resp.Samples["500"])
}

func TestSamplesModesAreExclusive(t *testing.T) {
	root := t.TempDir()
	path := sampleFixture(t, root)
	a, _ := newTestApp(t, root)

	_, err := a.Samples(context.Background(), SamplesRequest{
		Path:        path,
		ByteOffsets: []int64{1},
		LineNumbers: []int64{1},
	})
	require.Error(t, err)

	_, err = a.Samples(context.Background(), SamplesRequest{Path: path})
	require.Error(t, err)
}

func TestSamplesSeekableZstd(t *testing.T) {
	root := t.TempDir()
	plain := sampleFixture(t, root)
	archive := plain + ".zst"
	_, err := codec.Create(plain, archive, 8, codec.DefaultCompressionLevel)
	require.NoError(t, err)

	a, _ := newTestApp(t, root)

	resp, err := a.Samples(context.Background(), SamplesRequest{
		Path:        archive,
		LineNumbers: []int64{4},
		Before:      1,
		After:       1,
	})
	require.NoError(t, err)

	assert.True(t, resp.Compressed)
	assert.Equal(t, string(codec.FormatZstd), resp.CompressionFormat)
	assert.Equal(t, int64(14), resp.Lines["4"])
	require.Contains(t, resp.Samples, "4")
	assert.Contains(t, resp.Samples["4"], "four")
}

func TestSamplesCompressedRejectsByteOffsets(t *testing.T) {
	root := t.TempDir()
	plain := sampleFixture(t, root)
	archive := plain + ".zst"
	_, err := codec.Create(plain, archive, 8, codec.DefaultCompressionLevel)
	require.NoError(t, err)

	a, _ := newTestApp(t, root)

	_, err = a.Samples(context.Background(), SamplesRequest{
		Path:        archive,
		ByteOffsets: []int64{5},
	})
	require.Error(t, err)
}
