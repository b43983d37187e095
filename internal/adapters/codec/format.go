// Package codec handles compressed inputs: format detection, streaming
// decompression to scratch files, and the seekable zstd frame format
// that allows random access without full decompression.
package codec

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a compression container.
type Format string

const (
	FormatNone  Format = "none"
	FormatGzip  Format = "gzip"
	FormatBzip2 Format = "bzip2"
	FormatXz    Format = "xz"
	FormatZstd  Format = "zstd"
)

var magicTable = []struct {
	format Format
	magic  []byte
}{
	{FormatGzip, []byte{0x1f, 0x8b}},
	{FormatBzip2, []byte("BZh")},
	{FormatXz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{FormatZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
}

var extTable = map[string]Format{
	".gz":   FormatGzip,
	".tgz":  FormatGzip,
	".bz2":  FormatBzip2,
	".xz":   FormatXz,
	".zst":  FormatZstd,
	".zstd": FormatZstd,
}

// Detect identifies the compression format of a file. The extension is
// consulted first; when it is unknown the first bytes are sniffed, so a
// renamed .log that is really gzip is still caught.
func Detect(path string) Format {
	if f, ok := extTable[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return sniff(path)
}

func sniff(path string) Format {
	f, err := os.Open(path)
	if err != nil {
		return FormatNone
	}
	defer f.Close()

	head := make([]byte, 6)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return FormatNone
	}
	head = head[:n]

	for _, entry := range magicTable {
		if bytes.HasPrefix(head, entry.magic) {
			return entry.format
		}
	}
	return FormatNone
}

// IsCompressed reports whether the file needs decompression before
// byte-offset search.
func IsCompressed(path string) bool {
	return Detect(path) != FormatNone
}
