package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wlame/rx/internal/app"
)

var (
	compressOutput    string
	compressFrameSize int
	compressLevel     int
	compressJSON      bool
)

var compressCmd = &cobra.Command{
	Use:   "compress <path>",
	Short: "Convert a file to seekable zstd",
	Long: "Compresses a file into a zstd archive made of independent frames\n" +
		"aligned to line boundaries, so later reads can decompress only the\n" +
		"frames covering a byte range. Gzip, bzip2, xz, and plain zstd\n" +
		"inputs are decompressed first.",
	Example: "  rx compress /var/log/app.log\n" +
		"  rx compress app.log -o archive.zst -l 5\n" +
		"  rx compress app.log -s 8388608",
	Args: cobra.ExactArgs(1),
	RunE: runCompress,
}

func init() {
	f := compressCmd.Flags()
	f.StringVarP(&compressOutput, "output", "o", "", "Output path (default <input>.zst)")
	f.IntVarP(&compressFrameSize, "frame-size", "s", 0, "Uncompressed frame size in bytes (default 4 MiB)")
	f.IntVarP(&compressLevel, "level", "l", 0, "Compression level 1-19 (default 3)")
	f.BoolVar(&compressJSON, "json", false, "Output as JSON")
}

func runCompress(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.Compress(app.CompressRequest{
		InputPath:  args[0],
		OutputPath: compressOutput,
		FrameSize:  compressFrameSize,
		Level:      compressLevel,
	})
	if err != nil {
		return err
	}

	if compressJSON {
		return printJSON(info)
	}

	ratio := 0.0
	if info.DecompressedSize > 0 {
		ratio = float64(info.CompressedSize) / float64(info.DecompressedSize) * 100
	}
	fmt.Printf("wrote %s: %d frames, %s -> %s (%.1f%%)\n",
		info.Path, info.FrameCount,
		humanize.Bytes(uint64(info.DecompressedSize)),
		humanize.Bytes(uint64(info.CompressedSize)),
		ratio)
	return nil
}
