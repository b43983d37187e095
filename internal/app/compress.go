package app

import (
	"fmt"
	"os"

	"github.com/wlame/rx/internal/adapters/codec"
)

// CompressRequest asks for a seekable zstd archive of a file.
type CompressRequest struct {
	InputPath  string
	OutputPath string
	FrameSize  int
	Level      int
}

// Compress converts a file into a frame-aligned seekable zstd archive.
// Already-compressed inputs are decompressed first so the archive holds
// the plain content. The default output path appends .zst.
func (a *App) Compress(req CompressRequest) (*codec.SeekableInfo, error) {
	input, err := a.Sandbox.Resolve(req.InputPath)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", input)
	}

	output := req.OutputPath
	if output == "" {
		output = input + ".zst"
	}
	output, err = a.Sandbox.Resolve(output)
	if err != nil {
		return nil, err
	}
	if output == input {
		return nil, fmt.Errorf("output path equals input path")
	}

	frameSize := req.FrameSize
	if frameSize <= 0 {
		frameSize = codec.DefaultFrameSize
	}
	level := req.Level
	if level <= 0 {
		level = codec.DefaultCompressionLevel
	}
	return codec.Create(input, output, frameSize, level)
}
