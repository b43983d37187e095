package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/wlame/rx/internal/ports"
)

// decompressorArgs maps a format to its streaming decompressor command.
func decompressorArgs(format Format) ([]string, error) {
	switch format {
	case FormatGzip:
		return []string{"gzip", "-dc"}, nil
	case FormatBzip2:
		return []string{"bzip2", "-dc"}, nil
	case FormatXz:
		return []string{"xz", "-dc"}, nil
	case FormatZstd:
		return []string{"zstd", "-dc"}, nil
	default:
		return nil, fmt.Errorf("no decompressor for format %q", format)
	}
}

// DecompressToTemp streams a compressed file through its external
// decompressor into a scratch file under tmpDir (or the system temp dir
// when empty). The caller owns the returned path and must remove it.
//
// A full scratch volume is a per-file condition, not a batch killer: on
// ENOSPC the partial output is removed and ports.ErrNoSpace is returned
// so callers can skip the file and move on.
func DecompressToTemp(ctx context.Context, path, tmpDir string) (string, error) {
	format := Detect(path)
	if format == FormatNone {
		return "", fmt.Errorf("%s is not compressed", path)
	}
	args, err := decompressorArgs(format)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(tmpDir, "rx-decompress-*"+filepath.Ext(trimCompressedExt(path)))
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	in, err := os.Open(path)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer in.Close()
	cmd.Stdin = in

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return "", fmt.Errorf("%s stdout pipe: %w", args[0], err)
	}
	if err := cmd.Start(); err != nil {
		cleanup()
		return "", fmt.Errorf("start %s: %w", args[0], err)
	}

	written, copyErr := io.Copy(tmp, stdout)
	waitErr := cmd.Wait()
	closeErr := tmp.Close()

	if copyErr == nil && closeErr != nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmpPath)
		if errors.Is(copyErr, syscall.ENOSPC) {
			slog.Warn("scratch volume full, skipping file",
				"path", path, "written", written)
			return "", fmt.Errorf("decompress %s: %w", path, ports.ErrNoSpace)
		}
		return "", fmt.Errorf("write scratch file for %s: %w", path, copyErr)
	}
	if waitErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%s %s: %w", args[0], path, waitErr)
	}
	return tmpPath, nil
}

// trimCompressedExt strips one compression suffix so scratch files keep
// a recognizable inner extension (app.log.gz -> app.log).
func trimCompressedExt(path string) string {
	ext := filepath.Ext(path)
	if _, ok := extTable[strings.ToLower(ext)]; ok {
		return path[:len(path)-len(ext)]
	}
	return path
}

// DecompressorAvailable reports whether the external decompressor for
// the given format resolves on PATH.
func DecompressorAvailable(format Format) bool {
	args, err := decompressorArgs(format)
	if err != nil {
		return false
	}
	_, err = exec.LookPath(args[0])
	return err == nil
}
