package app

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/wlame/rx/internal/adapters/codec"
)

// binaryProbeBytes is how much of a file's head is checked for NUL
// bytes before treating it as binary.
const binaryProbeBytes = 8 * 1024

// skipReason explains why a file was left out of a search.
type skipReason string

const (
	skipBinary   skipReason = "binary"
	skipExcluded skipReason = "excluded"
	skipNoSpace  skipReason = "no_space"
	skipError    skipReason = "error"
)

// discovered is one file selected for searching.
type discovered struct {
	path string
	size int64
}

// discoverFiles expands each resolved path: files pass through, and
// directories are walked recursively with include/exclude doublestar
// globs applied to the path relative to the walk root. Binary files are
// skipped. Returns selected files and skipped paths with reasons.
func discoverFiles(paths []string, include, exclude []string) ([]discovered, map[string]skipReason) {
	var files []discovered
	skipped := make(map[string]skipReason)

	consider := func(path string, rel string, size int64) {
		if !matchGlobs(rel, include, true) || matchGlobs(rel, exclude, false) {
			skipped[path] = skipExcluded
			return
		}
		if isBinary(path) {
			skipped[path] = skipBinary
			return
		}
		files = append(files, discovered{path: path, size: size})
	}

	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			skipped[p] = skipError
			continue
		}
		if !st.IsDir() {
			// Explicitly named files bypass include filters but still
			// honor excludes and the binary check.
			if matchGlobs(filepath.Base(p), exclude, false) {
				skipped[p] = skipExcluded
				continue
			}
			if isBinary(p) {
				skipped[p] = skipBinary
				continue
			}
			files = append(files, discovered{path: p, size: st.Size()})
			continue
		}

		root := p
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if d.Name() != "." && len(d.Name()) > 1 && d.Name()[0] == '.' && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				skipped[path] = skipError
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			consider(path, rel, info.Size())
			return nil
		})
	}
	return files, skipped
}

// matchGlobs reports whether rel matches any of the patterns. An empty
// pattern list returns emptyResult.
func matchGlobs(rel string, patterns []string, emptyResult bool) bool {
	if len(patterns) == 0 {
		return emptyResult
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
		// A bare filename pattern should also match in subdirectories.
		if ok, err := doublestar.Match("**/"+pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// isBinary sniffs the head of the file for NUL bytes. Compressed
// files are never binary for search purposes: they are decompressed
// before any pattern runs against them.
func isBinary(path string) bool {
	if codec.IsCompressed(path) {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, binaryProbeBytes)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
