// Package ripgrep adapts the external rg binary to the search engine
// port. Each invocation scans exactly one chunk, fed over stdin as a
// byte-bounded section of the source file.
package ripgrep

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/wlame/rx/internal/ports"
)

// fixedFlags force machine-readable output: one match per line as
// "byte_offset:matched_text", with all decoration stripped. User flags
// never override these.
var fixedFlags = []string{
	"--only-matching",
	"--byte-offset",
	"--no-heading",
	"--no-line-number",
	"--no-filename",
	"--color=never",
}

// maxMatchLine bounds a single rg output line. Matched text is capped in
// practice by --only-matching, but a pathological pattern can still span
// most of a huge line.
const maxMatchLine = 16 * 1024 * 1024

// Engine shells out to rg.
type Engine struct {
	binary string
}

// New returns an engine using the given binary name or path. Empty
// means "rg" from PATH.
func New(binary string) *Engine {
	if binary == "" {
		binary = "rg"
	}
	return &Engine{binary: binary}
}

// Available reports whether the rg binary can be resolved.
func (e *Engine) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Version returns the first line of `rg --version`.
func (e *Engine) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("rg --version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Args builds the full argument list for one task: fixed flags, user
// passthrough flags verbatim, then one -e per pattern.
func Args(task ports.SearchTask) []string {
	args := make([]string, 0, len(fixedFlags)+len(task.Passthrough)+2*len(task.Patterns))
	args = append(args, fixedFlags...)
	args = append(args, task.Passthrough...)
	for _, p := range task.Patterns {
		args = append(args, "-e", p)
	}
	return args
}

// Search runs rg over the task's chunk. Offsets in the returned matches
// are absolute file offsets: rg reports them relative to the bytes it
// read, and the chunk start is added back here. A clean exit with no
// output maps to ports.ErrNoMatch. Cancelling ctx kills the subprocess.
func (e *Engine) Search(ctx context.Context, task ports.SearchTask) ([]ports.Match, error) {
	f, err := os.Open(task.Chunk.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", task.Chunk.Path, err)
	}
	defer f.Close()

	section := io.NewSectionReader(f, task.Chunk.Start, task.Chunk.End-task.Chunk.Start)

	cmd := exec.CommandContext(ctx, e.binary, Args(task)...)
	cmd.Stdin = section
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("rg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start rg: %w", err)
	}

	matches, parseErr := ParseOutput(stdout, task)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && exitErr.ExitCode() == 1 {
			// rg's "searched, found nothing" sentinel.
			return nil, ports.ErrNoMatch
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		return nil, fmt.Errorf("rg chunk %d [%d:%d): %s", task.Chunk.SeqIndex, task.Chunk.Start, task.Chunk.End, msg)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if len(matches) == 0 {
		return nil, ports.ErrNoMatch
	}
	return matches, nil
}

// ParseOutput reads "offset:text" lines and rebases offsets onto the
// chunk's absolute position. Matched text may itself contain colons, so
// only the first colon is the separator.
func ParseOutput(r io.Reader, task ports.SearchTask) ([]ports.Match, error) {
	attr := newAttributor(task.Patterns, task.Passthrough)

	var matches []ports.Match
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxMatchLine)
	for sc.Scan() {
		line := sc.Text()
		offStr, text, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		off, err := strconv.ParseInt(offStr, 10, 64)
		if err != nil {
			continue
		}
		matches = append(matches, ports.Match{
			Path:       task.Chunk.Path,
			PatternIdx: attr.index(text),
			Offset:     task.Chunk.Start + off,
			Text:       text,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read rg output: %w", err)
	}
	return matches, nil
}

// attributor maps matched text back to the pattern that produced it. rg
// does not report which -e fired, so each pattern is recompiled as a Go
// regexp and tested against the text. Unresolvable cases attribute to
// pattern 0.
type attributor struct {
	res []*regexp.Regexp
}

func newAttributor(patterns, passthrough []string) *attributor {
	fixed := hasFlag(passthrough, "-F", "--fixed-strings")
	insensitive := hasFlag(passthrough, "-i", "--ignore-case")

	a := &attributor{res: make([]*regexp.Regexp, len(patterns))}
	for i, p := range patterns {
		expr := p
		if fixed {
			expr = regexp.QuoteMeta(p)
		}
		if insensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			continue // PCRE-only syntax: leave nil, fall through to 0
		}
		a.res[i] = re
	}
	return a
}

func (a *attributor) index(text string) int {
	if len(a.res) == 1 {
		return 0
	}
	for i, re := range a.res {
		if re != nil && re.MatchString(text) {
			return i
		}
	}
	return 0
}

func hasFlag(flags []string, names ...string) bool {
	for _, f := range flags {
		for _, n := range names {
			if f == n {
				return true
			}
		}
	}
	return false
}
