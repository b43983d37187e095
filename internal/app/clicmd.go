package app

import (
	"fmt"
	"strconv"
	"strings"
)

// shellQuote quotes a string for safe POSIX shell usage. Plain
// identifiers pass through unquoted; anything else is single-quoted
// with embedded single quotes escaped.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_', r == '-', r == '.', r == '/', r == ':', r == '=', r == '@', r == '%', r == '+', r == ',':
			return false
		}
		return true
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// TraceCLICommand renders the standalone invocation equivalent to a
// trace request, included in API responses so callers can reproduce a
// search from a shell.
func TraceCLICommand(req TraceRequest) string {
	parts := []string{"rx"}
	for _, p := range req.Patterns {
		parts = append(parts, "-e", shellQuote(p))
	}
	for _, p := range req.Paths {
		parts = append(parts, shellQuote(p))
	}
	if req.MaxResults > 0 {
		parts = append(parts, fmt.Sprintf("--max-results=%d", req.MaxResults))
	}
	for _, g := range req.Include {
		parts = append(parts, "--include", shellQuote(g))
	}
	for _, g := range req.Exclude {
		parts = append(parts, "--exclude", shellQuote(g))
	}
	if req.BeforeContext > 0 {
		parts = append(parts, fmt.Sprintf("-B %d", req.BeforeContext))
	}
	if req.AfterContext > 0 {
		parts = append(parts, fmt.Sprintf("-A %d", req.AfterContext))
	}
	parts = append(parts, req.Passthrough...)
	return strings.Join(parts, " ")
}

// SamplesCLICommand renders the CLI equivalent of a samples request.
func SamplesCLICommand(req SamplesRequest) string {
	parts := []string{"rx", "samples", shellQuote(req.Path)}
	for _, b := range req.ByteOffsets {
		parts = append(parts, "-b "+strconv.FormatInt(b, 10))
	}
	for _, l := range req.LineNumbers {
		parts = append(parts, "-l "+strconv.FormatInt(l, 10))
	}
	if req.Before > 0 {
		parts = append(parts, fmt.Sprintf("-B %d", req.Before))
	}
	if req.After > 0 {
		parts = append(parts, fmt.Sprintf("-A %d", req.After))
	}
	return strings.Join(parts, " ")
}

// ComplexityCLICommand renders the CLI equivalent of a complexity check.
func ComplexityCLICommand(pattern string) string {
	return "rx check " + shellQuote(pattern)
}

// IndexCLICommand renders the CLI equivalent of an index operation.
func IndexCLICommand(path string, info, force bool) string {
	parts := []string{"rx", "index", shellQuote(path)}
	if info {
		parts = append(parts, "--info", "--json")
	}
	if force {
		parts = append(parts, "--force")
	}
	return strings.Join(parts, " ")
}

// CompressCLICommand renders the CLI equivalent of a compress request.
func CompressCLICommand(input, output string, frameSize, level int) string {
	parts := []string{"rx", "compress", shellQuote(input)}
	if output != "" {
		parts = append(parts, "-o "+shellQuote(output))
	}
	if frameSize > 0 {
		parts = append(parts, fmt.Sprintf("-s %d", frameSize))
	}
	if level > 0 {
		parts = append(parts, fmt.Sprintf("-l %d", level))
	}
	return strings.Join(parts, " ")
}
