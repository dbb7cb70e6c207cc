package analysis

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

const (
	defaultMaxResults   = 100
	defaultContextLines = 2
	maxLineLength       = 500
)

// FindOptions tunes findPattern.
type FindOptions struct {
	Glob         string `json:"glob"` // comma separated
	MaxResults   int    `json:"maxResults"`
	ContextLines *int   `json:"contextLines"`
	IgnoreCase   bool   `json:"ignoreCase"`
}

// Match is one matching line.
type Match struct {
	File   string   `json:"file"`
	Line   int      `json:"line"`
	Column int      `json:"column"`
	Text   string   `json:"text"`
	Before []string `json:"before,omitempty"`
	After  []string `json:"after,omitempty"`
}

// FindResult is returned by findPattern.
type FindResult struct {
	Pattern      string  `json:"pattern"`
	Root         string  `json:"root"`
	Matches      []Match `json:"matches"`
	FilesScanned int     `json:"filesScanned"`
	Truncated    bool    `json:"truncated,omitempty"`
}

func compilePattern(pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, engine.Errorf(engine.KindInvalidInput, "pattern is required")
	}
	if ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, engine.Errorf(engine.KindInvalidInput, "invalid pattern: %v", err)
	}
	return re, nil
}

func splitGlobs(spec string) ([]string, error) {
	var globs []string
	for _, g := range strings.Split(spec, ",") {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !strings.Contains(g, "/") {
			g = "**/" + g
		}
		if !doublestar.ValidatePattern(g) {
			return nil, engine.Errorf(engine.KindInvalidInput, "invalid glob %q", g)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// FindPattern searches text files under root for pattern. Binary and
// oversized files are skipped.
func (t *Tool) FindPattern(ctx context.Context, pattern, root string, opts FindOptions) (*FindResult, error) {
	re, err := compilePattern(pattern, opts.IgnoreCase)
	if err != nil {
		return nil, err
	}
	globs, err := splitGlobs(opts.Glob)
	if err != nil {
		return nil, err
	}
	abs, err := t.path(root)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(abs); err != nil {
		return nil, statError(root, err)
	} else if !info.IsDir() {
		return nil, engine.Errorf(engine.KindInvalidInput, "%s is not a directory", root)
	}

	limit := opts.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	ctxLines := defaultContextLines
	if opts.ContextLines != nil && *opts.ContextLines >= 0 {
		ctxLines = *opts.ContextLines
	}

	res := &FindResult{Pattern: pattern, Root: abs, Matches: []Match{}}
	err = workspace.Walk(ctx, abs, workspace.WalkOptions{}, func(fi workspace.FileInfo) error {
		if !globMatch(globs, fi.Path) || fi.Size > t.maxSize {
			return nil
		}
		data, err := os.ReadFile(fi.AbsPath)
		if err != nil || isBinary(data) {
			return nil
		}
		res.FilesScanned++
		for _, m := range matchLines(re, fi.Path, data, ctxLines) {
			if len(res.Matches) >= limit {
				res.Truncated = true
				return fs.SkipAll
			}
			res.Matches = append(res.Matches, m)
		}
		return nil
	})
	if err != nil {
		return nil, engine.Wrap(engine.KindOf(err), MethodFindPattern, err)
	}
	return res, nil
}

func globMatch(globs []string, path string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

func matchLines(re *regexp.Regexp, file string, data []byte, ctxLines int) []Match {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), len(data)+1)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	var out []Match
	for i, line := range lines {
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		m := Match{File: file, Line: i + 1, Column: loc[0] + 1, Text: clip(line)}
		for j := max(0, i-ctxLines); j < i; j++ {
			m.Before = append(m.Before, clip(lines[j]))
		}
		for j := i + 1; j < len(lines) && j <= i+ctxLines; j++ {
			m.After = append(m.After, clip(lines[j]))
		}
		out = append(out, m)
	}
	return out
}

func clip(s string) string {
	if len(s) > maxLineLength {
		return s[:maxLineLength] + "..."
	}
	return s
}

// isBinary treats a NUL byte in the first 8KB as binary content.
func isBinary(data []byte) bool {
	if len(data) > 8192 {
		data = data[:8192]
	}
	return bytes.IndexByte(data, 0) >= 0
}
