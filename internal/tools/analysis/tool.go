// Package analysis implements the analysis tool: per-file structural
// summaries, regex search with context, and dependency cross-referencing.
package analysis

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/registry"
)

// Name is the tool name actions refer to.
const Name = "analysis"

const (
	MethodAnalyzeCode     = "analyzeCode"
	MethodFindPattern     = "findPattern"
	MethodGetDependencies = "getDependencies"
)

// DefaultMaxFileSize bounds files read for analysis or search.
const DefaultMaxFileSize int64 = 1024 * 1024

// Options configures a Tool.
type Options struct {
	// Resolve maps a user path to an absolute one, enforcing the filesystem
	// allow-list. Nil resolves relative to BaseDir without checks.
	Resolve     func(path string) (string, error)
	BaseDir     string
	MaxFileSize int64
}

// Tool is the analysis tool.
type Tool struct {
	resolve func(string) (string, error)
	base    string
	maxSize int64
}

// New creates an analysis tool.
func New(opts Options) *Tool {
	t := &Tool{resolve: opts.Resolve, base: opts.BaseDir, maxSize: opts.MaxFileSize}
	if t.maxSize <= 0 {
		t.maxSize = DefaultMaxFileSize
	}
	if t.base == "" {
		t.base, _ = os.Getwd()
	}
	return t
}

// Schema describes the tool's methods.
func Schema() registry.ToolSchema {
	return registry.ToolSchema{
		Name:        Name,
		Description: "Analyze source files, search code and inspect dependencies",
		Methods: []registry.MethodSchema{
			{Name: MethodAnalyzeCode, Description: "Summarize imports, exports, symbols and complexity of a file", Params: []registry.Param{
				{Name: "path", Type: registry.TypeString, Required: true, Domain: registry.DomainPath},
			}},
			{Name: MethodFindPattern, Description: "Search files for a regular expression", Params: []registry.Param{
				{Name: "pattern", Type: registry.TypeString, Required: true},
				{Name: "root", Type: registry.TypeString, Domain: registry.DomainPath},
				{Name: "options", Type: registry.TypeObject, Description: `{"glob","maxResults","contextLines","ignoreCase"}`},
			}},
			{Name: MethodGetDependencies, Description: "List manifest dependencies and flag unused or missing ones", Params: []registry.Param{
				{Name: "root", Type: registry.TypeString, Domain: registry.DomainPath},
			}},
		},
	}
}

// Check resolves path parameters so out-of-bounds paths fail validation.
func (t *Tool) Check(method string, params []string) ([]string, error) {
	var path string
	switch method {
	case MethodAnalyzeCode:
		if len(params) > 0 {
			path = params[0]
		}
	case MethodFindPattern:
		if len(params) > 0 {
			if _, err := compilePattern(params[0], false); err != nil {
				return nil, err
			}
		}
		if len(params) > 1 {
			path = params[1]
		}
	case MethodGetDependencies:
		if len(params) > 0 {
			path = params[0]
		}
	}
	if path == "" {
		return nil, nil
	}
	_, err := t.path(path)
	return nil, err
}

// Invoke runs a method.
func (t *Tool) Invoke(ctx context.Context, method string, params []string) (any, error) {
	get := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}
	switch method {
	case MethodAnalyzeCode:
		return t.AnalyzeCode(get(0))
	case MethodFindPattern:
		var opts FindOptions
		if err := registry.ObjectParam(get(2), &opts); err != nil {
			return nil, engine.Wrap(engine.KindInvalidInput, method, err)
		}
		return t.FindPattern(ctx, get(0), get(1), opts)
	case MethodGetDependencies:
		return t.GetDependencies(ctx, get(0))
	}
	return nil, engine.Errorf(engine.KindInvalidInput, "unknown method %s", method)
}

// AnalyzeCode summarizes one file.
func (t *Tool) AnalyzeCode(path string) (*Summary, error) {
	if path == "" {
		return nil, engine.Errorf(engine.KindInvalidInput, "path is required")
	}
	abs, err := t.path(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, statError(path, err)
	}
	if info.IsDir() {
		return nil, engine.Errorf(engine.KindInvalidInput, "%s is a directory", path)
	}
	if info.Size() > t.maxSize {
		return nil, engine.Errorf(engine.KindTooLarge, "file size %d exceeds limit %d", info.Size(), t.maxSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, statError(path, err)
	}
	s := Summarize(abs, data)
	s.Path = path
	return s, nil
}

func (t *Tool) path(p string) (string, error) {
	if p == "" {
		p = "."
	}
	if t.resolve != nil {
		return t.resolve(p)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(t.base, p)
	}
	return filepath.Clean(p), nil
}

func statError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return engine.Errorf(engine.KindNotFound, "%s does not exist", path)
	case os.IsPermission(err):
		return engine.Errorf(engine.KindAccessDenied, "permission denied: %s", path)
	}
	return engine.Wrap(engine.KindInternal, "analysis", err)
}
