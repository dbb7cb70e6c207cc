package analysis

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

// Summary kinds.
const (
	KindCode    = "code"
	KindJSON    = "json"
	KindGeneric = "generic"
)

// Import is one import statement.
type Import struct {
	Source  string   `json:"source"`
	Symbols []string `json:"symbols,omitempty"`
}

// Summary is a lightweight structural description of one file.
type Summary struct {
	Path       string             `json:"path,omitempty"`
	Language   workspace.Language `json:"language,omitempty"`
	Kind       string             `json:"kind"`
	Imports    []Import           `json:"imports,omitempty"`
	Exports    []string           `json:"exports,omitempty"`
	Functions  []string           `json:"functions,omitempty"`
	Classes    []string           `json:"classes,omitempty"`
	Variables  []string           `json:"variables,omitempty"`
	Complexity int                `json:"complexity,omitempty"`
	Shape      *Shape             `json:"shape,omitempty"`
	Lines      int                `json:"lines"`
	Words      int                `json:"words"`
	Bytes      int                `json:"bytes"`
	ParseError string             `json:"parseError,omitempty"`
}

// ImportSources returns the distinct import sources in declaration order.
func (s *Summary) ImportSources() []string {
	seen := make(map[string]bool, len(s.Imports))
	var out []string
	for _, imp := range s.Imports {
		if !seen[imp.Source] {
			seen[imp.Source] = true
			out = append(out, imp.Source)
		}
	}
	return out
}

// Summarize describes content according to the language of path. Code that
// fails to parse falls back to the generic counts with ParseError set.
func Summarize(path string, content []byte) *Summary {
	lang := workspace.DetectLanguage(path)
	s := &Summary{Path: path, Language: lang, Kind: KindGeneric}
	countText(s, content)

	var err error
	switch lang {
	case workspace.LangGo:
		err = summarizeGo(s, content)
	case workspace.LangJavaScript, workspace.LangTypeScript:
		summarizeJS(s, string(content))
	case workspace.LangPython:
		summarizePython(s, string(content))
	case workspace.LangJSON:
		var v any
		if err = json.Unmarshal(content, &v); err == nil {
			s.Kind = KindJSON
			s.Shape = shapeOf(v, 0)
		}
	default:
		return s
	}
	if err != nil {
		s.ParseError = err.Error()
		s.Kind = KindGeneric
		s.Imports, s.Exports, s.Functions, s.Classes, s.Variables = nil, nil, nil, nil, nil
		s.Complexity = 0
		return s
	}
	if s.Kind == KindGeneric {
		s.Kind = KindCode
	}
	s.Exports = dedupSorted(s.Exports)
	return s
}

func countText(s *Summary, content []byte) {
	s.Bytes = len(content)
	if len(content) > 0 {
		s.Lines = bytes.Count(content, []byte{'\n'})
		if content[len(content)-1] != '\n' {
			s.Lines++
		}
	}
	s.Words = len(bytes.FieldsFunc(content, unicode.IsSpace))
}

func dedupSorted(in []string) []string {
	if len(in) == 0 {
		return in
	}
	sort.Strings(in)
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func isExportedPython(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_")
}
