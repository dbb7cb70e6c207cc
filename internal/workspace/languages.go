package workspace

import (
	"path/filepath"
	"strings"
)

// Language represents a programming or data language.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "ts"
	LangJavaScript Language = "js"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangRuby       Language = "ruby"
	LangShell      Language = "shell"
	LangMarkdown   Language = "markdown"
	LangJSON       Language = "json"
	LangYAML       Language = "yaml"
	LangTOML       Language = "toml"
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangText       Language = "text"
)

var extLanguages = map[string]Language{
	".go":   LangGo,
	".ts":   LangTypeScript,
	".tsx":  LangTypeScript,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".py":   LangPython,
	".rs":   LangRust,
	".java": LangJava,
	".c":    LangC,
	".h":    LangC,
	".cpp":  LangCPP,
	".cc":   LangCPP,
	".cxx":  LangCPP,
	".hpp":  LangCPP,
	".rb":   LangRuby,
	".sh":   LangShell,
	".bash": LangShell,
	".md":   LangMarkdown,
	".json": LangJSON,
	".yaml": LangYAML,
	".yml":  LangYAML,
	".toml": LangTOML,
	".html": LangHTML,
	".htm":  LangHTML,
	".css":  LangCSS,
	".txt":  LangText,
}

// DetectLanguage detects language from the file extension. Unknown
// extensions return "".
func DetectLanguage(path string) Language {
	return extLanguages[strings.ToLower(filepath.Ext(path))]
}

// IsCode reports whether the language is a programming language (as opposed
// to docs, data or markup).
func (l Language) IsCode() bool {
	switch l {
	case LangGo, LangTypeScript, LangJavaScript, LangPython, LangRust, LangJava,
		LangC, LangCPP, LangRuby, LangShell:
		return true
	}
	return false
}
