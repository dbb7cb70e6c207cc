package reasoning

import (
	"fmt"
	"regexp"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/analysis"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/execution"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/network"
)

// Strategy selects how a match is turned into parameters.
type Strategy string

const (
	// StrategyFileContent: capture 1 is the file name; content comes from the
	// nearest fenced code block or a "with"/"containing" clause.
	StrategyFileContent Strategy = "fileContent"
	// StrategyPath: capture 1 is a path.
	StrategyPath Strategy = "path"
	// StrategyPathOrDot: capture 1 is a path, "." when empty.
	StrategyPathOrDot Strategy = "pathOrDot"
	// StrategyCommand: capture 1 is a command line kept verbatim.
	StrategyCommand Strategy = "command"
	// StrategyShellBlock: capture 1 is the body of a shell code block; each
	// non-comment line becomes one command.
	StrategyShellBlock Strategy = "shellBlock"
	// StrategyPackage: capture 1 is a package identifier.
	StrategyPackage Strategy = "package"
	// StrategyScript: capture 1 is a script name.
	StrategyScript Strategy = "script"
	// StrategyURL: capture 1 is a URL.
	StrategyURL Strategy = "url"
)

// Pattern is one catalog entry.
type Pattern struct {
	Name        string
	Type        engine.ActionType
	Tool        string
	Method      string
	Regexp      *regexp.Regexp
	Strategy    Strategy
	Confidence  float64
	Destructive bool
	// InCode matches against fenced code blocks too. Other patterns only see
	// prose so that code samples do not trigger actions.
	InCode bool
}

func (p Pattern) validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("pattern name is required")
	case p.Regexp == nil:
		return fmt.Errorf("pattern %s: regexp is required", p.Name)
	case p.Regexp.NumSubexp() < 1:
		return fmt.Errorf("pattern %s: regexp needs a capture group", p.Name)
	case p.Tool == "" || p.Method == "":
		return fmt.Errorf("pattern %s: tool and method are required", p.Name)
	case p.Confidence < 0 || p.Confidence > 1:
		return fmt.Errorf("pattern %s: confidence %.2f outside [0,1]", p.Name, p.Confidence)
	}
	switch p.Strategy {
	case StrategyFileContent, StrategyPath, StrategyPathOrDot, StrategyCommand,
		StrategyShellBlock, StrategyPackage, StrategyScript, StrategyURL:
	default:
		return fmt.Errorf("pattern %s: unknown strategy %q", p.Name, p.Strategy)
	}
	return nil
}

// file names need an extension so prose like "create a test" is ignored.
const (
	quote    = "[`'\"]?"
	fileName = quote + `([\w./-]*\w\.\w+)` + quote
	pathName = quote + `([\w./~-]+)` + quote
)

// DefaultPatterns is the built-in catalog. Order matters: on overlapping
// matches of equal confidence the earlier entry wins, so more specific
// entries come first.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name: "install-package", Type: engine.ActionInstallPackage,
			Tool: execution.Name, Method: execution.MethodInstallPackage,
			Regexp:   regexp.MustCompile(`(?i)\b(?:npm|yarn|pnpm)[ \t]+(?:install|add|i)[ \t]+((?:--?[\w-]+[ \t]+)*@?[\w./-]+(?:@[\w.^~<>=-]+)?)`),
			Strategy: StrategyPackage, Confidence: 0.9, Destructive: true, InCode: true,
		},
		{
			Name: "install-package-prose", Type: engine.ActionInstallPackage,
			Tool: execution.Name, Method: execution.MethodInstallPackage,
			Regexp:   regexp.MustCompile(`(?i)\binstall\s+(?:the\s+)?(?:package|dependency|module)\s+` + quote + `(@?[\w./-]+(?:@[\w.^~-]+)?)` + quote),
			Strategy: StrategyPackage, Confidence: 0.8, Destructive: true,
		},
		{
			Name: "run-script", Type: engine.ActionRunScript,
			Tool: execution.Name, Method: execution.MethodRunScript,
			Regexp:   regexp.MustCompile(`(?i)\b(?:npm|yarn|pnpm)[ \t]+run[ \t]+([\w:.-]+)`),
			Strategy: StrategyScript, Confidence: 0.9, InCode: true,
		},
		{
			Name: "run-script-prose", Type: engine.ActionRunScript,
			Tool: execution.Name, Method: execution.MethodRunScript,
			Regexp:   regexp.MustCompile(`(?i)\brun\s+(?:the\s+)?` + quote + `([\w:.-]+)` + quote + `\s+script\b`),
			Strategy: StrategyScript, Confidence: 0.9,
		},
		{
			Name: "run-command", Type: engine.ActionRunCommand,
			Tool: execution.Name, Method: execution.MethodExecuteCommand,
			Regexp:   regexp.MustCompile("(?i)\\b(?:run|execute)\\s+(?:the\\s+)?(?:command\\s+|shell\\s+command\\s+)?`([^`\\n]+)`"),
			Strategy: StrategyCommand, Confidence: 0.9, Destructive: true,
		},
		{
			Name: "shell-block", Type: engine.ActionRunCommand,
			Tool: execution.Name, Method: execution.MethodExecuteCommand,
			Regexp:   regexp.MustCompile("(?s)```(?:bash|sh|shell|console|zsh)[ \\t]*\\n(.*?)```"),
			Strategy: StrategyShellBlock, Confidence: 0.7, Destructive: true, InCode: true,
		},
		{
			Name: "create-directory", Type: engine.ActionCreateDirectory,
			Tool: filesystem.Name, Method: filesystem.MethodCreateDirectory,
			Regexp:   regexp.MustCompile(`(?i)\b(?:create|make|add)\s+(?:(?:a|an|the|new)\s+)*(?:directory|folder|dir)\s+(?:(?:called|named)\s+)?` + pathName),
			Strategy: StrategyPath, Confidence: 0.85,
		},
		{
			Name: "create-file", Type: engine.ActionCreateFile,
			Tool: filesystem.Name, Method: filesystem.MethodWriteFile,
			Regexp:   regexp.MustCompile(`(?i)\b(?:create|make|add|generate)\s+(?:(?:a|an|the|new)\s+)*(?:file\s+)?(?:(?:called|named)\s+)?` + fileName),
			Strategy: StrategyFileContent, Confidence: 0.9, Destructive: true,
		},
		{
			Name: "write-file", Type: engine.ActionWriteFile,
			Tool: filesystem.Name, Method: filesystem.MethodWriteFile,
			Regexp:   regexp.MustCompile(`(?i)\b(?:write|save|update|overwrite)\s+(?:(?:to|into)\s+)?(?:(?:a|the)\s+)?(?:file\s+)?` + fileName),
			Strategy: StrategyFileContent, Confidence: 0.85, Destructive: true,
		},
		{
			Name: "delete-file", Type: engine.ActionDeleteFile,
			Tool: filesystem.Name, Method: filesystem.MethodDeleteFile,
			Regexp:   regexp.MustCompile(`(?i)\b(?:delete|remove)\s+(?:(?:the|a)\s+)?(?:file\s+)?` + fileName),
			Strategy: StrategyPath, Confidence: 0.85, Destructive: true,
		},
		{
			Name: "read-file", Type: engine.ActionReadFile,
			Tool: filesystem.Name, Method: filesystem.MethodReadFile,
			Regexp:   regexp.MustCompile(`(?i)\b(?:read|open|show|view|display|cat)\s+(?:(?:the|a)\s+)?(?:contents?\s+of\s+(?:the\s+)?)?(?:file\s+)?` + fileName),
			Strategy: StrategyPath, Confidence: 0.8,
		},
		{
			Name: "list-directory", Type: engine.ActionListDirectory,
			Tool: filesystem.Name, Method: filesystem.MethodListDirectory,
			Regexp:   regexp.MustCompile(`(?i)\blist\s+(?:all\s+)?(?:the\s+)?(?:files|contents|entries|directory|folder)(?:\s+(?:in|of|under)\s+(?:the\s+)?(?:directory\s+|folder\s+)?` + pathName + `)?`),
			Strategy: StrategyPathOrDot, Confidence: 0.75,
		},
		{
			Name: "fetch-url", Type: engine.ActionFetchURL,
			Tool: network.Name, Method: network.MethodHTTPRequest,
			Regexp:   regexp.MustCompile(`(?i)\b(?:fetch|download|get|request|curl|open)\s+(?:the\s+)?(?:url\s+|page\s+|endpoint\s+)?<?(https?://[^\s<>` + "`" + `'")]+)`),
			Strategy: StrategyURL, Confidence: 0.8,
		},
		{
			Name: "analyze-code", Type: engine.ActionAnalyzeCode,
			Tool: analysis.Name, Method: analysis.MethodAnalyzeCode,
			Regexp:   regexp.MustCompile(`(?i)\b(?:analy[sz]e|inspect|summari[sz]e)\s+(?:(?:the|a)\s+)?(?:code\s+(?:in\s+)?)?(?:file\s+)?` + fileName),
			Strategy: StrategyPath, Confidence: 0.8,
		},
	}
}
