package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are dependency directories, VCS metadata, build
// outputs, logs and OS junk skipped by every scan.
var DefaultIgnorePatterns = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"bower_components",
	"dist",
	"build",
	"out",
	"vendor",
	"__pycache__",
	".venv",
	"venv",
	"*.pyc",
	"coverage",
	".next",
	".nuxt",
	".cache",
	"target",
	"bin",
	"obj",
	".idea",
	".vscode",
	"*.log",
	"logs",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// Ignorer decides whether a path relative to a root should be skipped.
type Ignorer struct {
	matcher *gitignore.GitIgnore
}

// NewIgnorer compiles the default patterns, the root .gitignore and extra
// patterns into one matcher.
func NewIgnorer(root string, extra ...string) *Ignorer {
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(extra)+16)
	patterns = append(patterns, DefaultIgnorePatterns...)
	if lines, err := readGitignoreLines(filepath.Join(root, ".gitignore")); err == nil {
		patterns = append(patterns, lines...)
	}
	patterns = append(patterns, extra...)
	return &Ignorer{matcher: gitignore.CompileIgnoreLines(patterns...)}
}

// Ignored reports whether rel (slash or OS separated) is ignored.
func (i *Ignorer) Ignored(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	return i.matcher.MatchesPath(filepath.ToSlash(rel))
}

// readGitignoreLines reads patterns from a .gitignore file.
func readGitignoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// IsHidden reports whether any segment of rel starts with a dot.
func IsHidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}
