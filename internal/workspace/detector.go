package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType represents the type of project.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

// manifestFiles maps manifest names to project types, in detection order.
var manifestFiles = []struct {
	name string
	typ  ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

// IsWellKnownRootFile reports whether name is a manifest, README or common
// entry-point file.
func IsWellKnownRootFile(name string) bool {
	for _, m := range manifestFiles {
		if name == m.name {
			return true
		}
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "readme") {
		return true
	}
	switch lower {
	case "main.go", "index.js", "index.ts", "main.py", "app.py", "__main__.py",
		"main.rs", "lib.rs", "server.js", "app.js", "makefile", "dockerfile":
		return true
	}
	return false
}

// DetectProjectType detects the project type using manifest-first detection with extension fallback.
func DetectProjectType(repoRoot string) ProjectType {
	for _, m := range manifestFiles {
		if _, err := os.Stat(filepath.Join(repoRoot, m.name)); err == nil {
			return m.typ
		}
	}

	entries, err := os.ReadDir(repoRoot)
	if err != nil {
		return ProjectTypeUnknown
	}

	counts := make(map[ProjectType]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch DetectLanguage(entry.Name()) {
		case LangGo:
			counts[ProjectTypeGo]++
		case LangTypeScript, LangJavaScript:
			counts[ProjectTypeNode]++
		case LangPython:
			counts[ProjectTypePython]++
		case LangRust:
			counts[ProjectTypeRust]++
		}
	}

	detected, maxCount := ProjectTypeUnknown, 0
	for _, typ := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[typ] > maxCount {
			detected, maxCount = typ, counts[typ]
		}
	}

	// Only trust the fallback with a reasonable number of files.
	if maxCount >= 3 {
		return detected
	}
	return ProjectTypeUnknown
}

// GetBuildCommand returns the build command for a project type.
func GetBuildCommand(projectType ProjectType) (string, []string) {
	switch projectType {
	case ProjectTypeGo:
		return "go", []string{"build", "./..."}
	case ProjectTypeNode:
		return "npm", []string{"run", "build"}
	case ProjectTypeRust:
		return "cargo", []string{"build"}
	default:
		return "", nil
	}
}

// GetTestCommand returns the test command for a project type.
func GetTestCommand(projectType ProjectType) (string, []string) {
	switch projectType {
	case ProjectTypeGo:
		return "go", []string{"test", "./..."}
	case ProjectTypeNode:
		return "npm", []string{"test"}
	case ProjectTypePython:
		return "pytest", []string{}
	case ProjectTypeRust:
		return "cargo", []string{"test"}
	default:
		return "", nil
	}
}

// GetLintCommand returns the lint command for a project type.
func GetLintCommand(projectType ProjectType) (string, []string) {
	switch projectType {
	case ProjectTypeGo:
		return "gofmt", []string{"-l", "."}
	case ProjectTypeNode:
		return "npm", []string{"run", "lint"}
	case ProjectTypePython:
		return "ruff", []string{"check", "."}
	case ProjectTypeRust:
		return "cargo", []string{"clippy", "--", "-D", "warnings"}
	default:
		return "", nil
	}
}

// GetInstallCommand returns the package-manager invocation that installs pkg.
// version may be empty; dev marks a development dependency.
func GetInstallCommand(projectType ProjectType, pkg, version string, dev bool) (string, []string) {
	switch projectType {
	case ProjectTypeGo:
		target := pkg
		if version != "" {
			target += "@" + version
		}
		return "go", []string{"get", target}
	case ProjectTypePython:
		target := pkg
		if version != "" {
			target += "==" + version
		}
		return "pip", []string{"install", target}
	case ProjectTypeRust:
		args := []string{"add", pkg}
		if version != "" {
			args[1] = pkg + "@" + version
		}
		if dev {
			args = append(args, "--dev")
		}
		return "cargo", args
	default:
		target := pkg
		if version != "" {
			target += "@" + version
		}
		args := []string{"install", target}
		if dev {
			args = append(args, "--save-dev")
		}
		return "npm", args
	}
}
