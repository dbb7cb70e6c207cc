package analysis

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

const maxDependencyScan = 2000

// DependencyReport is returned by getDependencies.
type DependencyReport struct {
	Type            workspace.ProjectType `json:"type"`
	Manifest        string                `json:"manifest"`
	Name            string                `json:"name,omitempty"`
	Dependencies    map[string]string     `json:"dependencies"`
	DevDependencies map[string]string     `json:"devDependencies,omitempty"`
	Unused          []string              `json:"unused"`
	Missing         []string              `json:"missing"`
	FilesScanned    int                   `json:"filesScanned"`
}

// GetDependencies reads the manifest under root and cross-references it with
// the imports observed in the project's source files. Unused lists runtime
// dependencies no file imports; Missing lists imported packages the manifest
// does not declare.
func (t *Tool) GetDependencies(ctx context.Context, root string) (*DependencyReport, error) {
	abs, err := t.path(root)
	if err != nil {
		return nil, err
	}
	man, err := workspace.ReadManifest(abs)
	if errors.Is(err, workspace.ErrNoManifest) {
		return nil, engine.Errorf(engine.KindNotFound, "no project manifest in %s", orDot(root))
	}
	if err != nil {
		return nil, engine.Wrap(engine.KindInvalidInput, MethodGetDependencies, err)
	}

	rep := &DependencyReport{
		Type:            man.Type,
		Manifest:        man.Path,
		Name:            man.Name,
		Dependencies:    man.Dependencies,
		DevDependencies: man.DevDependencies,
		Unused:          []string{},
		Missing:         []string{},
	}
	norm := normalizerFor(man)
	if norm == nil {
		return rep, nil
	}

	used := make(map[string]bool)
	err = workspace.Walk(ctx, abs, workspace.WalkOptions{MaxFiles: maxDependencyScan}, func(fi workspace.FileInfo) error {
		if !norm.accepts(fi.Lang) || fi.Size > t.maxSize {
			return nil
		}
		data, err := os.ReadFile(fi.AbsPath)
		if err != nil {
			return nil
		}
		rep.FilesScanned++
		for _, src := range Summarize(fi.AbsPath, data).ImportSources() {
			if pkg := norm.pkg(src); pkg != "" {
				used[pkg] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, engine.Wrap(engine.KindOf(err), MethodGetDependencies, err)
	}

	for dep := range man.Dependencies {
		if !used[norm.key(dep)] && !norm.implicit(dep) {
			rep.Unused = append(rep.Unused, dep)
		}
	}
	declared := make(map[string]bool)
	for dep := range man.Dependencies {
		declared[norm.key(dep)] = true
	}
	for dep := range man.DevDependencies {
		declared[norm.key(dep)] = true
	}
	for pkg := range used {
		if !declared[pkg] {
			rep.Missing = append(rep.Missing, pkg)
		}
	}
	sort.Strings(rep.Unused)
	sort.Strings(rep.Missing)
	return rep, nil
}

// importNormalizer maps import sources and manifest names onto a shared key.
type importNormalizer struct {
	langs    []workspace.Language
	pkg      func(source string) string // "" = builtin, relative or own module
	key      func(dep string) string
	implicit func(dep string) bool // declared deps never imported directly
}

func (n *importNormalizer) accepts(lang workspace.Language) bool {
	for _, l := range n.langs {
		if l == lang {
			return true
		}
	}
	return false
}

func normalizerFor(man *workspace.Manifest) *importNormalizer {
	switch man.Type {
	case workspace.ProjectTypeNode:
		return &importNormalizer{
			langs: []workspace.Language{workspace.LangJavaScript, workspace.LangTypeScript},
			pkg:   nodePackage,
			key:   func(dep string) string { return dep },
			implicit: func(dep string) bool {
				return strings.HasPrefix(dep, "@types/")
			},
		}
	case workspace.ProjectTypePython:
		return &importNormalizer{
			langs:    []workspace.Language{workspace.LangPython},
			pkg:      pythonPackage,
			key:      pythonKey,
			implicit: func(string) bool { return false },
		}
	case workspace.ProjectTypeGo:
		deps := make([]string, 0, len(man.Dependencies)+len(man.DevDependencies))
		for d := range man.Dependencies {
			deps = append(deps, d)
		}
		for d := range man.DevDependencies {
			deps = append(deps, d)
		}
		// Longest module path first so nested modules win.
		sort.Slice(deps, func(i, j int) bool { return len(deps[i]) > len(deps[j]) })
		return &importNormalizer{
			langs:    []workspace.Language{workspace.LangGo},
			pkg:      func(src string) string { return goModule(src, man.Name, deps) },
			key:      func(dep string) string { return dep },
			implicit: func(string) bool { return false },
		}
	}
	return nil
}

var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "cluster": true, "crypto": true,
	"dgram": true, "dns": true, "events": true, "fs": true, "http": true, "http2": true,
	"https": true, "net": true, "os": true, "path": true, "perf_hooks": true, "process": true,
	"querystring": true, "readline": true, "stream": true, "string_decoder": true, "timers": true,
	"tls": true, "tty": true, "url": true, "util": true, "v8": true, "vm": true, "worker_threads": true,
	"zlib": true, "module": true, "inspector": true, "async_hooks": true,
}

func nodePackage(src string) string {
	if src == "" || strings.HasPrefix(src, ".") || strings.HasPrefix(src, "/") || strings.HasPrefix(src, "node:") {
		return ""
	}
	parts := strings.Split(src, "/")
	name := parts[0]
	if strings.HasPrefix(name, "@") && len(parts) > 1 {
		name += "/" + parts[1]
	}
	if nodeBuiltins[name] {
		return ""
	}
	return name
}

var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true, "collections": true,
	"contextlib": true, "copy": true, "csv": true, "dataclasses": true, "datetime": true,
	"decimal": true, "enum": true, "functools": true, "glob": true, "hashlib": true, "heapq": true,
	"http": true, "importlib": true, "inspect": true, "io": true, "itertools": true, "json": true,
	"logging": true, "math": true, "multiprocessing": true, "os": true, "pathlib": true,
	"pickle": true, "random": true, "re": true, "shutil": true, "signal": true, "socket": true,
	"sqlite3": true, "string": true, "struct": true, "subprocess": true, "sys": true,
	"tempfile": true, "threading": true, "time": true, "traceback": true, "typing": true,
	"unittest": true, "urllib": true, "uuid": true, "warnings": true, "xml": true, "zipfile": true,
	"__future__": true,
}

// pythonAliases maps import names to their distribution names.
var pythonAliases = map[string]string{
	"yaml":     "pyyaml",
	"PIL":      "pillow",
	"sklearn":  "scikit_learn",
	"bs4":      "beautifulsoup4",
	"cv2":      "opencv_python",
	"dotenv":   "python_dotenv",
	"dateutil": "python_dateutil",
}

func pythonPackage(src string) string {
	if src == "" || strings.HasPrefix(src, ".") {
		return ""
	}
	top, _, _ := strings.Cut(src, ".")
	if pythonStdlib[top] {
		return ""
	}
	if alias, ok := pythonAliases[top]; ok {
		return alias
	}
	return pythonKey(top)
}

func pythonKey(dep string) string {
	return strings.ReplaceAll(strings.ToLower(dep), "-", "_")
}

// goModule maps an import path to the declared module providing it.
// Standard library and own-module packages yield "".
func goModule(src, self string, deps []string) string {
	first, _, _ := strings.Cut(src, "/")
	if !strings.Contains(first, ".") {
		return ""
	}
	if self != "" && (src == self || strings.HasPrefix(src, self+"/")) {
		return ""
	}
	for _, d := range deps {
		if src == d || strings.HasPrefix(src, d+"/") {
			return d
		}
	}
	return src
}

func orDot(p string) string {
	if p == "" {
		return "."
	}
	return p
}
