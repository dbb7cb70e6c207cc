package workspace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

// Manifest is the dependency view of a project manifest.
type Manifest struct {
	Type            ProjectType       `json:"type"`
	Path            string            `json:"path"`
	Name            string            `json:"name,omitempty"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Scripts         map[string]string `json:"scripts,omitempty"`
}

// ErrNoManifest is returned when a directory has no recognized manifest.
var ErrNoManifest = fmt.Errorf("no project manifest found")

// ReadManifest parses the first manifest found in root.
func ReadManifest(root string) (*Manifest, error) {
	for _, m := range manifestFiles {
		path := filepath.Join(root, m.name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		man, err := parseManifest(m.name, data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", m.name, err)
		}
		man.Type = m.typ
		man.Path = path
		return man, nil
	}
	return nil, ErrNoManifest
}

func parseManifest(name string, data []byte) (*Manifest, error) {
	switch name {
	case "package.json":
		return parsePackageJSON(data)
	case "go.mod":
		return parseGoMod(data)
	case "requirements.txt":
		return parseRequirements(data), nil
	case "pyproject.toml":
		return parsePyProject(data)
	case "Cargo.toml":
		return parseCargo(data)
	}
	return nil, fmt.Errorf("unsupported manifest %s", name)
}

func parsePackageJSON(data []byte) (*Manifest, error) {
	var pkg struct {
		Name            string            `json:"name"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
		Scripts         map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &Manifest{
		Name:            pkg.Name,
		Dependencies:    nonNil(pkg.Dependencies),
		DevDependencies: pkg.DevDependencies,
		Scripts:         pkg.Scripts,
	}, nil
}

func parseGoMod(data []byte) (*Manifest, error) {
	f, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return nil, err
	}
	m := &Manifest{Dependencies: make(map[string]string)}
	if f.Module != nil {
		m.Name = f.Module.Mod.Path
	}
	for _, req := range f.Require {
		if req.Indirect {
			if m.DevDependencies == nil {
				m.DevDependencies = make(map[string]string)
			}
			m.DevDependencies[req.Mod.Path] = req.Mod.Version
			continue
		}
		m.Dependencies[req.Mod.Path] = req.Mod.Version
	}
	return m, nil
}

var requirementPattern = regexp.MustCompile(`^([A-Za-z0-9_.\-\[\]]+)\s*([=<>!~]=?.*)?$`)

func parseRequirements(data []byte) *Manifest {
	m := &Manifest{Dependencies: make(map[string]string)}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if match := requirementPattern.FindStringSubmatch(line); match != nil {
			m.Dependencies[match[1]] = strings.TrimSpace(match[2])
		}
	}
	return m
}

func parsePyProject(data []byte) (*Manifest, error) {
	var doc struct {
		Project struct {
			Name                 string              `toml:"name"`
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
			Scripts              map[string]string   `toml:"scripts"`
		} `toml:"project"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	m := &Manifest{
		Name:         doc.Project.Name,
		Dependencies: parseRequirements([]byte(strings.Join(doc.Project.Dependencies, "\n"))).Dependencies,
		Scripts:      doc.Project.Scripts,
	}
	for _, deps := range doc.Project.OptionalDependencies {
		extra := parseRequirements([]byte(strings.Join(deps, "\n"))).Dependencies
		if len(extra) > 0 && m.DevDependencies == nil {
			m.DevDependencies = make(map[string]string)
		}
		for k, v := range extra {
			m.DevDependencies[k] = v
		}
	}
	return m, nil
}

func parseCargo(data []byte) (*Manifest, error) {
	var doc struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
		Dependencies    map[string]any `toml:"dependencies"`
		DevDependencies map[string]any `toml:"dev-dependencies"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &Manifest{
		Name:            doc.Package.Name,
		Dependencies:    cargoVersions(doc.Dependencies),
		DevDependencies: cargoVersions(doc.DevDependencies),
	}, nil
}

func cargoVersions(deps map[string]any) map[string]string {
	out := make(map[string]string, len(deps))
	for name, v := range deps {
		switch val := v.(type) {
		case string:
			out[name] = val
		case map[string]any:
			if ver, ok := val["version"].(string); ok {
				out[name] = ver
			} else {
				out[name] = ""
			}
		}
	}
	return out
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
