package contextbuilder

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/agentcli/internal/tools/analysis"
	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

// FileDescriptor is one scanned file.
type FileDescriptor struct {
	Path       string             `json:"path"`
	Size       int64              `json:"size"`
	Modified   time.Time          `json:"modified"`
	Type       workspace.Language `json:"type,omitempty"`
	Importance int                `json:"importance"`
	order      int                // discovery order, for fifo retention
}

// FileSystem is the fileSystem section.
type FileSystem struct {
	Root       string           `json:"root"`
	TotalFiles int              `json:"totalFiles"`
	Files      []FileDescriptor `json:"files"`
	Recent     []FileDescriptor `json:"recent"`
}

// Dependencies is the dependencies section: the project manifest, if any,
// and the observed imports mapped to the files importing them.
type Dependencies struct {
	Manifest *workspace.Manifest `json:"manifest,omitempty"`
	Imports  map[string][]string `json:"imports,omitempty"`
}

// Turn is one conversation message included in the context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Environment fingerprints the runtime.
type Environment struct {
	OS          string                `json:"os"`
	Arch        string                `json:"arch"`
	GoVersion   string                `json:"goVersion"`
	Shell       string                `json:"shell,omitempty"`
	Cwd         string                `json:"cwd"`
	ProjectType workspace.ProjectType `json:"projectType"`
}

// Snapshot is a bounded summary of the working directory.
type Snapshot struct {
	CreatedAt     time.Time           `json:"createdAt"`
	FileSystem    FileSystem          `json:"fileSystem"`
	CodeStructure []*analysis.Summary `json:"codeStructure"`
	Dependencies  Dependencies        `json:"dependencies"`
	Conversation  []Turn              `json:"conversation,omitempty"`
	Environment   Environment         `json:"environment"`
	Retention     Retention           `json:"retention,omitempty"`
	Trimmed       bool                `json:"trimmed,omitempty"`
}

// Size returns the serialized size in bytes.
func (s *Snapshot) Size() int {
	data, err := json.Marshal(s)
	if err != nil {
		return 0
	}
	return len(data)
}

// Render formats the snapshot as prompt text.
func (s *Snapshot) Render() string {
	var b strings.Builder
	env := s.Environment
	fmt.Fprintf(&b, "## Environment\n- OS: %s/%s\n- Go: %s\n- Working directory: %s\n- Project type: %s\n",
		env.OS, env.Arch, env.GoVersion, env.Cwd, env.ProjectType)
	if env.Shell != "" {
		fmt.Fprintf(&b, "- Shell: %s\n", env.Shell)
	}

	fmt.Fprintf(&b, "\n## Files (%d of %d)\n", len(s.FileSystem.Files), s.FileSystem.TotalFiles)
	for _, f := range s.FileSystem.Files {
		fmt.Fprintf(&b, "- %s (%d bytes)\n", f.Path, f.Size)
	}
	if len(s.FileSystem.Recent) > 0 {
		b.WriteString("\n## Recently modified\n")
		for _, f := range s.FileSystem.Recent {
			fmt.Fprintf(&b, "- %s (%s)\n", f.Path, f.Modified.Format(time.RFC3339))
		}
	}

	if len(s.CodeStructure) > 0 {
		b.WriteString("\n## Code structure\n")
		for _, cs := range s.CodeStructure {
			fmt.Fprintf(&b, "### %s\n", cs.Path)
			writeList(&b, "imports", cs.ImportSources())
			writeList(&b, "exports", cs.Exports)
			writeList(&b, "functions", cs.Functions)
			writeList(&b, "types", cs.Classes)
		}
	}

	if m := s.Dependencies.Manifest; m != nil {
		fmt.Fprintf(&b, "\n## Dependencies (%s)\n", m.Type)
		for _, name := range sortedKeys(m.Dependencies) {
			fmt.Fprintf(&b, "- %s %s\n", name, m.Dependencies[name])
		}
		for _, name := range sortedKeys(m.DevDependencies) {
			fmt.Fprintf(&b, "- %s %s (dev)\n", name, m.DevDependencies[name])
		}
	}

	if len(s.Conversation) > 0 {
		b.WriteString("\n## Recent conversation\n")
		for _, t := range s.Conversation {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}
