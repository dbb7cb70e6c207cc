package execution

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

var (
	packagePattern = regexp.MustCompile(`^(@[a-z0-9][\w.-]*/)?[A-Za-z0-9][\w./-]*$`)
	versionPattern = regexp.MustCompile(`^[\w.^~<>=*+-]+$`)
	scriptPattern  = regexp.MustCompile(`^[\w:.-]+$`)
)

// InstallOptions tunes installPackage.
type InstallOptions struct {
	Dev     bool   `json:"dev"`
	Version string `json:"version"`
	Manager string `json:"manager"` // npm, pip, go or cargo; detected when empty
}

var managerTypes = map[string]workspace.ProjectType{
	"npm":   workspace.ProjectTypeNode,
	"pip":   workspace.ProjectTypePython,
	"go":    workspace.ProjectTypeGo,
	"cargo": workspace.ProjectTypeRust,
}

func validatePackage(pkg string) error {
	name, version := splitVersion(pkg)
	if !packagePattern.MatchString(name) || strings.Contains(name, "..") {
		return engine.Errorf(engine.KindInvalidInput, "invalid package identifier %q", pkg)
	}
	if version != "" && !versionPattern.MatchString(version) {
		return engine.Errorf(engine.KindInvalidInput, "invalid version %q", version)
	}
	return nil
}

// splitVersion splits "name@1.2.3" (including scoped "@scope/name@1.2.3").
func splitVersion(pkg string) (string, string) {
	at := strings.LastIndex(pkg, "@")
	if at <= 0 {
		return pkg, ""
	}
	return pkg[:at], pkg[at+1:]
}

func validateScriptName(name string) error {
	if !scriptPattern.MatchString(name) {
		return engine.Errorf(engine.KindInvalidInput, "invalid script name %q", name)
	}
	return nil
}

// InstallPackage installs pkg with the project's package manager. The
// command is run without a shell.
func (t *Tool) InstallPackage(ctx context.Context, pkg string, opts InstallOptions) (*CommandResult, error) {
	if err := validatePackage(pkg); err != nil {
		return nil, err
	}
	name, version := splitVersion(pkg)
	if opts.Version != "" {
		if !versionPattern.MatchString(opts.Version) {
			return nil, engine.Errorf(engine.KindInvalidInput, "invalid version %q", opts.Version)
		}
		version = opts.Version
	}

	projectType := workspace.DetectProjectType(t.dir)
	if opts.Manager != "" {
		typ, ok := managerTypes[opts.Manager]
		if !ok {
			return nil, engine.Errorf(engine.KindInvalidInput, "unsupported package manager %q", opts.Manager)
		}
		projectType = typ
	}
	cmdName, args := workspace.GetInstallCommand(projectType, name, version, opts.Dev)
	return t.runArgv(ctx, MethodInstallPackage, cmdName, args, RunOptions{})
}

// runArgv checks and runs an argv without a shell.
func (t *Tool) runArgv(ctx context.Context, op, name string, args []string, opts RunOptions) (*CommandResult, error) {
	display := strings.TrimSpace(name + " " + strings.Join(args, " "))
	warnings, err := t.gate.check(display)
	if err != nil {
		return nil, err
	}
	return t.run(ctx, op, display, name, args, opts, warnings, nil)
}

// RunScript runs a script declared in the project manifest. Go and Rust
// projects map build, test and lint to their toolchain commands.
func (t *Tool) RunScript(ctx context.Context, script string, opts RunOptions) (*CommandResult, error) {
	if err := validateScriptName(script); err != nil {
		return nil, err
	}
	man, err := workspace.ReadManifest(t.dir)
	if errors.Is(err, workspace.ErrNoManifest) {
		return nil, engine.Errorf(engine.KindNotFound, "no project manifest in %s", t.dir)
	}
	if err != nil {
		return nil, engine.Wrap(engine.KindInvalidInput, MethodRunScript, err)
	}

	name, args := scriptCommand(man, script)
	if name == "" {
		return nil, engine.Errorf(engine.KindNotFound, "script %q not found; available: %s",
			script, strings.Join(availableScripts(man), ", "))
	}
	return t.runArgv(ctx, MethodRunScript, name, args, opts)
}

func scriptCommand(man *workspace.Manifest, script string) (string, []string) {
	if _, ok := man.Scripts[script]; ok {
		switch man.Type {
		case workspace.ProjectTypeNode:
			return "npm", []string{"run", script}
		case workspace.ProjectTypePython:
			return script, nil
		}
	}
	switch script {
	case "build":
		return workspace.GetBuildCommand(man.Type)
	case "test":
		return workspace.GetTestCommand(man.Type)
	case "lint":
		return workspace.GetLintCommand(man.Type)
	}
	return "", nil
}

func availableScripts(man *workspace.Manifest) []string {
	names := make([]string, 0, len(man.Scripts)+3)
	for name := range man.Scripts {
		names = append(names, name)
	}
	for _, builtin := range []string{"build", "test", "lint"} {
		if n, _ := scriptCommand(&workspace.Manifest{Type: man.Type}, builtin); n != "" {
			if _, dup := man.Scripts[builtin]; !dup {
				names = append(names, builtin)
			}
		}
	}
	sort.Strings(names)
	return names
}
