// Package tools assembles the built-in tools into a registry.
package tools

import (
	"fmt"
	"os"

	"github.com/ChamsBouzaiene/agentcli/internal/registry"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/analysis"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/execution"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/agentcli/internal/tools/network"
)

// ToolSet specifies which tools to include in the registry.
type ToolSet struct {
	Filesystem bool // readFile, writeFile, listDirectory, ...
	Exec       bool // executeCommand, installPackage, runScript, ...
	Network    bool // httpRequest, downloadFile, checkUrl
	Analysis   bool // analyzeCode, findPattern, getDependencies
}

// AllTools enables every built-in tool.
func AllTools() ToolSet {
	return ToolSet{Filesystem: true, Exec: true, Network: true, Analysis: true}
}

// Options configures the built-in tools.
type Options struct {
	Dir        string // working directory; defaults to cwd
	Set        ToolSet
	Filesystem filesystem.Policy
	Exec       execution.Policy
	Network    network.Policy
	// ExecOutput receives live spawnProcess output lines.
	ExecOutput execution.OutputFunc
	Registry   registry.Options
}

// NewDefaultRegistry creates a registry holding the tools enabled in opts.Set.
// Network downloads and analysis paths go through the filesystem allow-list
// even when the filesystem tool itself is not registered.
func NewDefaultRegistry(opts Options) (*registry.Registry, error) {
	reg := registry.New(opts.Registry)

	fsPolicy := opts.Filesystem
	if len(fsPolicy.AllowedRoots) == 0 && opts.Dir != "" {
		fsPolicy.AllowedRoots = []string{opts.Dir, os.TempDir()}
	}
	fs := filesystem.New(filesystem.Options{BaseDir: opts.Dir, Policy: fsPolicy})

	type tool struct {
		enabled bool
		name    string
		impl    registry.Tool
		schema  registry.ToolSchema
	}
	all := []tool{
		{opts.Set.Filesystem, filesystem.Name, fs, filesystem.Schema()},
		{opts.Set.Exec, execution.Name, execution.New(execution.Options{
			Dir:     opts.Dir,
			Policy:  opts.Exec,
			Output:  opts.ExecOutput,
			Resolve: fs.ResolveDir,
		}), execution.Schema()},
		{opts.Set.Network, network.Name, network.New(network.Options{
			Policy:  opts.Network,
			Resolve: fs.ResolvePath,
		}), network.Schema()},
		{opts.Set.Analysis, analysis.Name, analysis.New(analysis.Options{
			BaseDir: opts.Dir,
			Resolve: fs.ResolvePath,
		}), analysis.Schema()},
	}
	for _, t := range all {
		if !t.enabled {
			continue
		}
		if err := reg.Register(t.name, t.impl, t.schema); err != nil {
			return nil, fmt.Errorf("failed to register %s tool: %w", t.name, err)
		}
	}
	return reg, nil
}
