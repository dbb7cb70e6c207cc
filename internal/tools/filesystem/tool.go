// Package filesystem implements the filesystem tool: reads, writes, listings,
// copies, moves, deletes and searches confined to allow-listed roots.
package filesystem

import (
	"context"
	"os"
	"strconv"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/registry"
)

// Name is the tool name actions refer to.
const Name = "filesystem"

const (
	MethodReadFile        = "readFile"
	MethodWriteFile       = "writeFile"
	MethodCreateFile      = "createFile"
	MethodDeleteFile      = "deleteFile"
	MethodCreateDirectory = "createDirectory"
	MethodListDirectory   = "listDirectory"
	MethodCopyFile        = "copyFile"
	MethodMoveFile        = "moveFile"
	MethodGetStats        = "getStats"
	MethodSearchFiles     = "searchFiles"
)

// Options configures a Tool.
type Options struct {
	FS      FS     // defaults to OS
	BaseDir string // relative paths resolve against it; defaults to cwd
	Policy  Policy
}

// Tool is the filesystem tool.
type Tool struct {
	fs    FS
	base  string
	guard *guard
}

// New creates a filesystem tool. A zero Policy is replaced by DefaultPolicy.
func New(opts Options) *Tool {
	fsys := opts.FS
	if fsys == nil {
		fsys = OS
	}
	base := opts.BaseDir
	if base == "" {
		base, _ = os.Getwd()
	}
	policy := opts.Policy
	if len(policy.AllowedRoots) == 0 {
		def := DefaultPolicy()
		policy.AllowedRoots = def.AllowedRoots
		if policy.BlockedExtensions == nil {
			policy.BlockedExtensions = def.BlockedExtensions
		}
	}
	if policy.BlockedExtensions == nil {
		policy.BlockedExtensions = DefaultBlockedExtensions
	}
	return &Tool{fs: fsys, base: base, guard: newGuard(base, policy)}
}

func pathParam(name, desc string) registry.Param {
	return registry.Param{Name: name, Type: registry.TypeString, Required: true, Domain: registry.DomainPath, Description: desc}
}

// Schema describes the tool's methods.
func Schema() registry.ToolSchema {
	return registry.ToolSchema{
		Name:        Name,
		Description: "Read, write and manage files inside the allowed directories",
		Methods: []registry.MethodSchema{
			{Name: MethodReadFile, Description: "Read a file's content", Params: []registry.Param{
				pathParam("path", "file to read"),
			}},
			{Name: MethodWriteFile, Description: "Write content to a file, creating or overwriting it", Params: []registry.Param{
				pathParam("path", "file to write"),
				{Name: "content", Type: registry.TypeString},
			}},
			{Name: MethodCreateFile, Description: "Create a new file; fails if it exists unless overwrite is true", Params: []registry.Param{
				pathParam("path", "file to create"),
				{Name: "content", Type: registry.TypeString},
				{Name: "overwrite", Type: registry.TypeBoolean},
			}},
			{Name: MethodDeleteFile, Description: "Delete a file, or a directory when recursive is true", Params: []registry.Param{
				pathParam("path", "file to delete"),
				{Name: "recursive", Type: registry.TypeBoolean},
			}},
			{Name: MethodCreateDirectory, Description: "Create a directory and its parents", Params: []registry.Param{
				pathParam("path", "directory to create"),
			}},
			{Name: MethodListDirectory, Description: "List a directory", Params: []registry.Param{
				{Name: "path", Type: registry.TypeString, Domain: registry.DomainPath},
				{Name: "options", Type: registry.TypeObject, Description: `{"recursive","hidden","detailed","maxDepth","limit"}`},
			}},
			{Name: MethodCopyFile, Description: "Copy a file", Params: []registry.Param{
				pathParam("source", "file to copy"),
				pathParam("destination", "target path"),
				{Name: "overwrite", Type: registry.TypeBoolean},
			}},
			{Name: MethodMoveFile, Description: "Move or rename a file", Params: []registry.Param{
				pathParam("source", "file to move"),
				pathParam("destination", "target path"),
				{Name: "overwrite", Type: registry.TypeBoolean},
			}},
			{Name: MethodGetStats, Description: "Describe a path", Params: []registry.Param{
				pathParam("path", "path to inspect"),
			}},
			{Name: MethodSearchFiles, Description: "Find files matching a glob", Params: []registry.Param{
				{Name: "pattern", Type: registry.TypeString, Required: true},
				{Name: "root", Type: registry.TypeString, Domain: registry.DomainPath},
				{Name: "options", Type: registry.TypeObject, Description: `{"hidden","limit"}`},
			}},
		},
	}
}

// Check resolves every path parameter against the policy so violations are
// reported before execution.
func (t *Tool) Check(method string, params []string) ([]string, error) {
	get := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}
	switch method {
	case MethodWriteFile, MethodCreateFile:
		if _, err := t.guard.resolveFile(get(0)); err != nil {
			return nil, err
		}
		return nil, t.guard.checkSize(get(0), int64(len(get(1))))
	case MethodReadFile, MethodDeleteFile:
		_, err := t.guard.resolveFile(get(0))
		return nil, err
	case MethodCreateDirectory, MethodGetStats:
		_, err := t.guard.resolve(get(0))
		return nil, err
	case MethodListDirectory:
		_, err := t.guard.resolve(orDot(get(0)))
		return nil, err
	case MethodSearchFiles:
		_, err := t.guard.resolve(orDot(get(1)))
		return nil, err
	case MethodCopyFile, MethodMoveFile:
		if _, err := t.guard.resolveFile(get(0)); err != nil {
			return nil, err
		}
		_, err := t.guard.resolveFile(get(1))
		return nil, err
	}
	return nil, nil
}

// Invoke runs a method. Every path is re-resolved against the policy.
func (t *Tool) Invoke(ctx context.Context, method string, params []string) (any, error) {
	get := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}
	switch method {
	case MethodReadFile:
		return t.ReadFile(get(0))
	case MethodWriteFile:
		return t.WriteFile(get(0), get(1))
	case MethodCreateFile:
		return t.CreateFile(get(0), get(1), flag(get(2)))
	case MethodDeleteFile:
		return t.DeleteFile(get(0), flag(get(1)))
	case MethodCreateDirectory:
		return t.CreateDirectory(get(0))
	case MethodListDirectory:
		var opts ListOptions
		if err := registry.ObjectParam(get(1), &opts); err != nil {
			return nil, engine.Wrap(engine.KindInvalidInput, method, err)
		}
		return t.ListDirectory(ctx, orDot(get(0)), opts)
	case MethodCopyFile:
		return t.CopyFile(get(0), get(1), flag(get(2)))
	case MethodMoveFile:
		return t.MoveFile(get(0), get(1), flag(get(2)))
	case MethodGetStats:
		return t.GetStats(get(0))
	case MethodSearchFiles:
		var opts SearchOptions
		if err := registry.ObjectParam(get(2), &opts); err != nil {
			return nil, engine.Wrap(engine.KindInvalidInput, method, err)
		}
		return t.SearchFiles(ctx, get(0), orDot(get(1)), opts)
	}
	return nil, engine.Errorf(engine.KindInvalidInput, "unknown method %s", method)
}

func flag(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func orDot(p string) string {
	if p == "" {
		return "."
	}
	return p
}
