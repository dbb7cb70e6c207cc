// Package execution implements the exec tool: shell commands, package
// installs and project scripts gated by a command policy, a timeout and an
// output cap.
package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/registry"
)

// Name is the tool name actions refer to.
const Name = "exec"

const (
	MethodExecuteCommand = "executeCommand"
	MethodInstallPackage = "installPackage"
	MethodRunScript      = "runScript"
	MethodSpawnProcess   = "spawnProcess"
	MethodCheckCommand   = "checkCommand"
	MethodGetEnvironment = "getEnvironment"
)

// OutputFunc receives live output lines from spawnProcess. stream is
// "stdout" or "stderr".
type OutputFunc func(stream, line string)

// Options configures a Tool.
type Options struct {
	Dir    string // working directory; defaults to cwd
	Policy Policy
	Runner Runner // defaults to HostRunner
	Output OutputFunc
	// Resolve maps a requested working directory to an absolute path,
	// enforcing the filesystem allow-list. When nil, cwd must stay under Dir.
	Resolve func(path string) (string, error)
}

// Tool is the exec tool.
type Tool struct {
	dir    string
	gate   *gate
	runner  Runner
	output  OutputFunc
	resolve func(string) (string, error)

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New creates an exec tool.
func New(opts Options) *Tool {
	dir := opts.Dir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	runner := opts.Runner
	if runner == nil {
		runner = NewHostRunner()
	}
	return &Tool{
		dir:     dir,
		gate:    newGate(opts.Policy),
		runner:  runner,
		output:  opts.Output,
		resolve: opts.Resolve,
		running: make(map[string]context.CancelFunc),
	}
}

// Schema describes the tool's methods.
func Schema() registry.ToolSchema {
	command := registry.Param{Name: "command", Type: registry.TypeString, Required: true, Domain: registry.DomainCommand}
	runOpts := registry.Param{Name: "options", Type: registry.TypeObject, Description: `{"cwd","env","timeoutMs"}`}
	return registry.ToolSchema{
		Name:        Name,
		Description: "Run shell commands, install packages and run project scripts",
		Methods: []registry.MethodSchema{
			{Name: MethodExecuteCommand, Description: "Run a shell command and capture its output", Params: []registry.Param{command, runOpts}},
			{Name: MethodInstallPackage, Description: "Install a package with the project's package manager", Params: []registry.Param{
				{Name: "package", Type: registry.TypeString, Required: true},
				{Name: "options", Type: registry.TypeObject, Description: `{"dev","version","manager"}`},
			}},
			{Name: MethodRunScript, Description: "Run a script declared in the project manifest", Params: []registry.Param{
				{Name: "name", Type: registry.TypeString, Required: true},
				runOpts,
			}},
			{Name: MethodSpawnProcess, Description: "Run a command streaming its output live", Params: []registry.Param{command, runOpts}},
			{Name: MethodCheckCommand, Description: "Report whether a command is available and allowed", Params: []registry.Param{command}},
			{Name: MethodGetEnvironment, Description: "Describe the host environment"},
		},
	}
}

// RunOptions tunes a single run.
type RunOptions struct {
	Cwd       string            `json:"cwd"`
	Env       map[string]string `json:"env"`
	TimeoutMs int               `json:"timeoutMs"`
}

// CommandResult is returned by every method that runs a process.
type CommandResult struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Check applies the command policy before execution.
func (t *Tool) Check(method string, params []string) ([]string, error) {
	first := ""
	if len(params) > 0 {
		first = params[0]
	}
	switch method {
	case MethodExecuteCommand, MethodSpawnProcess:
		return t.gate.check(first)
	case MethodInstallPackage:
		return nil, validatePackage(first)
	case MethodRunScript:
		return nil, validateScriptName(first)
	}
	return nil, nil
}

// Invoke runs a method.
func (t *Tool) Invoke(ctx context.Context, method string, params []string) (any, error) {
	get := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}
	switch method {
	case MethodExecuteCommand, MethodSpawnProcess, MethodRunScript:
		var opts RunOptions
		if err := registry.ObjectParam(get(1), &opts); err != nil {
			return nil, engine.Wrap(engine.KindInvalidInput, method, err)
		}
		switch method {
		case MethodExecuteCommand:
			return t.ExecuteCommand(ctx, get(0), opts)
		case MethodSpawnProcess:
			return t.SpawnProcess(ctx, get(0), opts)
		default:
			return t.RunScript(ctx, get(0), opts)
		}
	case MethodInstallPackage:
		var opts InstallOptions
		if err := registry.ObjectParam(get(1), &opts); err != nil {
			return nil, engine.Wrap(engine.KindInvalidInput, method, err)
		}
		return t.InstallPackage(ctx, get(0), opts)
	case MethodCheckCommand:
		return t.CheckCommand(get(0)), nil
	case MethodGetEnvironment:
		return t.GetEnvironment(), nil
	}
	return nil, engine.Errorf(engine.KindInvalidInput, "unknown method %s", method)
}

// Cancel kills every running process.
func (t *Tool) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, cancel := range t.running {
		cancel()
		delete(t.running, id)
	}
}

// ExecuteCommand runs command through the platform shell.
func (t *Tool) ExecuteCommand(ctx context.Context, command string, opts RunOptions) (*CommandResult, error) {
	warnings, err := t.gate.check(command)
	if err != nil {
		return nil, err
	}
	name, args := shellCommand(command)
	return t.run(ctx, MethodExecuteCommand, command, name, args, opts, warnings, nil)
}

// SpawnProcess is ExecuteCommand with live line output.
func (t *Tool) SpawnProcess(ctx context.Context, command string, opts RunOptions) (*CommandResult, error) {
	warnings, err := t.gate.check(command)
	if err != nil {
		return nil, err
	}
	name, args := shellCommand(command)
	return t.run(ctx, MethodSpawnProcess, command, name, args, opts, warnings, t.output)
}

func (t *Tool) run(ctx context.Context, op, display, name string, args []string, opts RunOptions, warnings []string, live OutputFunc) (*CommandResult, error) {
	timeout := t.gate.timeout
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}
	dir, err := t.workDir(opts.Cwd)
	if err != nil {
		return nil, err
	}
	var env []string
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	spec := Spec{Dir: dir, Name: name, Args: args, Env: env, Timeout: timeout, MaxOutput: t.gate.maxOut}
	var stdoutLines, stderrLines *lineWriter
	if live != nil {
		stdoutLines = &lineWriter{emit: func(l string) { live("stdout", l) }}
		stderrLines = &lineWriter{emit: func(l string) { live("stderr", l) }}
		spec.Stdout, spec.Stderr = stdoutLines, stderrLines
	}

	runCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	t.mu.Lock()
	t.running[id] = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.running, id)
		t.mu.Unlock()
		cancel()
	}()

	res, err := t.runner.Run(runCtx, spec)
	if live != nil {
		stdoutLines.Flush()
		stderrLines.Flush()
	}

	out := &CommandResult{
		Command:  display,
		ExitCode: res.Code,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
		Warnings: warnings,
	}
	switch {
	case res.OutputExceeded:
		return out, engine.Errorf(engine.KindTooLarge, "output limit exceeded (%d bytes): %s", t.gate.maxOut, display)
	case res.TimedOut && ctx.Err() != nil:
		return out, ctx.Err()
	case res.TimedOut:
		return out, engine.Errorf(engine.KindTimeout, "timeout after %s: %s", timeout, display)
	case err != nil && res.Code == -1:
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return out, engine.Wrap(engine.KindNotFound, op, err)
		}
		return out, engine.Wrap(engine.KindInternal, op, err)
	case res.Code != 0:
		return out, &engine.Error{Kind: engine.KindInternal, Op: op,
			Reasons: []string{fmt.Sprintf("%s exited with status %d%s", display, res.Code, tail(res.Stderr))}}
	}
	return out, nil
}

// tail formats the last line of stderr for an error message.
func tail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	if i := strings.LastIndexByte(stderr, '\n'); i >= 0 {
		stderr = stderr[i+1:]
	}
	if len(stderr) > 200 {
		stderr = stderr[:200] + "..."
	}
	return ": " + stderr
}

// lineWriter splits a byte stream into lines.
type lineWriter struct {
	mu   sync.Mutex
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

// parseArgs parses a space-separated argument string into a slice of strings.
func parseArgs(argsStr string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(argsStr); i++ {
		char := argsStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if (char == ' ' || char == '\t') && !inQuotes {
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	return args
}

// workDir resolves a requested cwd. Relative paths are taken from the tool's
// directory.
func (t *Tool) workDir(cwd string) (string, error) {
	if cwd == "" {
		return t.dir, nil
	}
	if t.resolve != nil {
		return t.resolve(cwd)
	}
	dir := cwd
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(t.dir, dir)
	}
	dir = filepath.Clean(dir)
	rel, err := filepath.Rel(t.dir, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", engine.Errorf(engine.KindAccessDenied, "working directory %s is outside %s", cwd, t.dir)
	}
	return dir, nil
}
