package execution

import (
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

// CommandCheck is returned by checkCommand.
type CommandCheck struct {
	Command   string   `json:"command"`
	Heads     []string `json:"heads"`
	Available bool     `json:"available"`
	Path      string   `json:"path,omitempty"`
	Allowed   bool     `json:"allowed"`
	Reason    string   `json:"reason,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// CheckCommand reports whether command would pass the policy and whether its
// first executable resolves on PATH. It never runs anything.
func (t *Tool) CheckCommand(command string) *CommandCheck {
	out := &CommandCheck{Command: command, Heads: HeadWords(command)}
	warnings, err := t.gate.check(command)
	out.Allowed = err == nil
	out.Warnings = warnings
	if err != nil {
		out.Reason = err.Error()
		if engine.IsKind(err, engine.KindInvalidInput) {
			return out
		}
	}
	if len(out.Heads) > 0 {
		if p, err := exec.LookPath(out.Heads[0]); err == nil {
			out.Available = true
			out.Path = p
		}
	}
	return out
}

// Environment is returned by getEnvironment.
type Environment struct {
	OS          string            `json:"os"`
	Arch        string            `json:"arch"`
	Shell       string            `json:"shell"`
	GoVersion   string            `json:"goVersion"`
	NumCPU      int               `json:"numCpu"`
	Cwd         string            `json:"cwd"`
	Hostname    string            `json:"hostname,omitempty"`
	ProjectType string            `json:"projectType"`
	Env         map[string]string `json:"env"`
}

var sensitiveEnv = regexp.MustCompile(`(?i)(key|secret|token|passw|credential|auth)`)

// GetEnvironment describes the host. Variables whose names look sensitive
// are masked.
func (t *Tool) GetEnvironment() *Environment {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if sensitiveEnv.MatchString(name) {
			value = "[REDACTED]"
		}
		env[name] = value
	}
	host, _ := os.Hostname()
	shell := os.Getenv("SHELL")
	if shell == "" && runtime.GOOS == "windows" {
		shell = os.Getenv("COMSPEC")
	}
	return &Environment{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		Shell:       shell,
		GoVersion:   runtime.Version(),
		NumCPU:      runtime.NumCPU(),
		Cwd:         t.dir,
		Hostname:    host,
		ProjectType: string(workspace.DetectProjectType(t.dir)),
		Env:         env,
	}
}
