//go:build windows
// +build windows

package execution

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// HostRunner runs commands directly on the host machine.
type HostRunner struct{}

// NewHostRunner creates a HostRunner.
func NewHostRunner() *HostRunner {
	return &HostRunner{}
}

// Run starts spec and waits for it, its timeout, its output cap or ctx.
func (r *HostRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	out := &cappedOutput{limit: spec.MaxOutput, onExceed: cancel}
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = out.writer(&stdoutBuf, spec.Stdout)
	cmd.Stderr = out.writer(&stderrBuf, spec.Stderr)

	start := time.Now()
	waitErr := cmd.Run()
	res := Result{
		Stdout:         stdoutBuf.String(),
		Stderr:         stderrBuf.String(),
		Duration:       time.Since(start),
		OutputExceeded: out.Exceeded(),
	}
	if cctx.Err() != nil && !res.OutputExceeded {
		res.TimedOut = true
	}
	if waitErr != nil {
		res.Code = 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Code = exitErr.ExitCode()
		}
		return res, waitErr
	}
	return res, nil
}

func shellCommand(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}
