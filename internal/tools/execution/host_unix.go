//go:build !windows
// +build !windows

package execution

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// HostRunner runs commands directly on the host machine. Each command gets
// its own process group so timeouts and output overruns kill every child.
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

	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	// Create a new process group so we can kill all child processes on cancel
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = time.Second

	kill := make(chan struct{}, 1)
	out := &cappedOutput{limit: spec.MaxOutput, onExceed: func() {
		select {
		case kill <- struct{}{}:
		default:
		}
	}}
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = out.writer(&stdoutBuf, spec.Stdout)
	cmd.Stderr = out.writer(&stderrBuf, spec.Stderr)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{Code: -1}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
		case <-kill:
		case <-done:
			return
		}
		// Kill the entire process group (negative PID)
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}()

	waitErr := cmd.Wait()
	close(done)

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
	return "/bin/sh", []string{"-c", command}
}
