package execution

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// Spec describes one process to run.
type Spec struct {
	Dir       string
	Name      string
	Args      []string
	Env       []string // appended to the current environment
	Timeout   time.Duration
	MaxOutput int64     // combined stdout+stderr cap; 0 = unlimited
	Stdout    io.Writer // optional live copy of stdout
	Stderr    io.Writer // optional live copy of stderr
}

// Result captures output of a command.
type Result struct {
	Stdout         string
	Stderr         string
	Code           int
	TimedOut       bool
	OutputExceeded bool
	Duration       time.Duration
}

// Runner defines the interface for running commands.
// This allows mocking process execution for testing.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// cappedOutput collects stdout and stderr under one shared byte budget.
// The first write past the budget calls onExceed once.
type cappedOutput struct {
	mu       sync.Mutex
	limit    int64
	written  int64
	exceeded bool
	onExceed func()
}

func (c *cappedOutput) writer(buf *bytes.Buffer, live io.Writer) io.Writer {
	return &cappedWriter{parent: c, buf: buf, live: live}
}

func (c *cappedOutput) Exceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exceeded
}

type cappedWriter struct {
	parent *cappedOutput
	buf    *bytes.Buffer
	live   io.Writer
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	c := w.parent
	c.mu.Lock()
	if c.exceeded {
		c.mu.Unlock()
		return len(p), nil
	}
	keep := p
	trip := false
	if c.limit > 0 && c.written+int64(len(p)) > c.limit {
		keep = p[:c.limit-c.written]
		c.exceeded = true
		trip = true
	}
	c.written += int64(len(keep))
	w.buf.Write(keep)
	c.mu.Unlock()

	if w.live != nil && len(keep) > 0 {
		_, _ = w.live.Write(keep)
	}
	if trip && c.onExceed != nil {
		c.onExceed()
	}
	// Report the full length so the child does not see a short write.
	return len(p), nil
}
