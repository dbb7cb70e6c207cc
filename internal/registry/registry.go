// Package registry is the facade that validates, schedules, times out and
// records every tool invocation.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/logging"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxConcurrent = 3
	DefaultHistorySize   = 1000
	minHistorySize       = 500
)

// Tool is a named collection of methods.
type Tool interface {
	Invoke(ctx context.Context, method string, params []string) (any, error)
}

// Checker is implemented by tools that cross-check an action against their
// own policy (validation stage 5). Returned warnings are non-fatal.
type Checker interface {
	Check(method string, params []string) (warnings []string, err error)
}

// Canceler is implemented by tools that can abort in-flight work.
type Canceler interface {
	Cancel()
}

type entry struct {
	tool    Tool
	schema  ToolSchema
	methods map[string]*compiledMethod
}

// Options configures a Registry.
type Options struct {
	Timeout       time.Duration
	MaxConcurrent int
	HistorySize   int
	Logger        *logging.Logger
	Hooks         engine.Hook
}

// Registry holds tools and their method schemas.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry

	timeout       time.Duration
	maxConcurrent int
	sem           *semaphore.Weighted
	logger        *logging.Logger
	hooks         engine.Hook

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc

	history *engine.Ring[engine.ExecutionRecord]
	metrics *Metrics
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.HistorySize < minHistorySize {
		opts.HistorySize = minHistorySize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Hooks == nil {
		opts.Hooks = engine.NopHook{}
	}
	return &Registry{
		tools:         make(map[string]*entry),
		timeout:       opts.Timeout,
		maxConcurrent: opts.MaxConcurrent,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:        opts.Logger,
		hooks:         opts.Hooks,
		inflight:      make(map[string]context.CancelFunc),
		history:       engine.NewRing[engine.ExecutionRecord](opts.HistorySize),
		metrics:       newMetrics(),
	}
}

// Register adds a tool under name with its method schemas.
func (r *Registry) Register(name string, tool Tool, schema ToolSchema) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool == nil {
		return fmt.Errorf("tool %s: implementation is nil", name)
	}
	if len(schema.Methods) == 0 {
		return fmt.Errorf("tool %s: schema declares no methods", name)
	}
	e := &entry{tool: tool, schema: schema, methods: make(map[string]*compiledMethod, len(schema.Methods))}
	if e.schema.Name == "" {
		e.schema.Name = name
	}
	for _, m := range schema.Methods {
		cm, err := compileMethod(m)
		if err != nil {
			return fmt.Errorf("tool %s: %w", name, err)
		}
		e.methods[m.Name] = cm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = e
	return nil
}

// Tools returns the registered tool names, sorted.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the schema of a registered tool.
func (r *Registry) Schema(name string) (ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return ToolSchema{}, false
	}
	return e.schema, true
}

// Describe renders every tool method as one line, for prompts.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.Tools() {
		s, _ := r.Schema(name)
		for _, m := range s.Methods {
			params := make([]string, len(m.Params))
			for i, p := range m.Params {
				params[i] = p.Name
				if !p.Required {
					params[i] += "?"
				}
			}
			fmt.Fprintf(&b, "- %s.%s(%s)", name, m.Name, strings.Join(params, ", "))
			if m.Description != "" {
				fmt.Fprintf(&b, ": %s", m.Description)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// ExecOptions overrides per-call execution settings.
type ExecOptions struct {
	Timeout time.Duration
}

// Execute validates and runs one action. Failures are reported in the
// returned record, never as a panic or error.
func (r *Registry) Execute(ctx context.Context, action engine.Action, opts ExecOptions) engine.ExecutionRecord {
	start := time.Now()
	rec := engine.ExecutionRecord{
		ID:        uuid.NewString(),
		ActionID:  action.ID,
		Tool:      action.Tool,
		Method:    action.Method,
		Timestamp: start,
	}

	v := r.Validate(action)
	rec.Warnings = v.Warnings
	if !v.Valid {
		rec.Error = v.Err("validate").Error()
		rec.Kind = v.Kind
		return r.finish(ctx, action, rec, start)
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		rec.Error = fmt.Sprintf("not admitted: %v", err)
		rec.Kind = engine.KindOf(err)
		return r.finish(ctx, action, rec, time.Now())
	}
	defer r.sem.Release(1)
	// Duration covers the run only, not the wait for a slot.
	start = time.Now()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r.track(rec.ID, cancel)
	defer r.untrack(rec.ID)

	e, _ := r.lookup(action.Tool)
	r.hooks.OnToolStart(ctx, engine.ToolEvent{Action: action})

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: engine.Errorf(engine.KindInternal, "tool panicked: %v", p)}
			}
		}()
		res, err := e.tool.Invoke(execCtx, action.Method, action.Params)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		switch {
		case out.err == nil:
			rec.Success = true
			rec.Result = out.result
		case execCtx.Err() != nil:
			// The tool noticed the deadline before we did.
			rec.Error, rec.Kind = interruption(ctx, execCtx, timeout)
		default:
			rec.Error = out.err.Error()
			rec.Kind = engine.KindOf(out.err)
		}
	case <-execCtx.Done():
		if c, ok := e.tool.(Canceler); ok {
			c.Cancel()
		}
		rec.Error, rec.Kind = interruption(ctx, execCtx, timeout)
	}
	return r.finish(ctx, action, rec, start)
}

func interruption(parent, execCtx context.Context, timeout time.Duration) (string, engine.Kind) {
	if parent.Err() == nil && execCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("timeout after %s", timeout), engine.KindTimeout
	}
	return "cancelled", engine.KindInternal
}

func (r *Registry) finish(ctx context.Context, action engine.Action, rec engine.ExecutionRecord, start time.Time) engine.ExecutionRecord {
	rec.Duration = time.Since(start)
	r.history.Push(rec)
	r.metrics.observe(rec)
	r.logger.Execution(rec)
	r.hooks.OnToolComplete(ctx, engine.ToolEvent{Action: action, Record: &rec})
	return rec
}

func (r *Registry) track(id string, cancel context.CancelFunc) {
	r.inflightMu.Lock()
	r.inflight[id] = cancel
	r.inflightMu.Unlock()
}

func (r *Registry) untrack(id string) {
	r.inflightMu.Lock()
	delete(r.inflight, id)
	r.inflightMu.Unlock()
}

// ExecuteSequence runs actions in order. With continueOnError=false it stops
// after the first failed record.
func (r *Registry) ExecuteSequence(ctx context.Context, actions []engine.Action, continueOnError bool) []engine.ExecutionRecord {
	records := make([]engine.ExecutionRecord, 0, len(actions))
	for _, a := range actions {
		if ctx.Err() != nil {
			break
		}
		rec := r.Execute(ctx, a, ExecOptions{})
		records = append(records, rec)
		if !rec.Success && !continueOnError {
			break
		}
	}
	return records
}

// ExecuteParallel runs a batch of independent actions with at most
// maxConcurrency in flight. Records are returned in input order.
func (r *Registry) ExecuteParallel(ctx context.Context, actions []engine.Action, maxConcurrency int) []engine.ExecutionRecord {
	if maxConcurrency <= 0 {
		maxConcurrency = r.maxConcurrent
	}
	records := make([]engine.ExecutionRecord, len(actions))

	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for i, a := range actions {
		g.Go(func() error {
			records[i] = r.Execute(ctx, a, ExecOptions{})
			return nil
		})
	}
	_ = g.Wait()
	return records
}

// StopAll cancels every in-flight action. It is idempotent.
func (r *Registry) StopAll() {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	for id, cancel := range r.inflight {
		cancel()
		delete(r.inflight, id)
	}
}

// Status is a point-in-time view of the registry.
type Status struct {
	Tools         []string `json:"tools"`
	InFlight      int      `json:"inFlight"`
	MaxConcurrent int      `json:"maxConcurrent"`
	Timeout       string   `json:"timeout"`
	HistorySize   int      `json:"historySize"`
	Stats         Stats    `json:"stats"`
}

// Status returns the current registry status.
func (r *Registry) Status() Status {
	r.inflightMu.Lock()
	inflight := len(r.inflight)
	r.inflightMu.Unlock()
	return Status{
		Tools:         r.Tools(),
		InFlight:      inflight,
		MaxConcurrent: r.maxConcurrent,
		Timeout:       r.timeout.String(),
		HistorySize:   r.history.Len(),
		Stats:         r.metrics.Snapshot(),
	}
}

// History returns up to n most recent execution records, oldest first.
func (r *Registry) History(n int) []engine.ExecutionRecord {
	return r.history.Last(n)
}

// Metrics exposes the registry metrics.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}
