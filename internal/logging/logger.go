// Package logging provides the per-session structured logger and tracer.
//
// Every session writes JSON-per-line entries to <dir>/session.log. A console
// core mirrors warnings (or everything in debug mode) to stderr. Secrets are
// masked before any entry is encoded. When tracing is enabled, events and
// execution records are also stored in a sqlite sidecar (trace.db), and
// EndSession writes a metrics.json sidecar.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

const (
	logFileName     = "session.log"
	metricsFileName = "metrics.json"
	errorRingSize   = 100
)

// Options configures a session logger.
type Options struct {
	Dir       string    // session directory; empty disables the file sink
	SessionID string    // attached to every entry
	Debug     bool      // console at debug level instead of warn
	Trace     bool      // enable the sqlite trace sidecar
	Console   io.Writer // defaults to os.Stderr
	Secrets   []string  // literal values to redact (API keys)
}

// ErrorEntry is a sanitized error kept in the error ring.
type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Caller  string    `json:"caller,omitempty"`
}

// MetricsSource contributes extra data to the metrics sidecar.
type MetricsSource func() any

// Logger is the per-session logger and tracer.
type Logger struct {
	*zap.Logger

	sessionID string
	dir       string
	redactor  *Redactor
	file      *os.File
	trace     *TraceStore

	mu      sync.Mutex
	counts  map[zapcore.Level]int64
	errors  *engine.Ring[ErrorEntry]
	sources map[string]MetricsSource
	started time.Time

	endOnce sync.Once
	endErr  error
}

// New builds a session logger.
func New(opts Options) (*Logger, error) {
	l := &Logger{
		sessionID: opts.SessionID,
		dir:       opts.Dir,
		redactor:  NewRedactor(opts.Secrets...),
		counts:    make(map[zapcore.Level]int64),
		errors:    engine.NewRing[ErrorEntry](errorRingSize),
		sources:   make(map[string]MetricsSource),
		started:   time.Now(),
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	consoleLevel := zapcore.WarnLevel
	if opts.Debug {
		consoleLevel = zapcore.DebugLevel
	}
	cores := []zapcore.Core{
		&redactCore{
			Core: zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(console), consoleLevel),
			r: l.redactor,
		},
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(opts.Dir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open session log: %w", err)
		}
		l.file = f

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, &redactCore{
			Core: zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel),
			r:    l.redactor,
		})

		if opts.Trace {
			ts, err := OpenTraceStore(filepath.Join(opts.Dir, traceFileName))
			if err != nil {
				_ = f.Close()
				return nil, err
			}
			l.trace = ts
		}
	}

	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.Hooks(l.count)).
		With(zap.String("session_id", opts.SessionID))
	return l, nil
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{
		Logger:   zap.NewNop(),
		redactor: NewRedactor(),
		counts:   make(map[zapcore.Level]int64),
		errors:   engine.NewRing[ErrorEntry](errorRingSize),
		sources:  make(map[string]MetricsSource),
		started:  time.Now(),
	}
}

func (l *Logger) count(e zapcore.Entry) error {
	l.mu.Lock()
	l.counts[e.Level]++
	l.mu.Unlock()
	if e.Level >= zapcore.ErrorLevel {
		caller := ""
		if e.Caller.Defined {
			caller = e.Caller.TrimmedPath()
		}
		l.errors.Push(ErrorEntry{Time: e.Time, Message: l.redactor.Redact(e.Message), Caller: caller})
	}
	return nil
}

// Redactor exposes the logger's redactor so callers can register more secrets.
func (l *Logger) Redactor() *Redactor {
	return l.redactor
}

// SessionID returns the id attached to every entry.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Counts returns the number of entries logged per level name.
func (l *Logger) Counts() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.counts))
	for lvl, n := range l.counts {
		out[lvl.String()] = n
	}
	return out
}

// RecentErrors returns the most recent sanitized errors, oldest first.
func (l *Logger) RecentErrors() []ErrorEntry {
	return l.errors.Items()
}

// AddMetricsSource registers extra data for the metrics sidecar.
func (l *Logger) AddMetricsSource(name string, src MetricsSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[name] = src
}

// Event logs a named event and records it in the trace sidecar.
func (l *Logger) Event(kind string, fields ...zap.Field) {
	l.Info(kind, append(fields, zap.String("event", kind))...)
	if l.trace != nil {
		payload := make(map[string]any, len(fields))
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		for k, v := range enc.Fields {
			if s, ok := v.(string); ok {
				v = l.redactor.Redact(s)
			}
			payload[k] = v
		}
		if err := l.trace.RecordEvent(kind, payload); err != nil {
			l.Debug("trace event dropped", zap.Error(err))
		}
	}
}

// Execution logs a terminal execution record.
func (l *Logger) Execution(rec engine.ExecutionRecord) {
	fields := []zap.Field{
		zap.String("action_id", rec.ActionID),
		zap.String("tool", rec.Tool),
		zap.String("method", rec.Method),
		zap.Bool("success", rec.Success),
		zap.Duration("duration", rec.Duration),
	}
	if rec.Success {
		l.Info("tool.complete", fields...)
	} else {
		l.Warn("tool.complete", append(fields, zap.String("error", rec.Error), zap.String("kind", string(rec.Kind)))...)
	}
	if l.trace != nil {
		rec.Error = l.redactor.Redact(rec.Error)
		if err := l.trace.RecordExecution(rec); err != nil {
			l.Debug("trace execution dropped", zap.Error(err))
		}
	}
}

type metricsSnapshot struct {
	SessionID    string           `json:"sessionId"`
	StartedAt    time.Time        `json:"startedAt"`
	EndedAt      time.Time        `json:"endedAt"`
	Reason       string           `json:"reason"`
	LevelCounts  map[string]int64 `json:"levelCounts"`
	RecentErrors []ErrorEntry     `json:"recentErrors"`
	Extra        map[string]any   `json:"extra,omitempty"`
}

// EndSession flushes the log, writes the metrics sidecar and closes every
// file. It is idempotent.
func (l *Logger) EndSession(reason string) error {
	l.endOnce.Do(func() {
		l.Info("session.end", zap.String("reason", reason), zap.Duration("uptime", time.Since(l.started)))
		_ = l.Sync()

		var errs []error
		if l.dir != "" {
			if err := l.writeMetrics(reason); err != nil {
				errs = append(errs, err)
			}
		}
		if l.trace != nil {
			if err := l.trace.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if l.file != nil {
			if err := l.file.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			l.endErr = fmt.Errorf("end session: %v", errs)
		}
	})
	return l.endErr
}

func (l *Logger) writeMetrics(reason string) error {
	l.mu.Lock()
	sources := make(map[string]MetricsSource, len(l.sources))
	for k, v := range l.sources {
		sources[k] = v
	}
	l.mu.Unlock()

	snap := metricsSnapshot{
		SessionID:    l.sessionID,
		StartedAt:    l.started,
		EndedAt:      time.Now(),
		Reason:       reason,
		LevelCounts:  l.Counts(),
		RecentErrors: l.RecentErrors(),
	}
	if len(sources) > 0 {
		snap.Extra = make(map[string]any, len(sources))
		for name, src := range sources {
			snap.Extra[name] = src()
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return os.WriteFile(filepath.Join(l.dir, metricsFileName), data, 0600)
}
