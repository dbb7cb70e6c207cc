package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

const traceFileName = "trace.db"

// TraceStore is the sqlite trace sidecar of a session.
type TraceStore struct {
	db *sql.DB
}

// OpenTraceStore opens (or creates) the trace database at path.
func OpenTraceStore(path string) (*TraceStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	// One session writes its own trace file.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping trace database: %w", err)
	}

	ts := &TraceStore{db: db}
	if err := ts.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize trace schema: %w", err)
	}
	return ts, nil
}

func (t *TraceStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		ts      INTEGER NOT NULL,
		kind    TEXT NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		ts          INTEGER NOT NULL,
		action_id   TEXT NOT NULL,
		tool        TEXT NOT NULL,
		method      TEXT NOT NULL,
		success     INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error       TEXT,
		kind        TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_executions_tool ON executions(tool, method);
	`
	_, err := t.db.ExecContext(ctx, schema)
	return err
}

// RecordEvent stores a named event with a JSON payload.
func (t *TraceStore) RecordEvent(kind string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal trace payload: %w", err)
	}
	_, err = t.db.Exec(`INSERT INTO events (ts, kind, payload) VALUES (?, ?, ?)`,
		time.Now().UnixMilli(), kind, string(data))
	return err
}

// RecordExecution stores one execution record.
func (t *TraceStore) RecordExecution(rec engine.ExecutionRecord) error {
	success := 0
	if rec.Success {
		success = 1
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := t.db.Exec(`INSERT INTO executions (ts, action_id, tool, method, success, duration_ms, error, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UnixMilli(), rec.ActionID, rec.Tool, rec.Method, success, rec.Duration.Milliseconds(), rec.Error, string(rec.Kind))
	return err
}

// TraceSummary aggregates executions per tool method.
type TraceSummary struct {
	Tool      string
	Method    string
	Count     int
	Failures  int
	AvgMillis float64
}

// Summary returns per tool+method aggregates, ordered by tool and method.
func (t *TraceStore) Summary(ctx context.Context) ([]TraceSummary, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT tool, method, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), AVG(duration_ms)
		FROM executions GROUP BY tool, method ORDER BY tool, method`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceSummary
	for rows.Next() {
		var s TraceSummary
		if err := rows.Scan(&s.Tool, &s.Method, &s.Count, &s.Failures, &s.AvgMillis); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EventCount returns the number of stored events of kind ("" for all).
func (t *TraceStore) EventCount(ctx context.Context, kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE kind = ?`, kind).Scan(&n)
	}
	return n, err
}

// Close closes the database.
func (t *TraceStore) Close() error {
	return t.db.Close()
}

// Trace returns the sidecar store, or nil when tracing is off.
func (l *Logger) Trace() *TraceStore {
	return l.trace
}
