package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestLogger_WritesJSONLinesWithSessionID(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, err := New(Options{Dir: dir, SessionID: "s-1", Console: &console})
	require.NoError(t, err)

	l.Info("prompt", zap.String("text", "hello"))
	l.Debug("hidden from console")
	require.NoError(t, l.EndSession("done"))

	lines := readLines(t, filepath.Join(dir, logFileName))
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "prompt", lines[0]["msg"])
	assert.Equal(t, "s-1", lines[0]["session_id"])
	assert.Equal(t, "hello", lines[0]["text"])
	assert.NotContains(t, console.String(), "hidden from console")
}

func TestLogger_RedactsSecrets(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Dir: dir, SessionID: "s", Console: &bytes.Buffer{}, Secrets: []string{"my-literal-key-123"}})
	require.NoError(t, err)

	l.Info("calling with sk-abcdefghijklmnopqrstuvwx",
		zap.String("key", "my-literal-key-123"),
		zap.String("header", "Bearer abcdefghijkl"))
	require.NoError(t, l.EndSession("done"))

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	s := string(data)
	assert.NotContains(t, s, "sk-abcdefghijklmnopqrstuvwx")
	assert.NotContains(t, s, "my-literal-key-123")
	assert.NotContains(t, s, "abcdefghijkl\"")
	assert.Contains(t, s, redacted)
}

func TestRedactor_KeyValue(t *testing.T) {
	r := NewRedactor()
	assert.Equal(t, "url?api_key="+redacted+"&x=1", r.Redact("url?api_key=abc123&x=1"))
	assert.Equal(t, "plain text", r.Redact("plain text"))
}

func TestLogger_CountsAndErrorRing(t *testing.T) {
	l, err := New(Options{Dir: t.TempDir(), SessionID: "s", Console: &bytes.Buffer{}})
	require.NoError(t, err)

	l.Info("a")
	l.Warn("b")
	l.Error("failed with sk-ant-abcdefghijklmnop")
	l.Error("second")

	counts := l.Counts()
	assert.Equal(t, int64(1), counts["info"])
	assert.Equal(t, int64(1), counts["warn"])
	assert.Equal(t, int64(2), counts["error"])

	errs := l.RecentErrors()
	require.Len(t, errs, 2)
	assert.NotContains(t, errs[0].Message, "sk-ant-abcdefghijklmnop")
	assert.Equal(t, "second", errs[1].Message)
}

func TestLogger_EndSessionIsIdempotentAndWritesMetrics(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Dir: dir, SessionID: "s", Console: &bytes.Buffer{}})
	require.NoError(t, err)
	l.AddMetricsSource("registry", func() any { return map[string]int{"total": 2} })

	require.NoError(t, l.EndSession("shutdown"))
	require.NoError(t, l.EndSession("shutdown"))

	data, err := os.ReadFile(filepath.Join(dir, metricsFileName))
	require.NoError(t, err)
	var snap metricsSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "shutdown", snap.Reason)
	assert.Contains(t, snap.Extra, "registry")
}

func TestLogger_TraceSidecar(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Dir: dir, SessionID: "s", Trace: true, Console: &bytes.Buffer{}})
	require.NoError(t, err)
	require.NotNil(t, l.Trace())

	l.Event("prompt", zap.String("text", "hi"))
	l.Execution(engine.ExecutionRecord{ActionID: "a1", Tool: "filesystem", Method: "writeFile", Success: true, Duration: 10 * time.Millisecond})
	l.Execution(engine.ExecutionRecord{ActionID: "a2", Tool: "filesystem", Method: "writeFile", Success: false, Error: "boom"})

	ctx := context.Background()
	n, err := l.Trace().EventCount(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sum, err := l.Trace().Summary(ctx)
	require.NoError(t, err)
	require.Len(t, sum, 1)
	assert.Equal(t, 2, sum[0].Count)
	assert.Equal(t, 1, sum[0].Failures)

	require.NoError(t, l.EndSession("done"))
	assert.FileExists(t, filepath.Join(dir, traceFileName))
}
