package registry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

const errorRingSize = 50

// ToolStats aggregates executions of one tool.
type ToolStats struct {
	Count     int64         `json:"count"`
	Success   int64         `json:"success"`
	Failure   int64         `json:"failure"`
	TotalTime time.Duration `json:"totalTime"`
	AvgTime   time.Duration `json:"avgTime"`
}

// ErrorSample is a recent failed execution.
type ErrorSample struct {
	Time   time.Time   `json:"time"`
	Tool   string      `json:"tool"`
	Method string      `json:"method"`
	Kind   engine.Kind `json:"kind"`
	Error  string      `json:"error"`
}

// Stats is a snapshot of registry metrics.
type Stats struct {
	Total       int64                `json:"total"`
	Successful  int64                `json:"successful"`
	Failed      int64                `json:"failed"`
	AvgDuration time.Duration        `json:"avgDuration"`
	PerTool     map[string]ToolStats `json:"perTool"`
	Errors      []ErrorSample        `json:"errors,omitempty"`
}

// Metrics tracks execution counters. Each registry owns its own prometheus
// registry so sessions never share collectors.
type Metrics struct {
	mu          sync.Mutex
	total       int64
	successful  int64
	failed      int64
	avgDuration float64
	perTool     map[string]*ToolStats
	errors      *engine.Ring[ErrorSample]

	prom       *prometheus.Registry
	executions *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

func newMetrics() *Metrics {
	m := &Metrics{
		perTool: make(map[string]*ToolStats),
		errors:  engine.NewRing[ErrorSample](errorRingSize),
		prom:    prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcli_tool_executions_total",
			Help: "Tool executions by tool, method and outcome.",
		}, []string{"tool", "method", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentcli_tool_execution_seconds",
			Help:    "Tool execution latency.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"tool"}),
	}
	m.prom.MustRegister(m.executions, m.durations)
	return m
}

func (m *Metrics) observe(rec engine.ExecutionRecord) {
	outcome := "success"
	if !rec.Success {
		outcome = "failure"
	}
	m.executions.WithLabelValues(rec.Tool, rec.Method, outcome).Inc()
	m.durations.WithLabelValues(rec.Tool).Observe(rec.Duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	if rec.Success {
		m.successful++
	} else {
		m.failed++
		m.errors.Push(ErrorSample{Time: rec.Timestamp, Tool: rec.Tool, Method: rec.Method, Kind: rec.Kind, Error: rec.Error})
	}
	// Rolling mean.
	m.avgDuration += (float64(rec.Duration) - m.avgDuration) / float64(m.total)

	ts, ok := m.perTool[rec.Tool]
	if !ok {
		ts = &ToolStats{}
		m.perTool[rec.Tool] = ts
	}
	ts.Count++
	if rec.Success {
		ts.Success++
	} else {
		ts.Failure++
	}
	ts.TotalTime += rec.Duration
	ts.AvgTime = ts.TotalTime / time.Duration(ts.Count)
}

// Snapshot returns a copy of the current stats.
func (m *Metrics) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Stats{
		Total:       m.total,
		Successful:  m.successful,
		Failed:      m.failed,
		AvgDuration: time.Duration(m.avgDuration),
		PerTool:     make(map[string]ToolStats, len(m.perTool)),
		Errors:      m.errors.Items(),
	}
	for k, v := range m.perTool {
		out.PerTool[k] = *v
	}
	return out
}

// Gatherer exposes the prometheus collectors.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.prom
}

// WriteTextfile writes the collectors in the prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.prom)
}
