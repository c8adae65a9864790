// Package monitor implements CompletionMonitor: a process-wide tracker of
// per-request token counts and latency that aggregates into per-engine and
// global TPS/TTFT/RPS statistics, plus a Prometheus collector exposing the
// same counters for /metrics/prometheus.
package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolosalai/kolosal-agentd/core"
)

// requestEntry tracks one in-flight or terminal completion request.
type requestEntry struct {
	model        string
	engine       string
	inputTokens  int
	outputTokens int
	startMs      int64
	firstTokenMs int64
	completeMs   int64
	completed    bool
	failed       bool
}

// CompletionMetrics is the aggregated view for one engine (or the process
// as a whole), derived from every terminal request merged into it.
type CompletionMetrics struct {
	Engine            string  `json:"engine"`
	CompletedRequests int64   `json:"completed_requests"`
	FailedRequests    int64   `json:"failed_requests"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TPS               float64 `json:"tps"`
	OutputTPS         float64 `json:"output_tps"`
	AvgTTFTMs         float64 `json:"avg_ttft_ms"`
	RPS               float64 `json:"rps"`

	totalTurnaroundMs int64
	totalOutputGenMs  int64
	sumTTFTMs         int64
}

// recompute refreshes the derived TPS/OutputTPS/AvgTTFT/RPS fields from the
// raw counters.
func (m *CompletionMetrics) recompute() {
	if m.CompletedRequests > 0 && m.totalTurnaroundMs > 0 {
		m.TPS = float64(m.TotalInputTokens+m.TotalOutputTokens) / (float64(m.totalTurnaroundMs) / 1000)
		m.RPS = float64(m.CompletedRequests) / (float64(m.totalTurnaroundMs) / 1000)
	} else {
		m.TPS = 0
		m.RPS = 0
	}
	if m.totalOutputGenMs > 0 {
		m.OutputTPS = float64(m.TotalOutputTokens) / (float64(m.totalOutputGenMs) / 1000)
	} else {
		m.OutputTPS = 0
	}
	if m.CompletedRequests > 0 {
		m.AvgTTFTMs = float64(m.sumTTFTMs) / float64(m.CompletedRequests)
	} else {
		m.AvgTTFTMs = 0
	}
}

// nowMs is the monotonic millisecond clock requestEntry timestamps are
// stamped with. A var so tests can substitute a deterministic clock.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Monitor is the process-wide CompletionMonitor singleton. It satisfies
// function.CompletionRecorder.
type Monitor struct {
	mu       sync.Mutex
	active   map[string]*requestEntry
	terminal map[string]*requestEntry
	engines  map[string]*CompletionMetrics

	collector *prometheusCollector
}

// New constructs an empty Monitor with its Prometheus collector ready to
// register.
func New() *Monitor {
	m := &Monitor{
		active:   make(map[string]*requestEntry),
		terminal: make(map[string]*requestEntry),
		engines:  make(map[string]*CompletionMetrics),
	}
	m.collector = newPrometheusCollector(m)
	return m
}

// Collector returns the prometheus.Collector view of this monitor, for
// registration with a prometheus.Registry.
func (m *Monitor) Collector() prometheus.Collector { return m.collector }

// StartRequest begins tracking a new completion request against model/engine
// and returns its request id.
func (m *Monitor) StartRequest(model, engine string) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.active[id] = &requestEntry{model: model, engine: engine, startMs: nowMs()}
	m.mu.Unlock()
	return id
}

// RecordInputTokens sets the input token count observed for requestID.
func (m *Monitor) RecordInputTokens(requestID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.active[requestID]; ok {
		e.inputTokens = n
	}
}

// RecordFirstToken stamps the first-token timestamp, idempotently: only the
// first call for a given request sets it.
func (m *Monitor) RecordFirstToken(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.active[requestID]
	if !ok || e.firstTokenMs != 0 {
		return
	}
	e.firstTokenMs = nowMs()
}

// RecordOutputToken increments the output token count for requestID and, if
// no first-token timestamp is set yet, stamps one.
func (m *Monitor) RecordOutputToken(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.active[requestID]
	if !ok {
		return
	}
	e.outputTokens++
	if e.firstTokenMs == 0 {
		e.firstTokenMs = nowMs()
	}
}

// CompleteRequest marks requestID successful, moves it from active to
// terminal, and merges it into its engine's CompletionMetrics.
func (m *Monitor) CompleteRequest(requestID string) {
	m.finish(requestID, true)
}

// FailRequest marks requestID failed and merges it into its engine's
// CompletionMetrics as a failure; errMsg is not stored.
func (m *Monitor) FailRequest(requestID string, errMsg string) {
	m.finish(requestID, false)
}

func (m *Monitor) finish(requestID string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.active[requestID]
	if !ok {
		return
	}
	delete(m.active, requestID)
	e.completeMs = nowMs()
	e.completed = success
	e.failed = !success
	m.terminal[requestID] = e

	metrics, ok := m.engines[e.engine]
	if !ok {
		metrics = &CompletionMetrics{Engine: e.engine}
		m.engines[e.engine] = metrics
	}
	turnaround := e.completeMs - e.startMs
	if success {
		metrics.CompletedRequests++
		metrics.TotalInputTokens += int64(e.inputTokens)
		metrics.TotalOutputTokens += int64(e.outputTokens)
		metrics.totalTurnaroundMs += turnaround
		if e.firstTokenMs > 0 {
			metrics.sumTTFTMs += e.firstTokenMs - e.startMs
			metrics.totalOutputGenMs += e.completeMs - e.firstTokenMs
		}
	} else {
		metrics.FailedRequests++
	}
	metrics.recompute()

	if reg := core.GetGlobalMetricsRegistry(); reg != nil {
		status := "completed"
		if !success {
			status = "failed"
		}
		reg.Counter("completion.requests", "engine", e.engine, "status", status)
		if success {
			reg.Histogram("completion.turnaround_ms", float64(turnaround), "engine", e.engine)
			reg.Histogram("completion.output_tokens", float64(e.outputTokens), "engine", e.engine)
		}
	}
}

// GetCompletionMetrics returns a snapshot of every engine's metrics plus an
// aggregate across all engines, weighted by each engine's completed-request
// count.
func (m *Monitor) GetCompletionMetrics() (aggregate CompletionMetrics, perEngine map[string]CompletionMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()

	perEngine = make(map[string]CompletionMetrics, len(m.engines))
	var totalCompleted, totalFailed, totalIn, totalOut int64
	var weightedTPS, weightedOutputTPS, weightedTTFT, weightedRPS float64

	for name, em := range m.engines {
		snapshot := *em
		perEngine[name] = snapshot
		totalCompleted += em.CompletedRequests
		totalFailed += em.FailedRequests
		totalIn += em.TotalInputTokens
		totalOut += em.TotalOutputTokens
		weight := float64(em.CompletedRequests)
		weightedTPS += em.TPS * weight
		weightedOutputTPS += em.OutputTPS * weight
		weightedTTFT += em.AvgTTFTMs * weight
		weightedRPS += em.RPS * weight
	}

	aggregate = CompletionMetrics{
		Engine:            "",
		CompletedRequests: totalCompleted,
		FailedRequests:    totalFailed,
		TotalInputTokens:  totalIn,
		TotalOutputTokens: totalOut,
	}
	if totalCompleted > 0 {
		aggregate.TPS = weightedTPS / float64(totalCompleted)
		aggregate.OutputTPS = weightedOutputTPS / float64(totalCompleted)
		aggregate.AvgTTFTMs = weightedTTFT / float64(totalCompleted)
		aggregate.RPS = weightedRPS / float64(totalCompleted)
	}
	return aggregate, perEngine
}

// CleanupOldRequests purges terminal entries older than maxAgeSeconds,
// measured from their completion timestamp.
func (m *Monitor) CleanupOldRequests(maxAgeSeconds int64) int {
	cutoff := nowMs() - maxAgeSeconds*1000
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.terminal {
		if e.completeMs < cutoff {
			delete(m.terminal, id)
			removed++
		}
	}
	return removed
}
