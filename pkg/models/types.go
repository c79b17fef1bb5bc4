package models

import (
	"sync"
	"time"
)

// RunStatus represents the status of an optimization run
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusFailed      RunStatus = "failed"
)

// IsTerminal reports whether the run has finished
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusInterrupted || s == RunStatusFailed
}

// Evaluation is one objective evaluation observed by the monitor
type Evaluation struct {
	Index       int       `json:"index"`
	X           []float64 `json:"x"`
	Fitness     float64   `json:"fitness"`
	BestFitness float64   `json:"best_fitness"`
	Improved    bool      `json:"improved,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Run represents an optimization run and its progress
type Run struct {
	ID          string            `json:"id"`
	Method      string            `json:"method"`
	Status      RunStatus         `json:"status"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time,omitempty"`
	Evaluations int               `json:"evaluations"`
	Iterations  int               `json:"iterations"`
	Invocations int64             `json:"invocations"`
	CacheHits   int64             `json:"cache_hits"`
	BestX       []float64         `json:"best_x,omitempty"`
	BestFitness *float64          `json:"best_fitness,omitempty"`
	StopReason  string            `json:"stop_reason,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the run
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.BestX = append([]float64(nil), r.BestX...)
	if r.BestFitness != nil {
		f := *r.BestFitness
		c.BestFitness = &f
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Duration returns the elapsed run time, measured to now while running
func (r *Run) Duration() time.Duration {
	if r.StartTime.IsZero() {
		return 0
	}
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// EvaluationLog is a bounded, thread-safe history of evaluations
type EvaluationLog struct {
	mu    sync.RWMutex
	limit int
	items []Evaluation
}

// NewEvaluationLog creates a log that keeps at most limit entries (0 = unbounded)
func NewEvaluationLog(limit int) *EvaluationLog {
	return &EvaluationLog{limit: limit}
}

// Append adds an evaluation, dropping the oldest one when full (thread-safe)
func (l *EvaluationLog) Append(e Evaluation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit > 0 && len(l.items) >= l.limit {
		copy(l.items, l.items[1:])
		l.items = l.items[:len(l.items)-1]
	}
	l.items = append(l.items, e)
}

// Last returns up to n most recent evaluations, oldest first; n <= 0 returns all (thread-safe)
func (l *EvaluationLog) Last(n int) []Evaluation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if n > 0 && n < len(l.items) {
		start = len(l.items) - n
	}
	out := make([]Evaluation, len(l.items)-start)
	copy(out, l.items[start:])
	return out
}

// Len returns the number of stored evaluations (thread-safe)
func (l *EvaluationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// MetricPoint represents a single metric data point
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// MetricsSummary represents a summary of collected metrics
type MetricsSummary struct {
	StartTime    time.Time               `json:"start_time"`
	EndTime      time.Time               `json:"end_time"`
	Duration     time.Duration           `json:"duration"`
	Metrics      map[string][]float64    `json:"metrics"` // metric name -> values
	Aggregations map[string]*Aggregation `json:"aggregations,omitempty"`
}

// Aggregation represents aggregated statistics for a metric
type Aggregation struct {
	Count  int64   `json:"count"`
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// RunStats summarizes the metrics history of a run
type RunStats struct {
	Duration         time.Duration      `json:"duration"`
	Evaluations      int64              `json:"evaluations"`
	Failures         int64              `json:"failures"`
	Invocations      int64              `json:"invocations"`
	SimulatorErrors  int64              `json:"simulator_errors"`
	BestFitness      *float64           `json:"best_fitness,omitempty"`
	Fitness          *Aggregation       `json:"fitness,omitempty"`
	SimulatorLatency *Aggregation       `json:"simulator_latency_ms,omitempty"`
	History          *HistoryComparison `json:"history,omitempty"`
}

// HistoryComparison summarizes a sequence of evaluations
type HistoryComparison struct {
	Samples          int     `json:"samples"`
	Failed           int     `json:"failed"` // evaluations at the sentinel or non-finite
	BestIndex        int     `json:"best_index"`
	WorstIndex       int     `json:"worst_index"`
	BestFitness      float64 `json:"best_fitness"`
	ImprovementTrend string  `json:"improvement_trend"`
	AverageScore     float64 `json:"average_score"`
	ScoreVariance    float64 `json:"score_variance"`
	ImprovementPct   float64 `json:"improvement_pct"` // first scored evaluation to best
}
