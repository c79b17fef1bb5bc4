package improvement

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
	"github.com/GoSim-25-26J-441/simtune/pkg/models"
	"gonum.org/v1/gonum/optimize"
)

// DefaultHistoryLimit bounds the monitor's in-memory history.
const DefaultHistoryLimit = 10000

// Monitor observes every evaluation. It logs progress every ReportEvery
// evaluations, adds the best vector every VerboseEvery evaluations, keeps
// a bounded history of improvements and reporting points, and fans each
// observation out to subscribers.
type Monitor struct {
	reportEvery  int
	verboseEvery int
	log          *slog.Logger
	history      *models.EvaluationLog

	mu          sync.RWMutex
	evaluations int
	iterations  int
	bestX       []float64
	bestF       float64
	subscribers []func(models.Evaluation)
}

// NewMonitor creates a monitor; zero cadences disable the matching log line.
func NewMonitor(reportEvery, verboseEvery int, log *slog.Logger) *Monitor {
	return &Monitor{
		reportEvery:  reportEvery,
		verboseEvery: verboseEvery,
		log:          logger.Or(log).With("component", "monitor"),
		history:      models.NewEvaluationLog(DefaultHistoryLimit),
		bestF:        math.Inf(1),
	}
}

// Subscribe registers fn to receive every observation.
func (m *Monitor) Subscribe(fn func(models.Evaluation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Observe records evaluation n of x with fitness f.
func (m *Monitor) Observe(n int, x []float64, f float64) {
	m.mu.Lock()
	m.evaluations = n
	improved := f < m.bestF || m.bestX == nil
	if improved {
		m.bestF = f
		m.bestX = append([]float64(nil), x...)
	}
	ev := models.Evaluation{
		Index:       n,
		X:           append([]float64(nil), x...),
		Fitness:     f,
		BestFitness: m.bestF,
		Improved:    improved,
		Timestamp:   time.Now(),
	}
	bestX := m.bestX
	subs := m.subscribers
	m.mu.Unlock()

	report := m.reportEvery > 0 && n%m.reportEvery == 0
	if improved || report {
		m.history.Append(ev)
	}
	if report {
		attrs := []any{"evaluation", n, "best_fitness", ev.BestFitness}
		if m.verboseEvery > 0 && n%m.verboseEvery == 0 {
			attrs = append(attrs, "best_x", bestX)
		}
		m.log.Info("progress", attrs...)
	}
	for _, fn := range subs {
		fn(ev)
	}
}

// Best returns the best observation so far.
func (m *Monitor) Best() ([]float64, float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bestX == nil {
		return nil, math.Inf(1), false
	}
	return append([]float64(nil), m.bestX...), m.bestF, true
}

// Evaluations returns the index of the latest observation.
func (m *Monitor) Evaluations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evaluations
}

// Iterations returns the number of major iterations recorded.
func (m *Monitor) Iterations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.iterations
}

// History returns up to n recorded evaluations, oldest first.
func (m *Monitor) History(n int) []models.Evaluation {
	return m.history.Last(n)
}

func (m *Monitor) iteration() {
	m.mu.Lock()
	m.iterations++
	m.mu.Unlock()
}

// recorder reports gonum's major iterations to the tracker and monitor.
type recorder struct {
	t *tracker
}

var _ optimize.Recorder = recorder{}

func (r recorder) Init() error { return nil }

func (r recorder) Record(_ *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op == optimize.MajorIteration {
		r.t.iteration()
	}
	return nil
}
