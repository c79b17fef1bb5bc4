// Package improvement contains the derivative-free minimizers that search
// the simulator's parameter space.
package improvement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Method names accepted by New
const (
	MethodNelderMead = "nelder-mead"
	MethodCMAES      = "cmaes"
	MethodBuckshot   = "buckshot"
	MethodCoordinate = "coordinate"
)

// Objective returns the fitness of a projected vector. Lower is better.
type Objective func(ctx context.Context, x []float64) float64

// Settings bound a minimization run.
type Settings struct {
	MaxIterations  int      // 0 = unlimited
	MaxEvaluations int      // 0 = unlimited
	Target         *float64 // stop once the best fitness is strictly below this value
	InitialStep    float64  // initial step in unit-cube coordinates; 0 = method default
	Population     int      // starts for buckshot, population for cmaes; 0 = method default
	Seed           int64    // 0 = time-based
	Monitor        *Monitor
}

// Problem is one minimization request.
type Problem struct {
	Func     Objective
	Bounds   Bounds
	Initial  []float64 // nil = center of bounds
	Settings Settings
	// Feasible reports whether a projected vector satisfies every
	// constraint; nil treats any fitness below the sentinel as feasible
	Feasible func(ctx context.Context, x []float64) bool
}

// Result is the best point a minimizer found.
type Result struct {
	X           []float64 `json:"x"`
	F           float64   `json:"f"`
	Evaluations int       `json:"evaluations"`
	Iterations  int       `json:"iterations"`
	Status      string    `json:"status"`
	Interrupted bool      `json:"interrupted"`
}

// Minimizer searches for the vector with the lowest fitness.
type Minimizer interface {
	Minimize(ctx context.Context, p Problem) (*Result, error)
	Name() string
}

// UnknownMethodError is returned by New for an unsupported method name.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown optimization method: %s (supported: %s)", e.Method, strings.Join(Methods(), ", "))
}

// Methods lists the supported method names.
func Methods() []string {
	m := []string{MethodNelderMead, MethodCMAES, MethodBuckshot, MethodCoordinate}
	sort.Strings(m)
	return m
}

// Options tune a method beyond its Settings. The zero value keeps every
// method default.
type Options struct {
	// Convergence stops a run early. An empty Rule leaves the coordinate
	// search on no_improvement and the gonum methods on their own tests.
	Convergence ConvergenceSettings
	Explorer    string // coordinate neighborhood
	Selection   string // buckshot winner
}

// New returns the minimizer for a method name with default options.
func New(method string) (Minimizer, error) {
	return NewWithOptions(method, Options{})
}

// NewWithOptions returns the minimizer for a method name.
func NewWithOptions(method string, opts Options) (Minimizer, error) {
	var rule ConvergenceStrategy
	if opts.Convergence.Rule != "" {
		var err error
		if rule, err = NewConvergence(opts.Convergence); err != nil {
			return nil, err
		}
	}

	switch strings.ToLower(method) {
	case MethodNelderMead, "neldermead":
		return &NelderMead{Convergence: rule}, nil
	case MethodCMAES, "cma-es":
		return &CMAES{Convergence: rule}, nil
	case MethodBuckshot:
		sel, err := NewSelection(opts.Selection)
		if err != nil {
			return nil, err
		}
		return &Buckshot{Selection: sel, Convergence: rule}, nil
	case MethodCoordinate, "hill-climb":
		explorer, err := NewExplorer(opts.Explorer)
		if err != nil {
			return nil, err
		}
		o := NewOptimizer().WithExplorer(explorer)
		if opts.Convergence.Rule != "" {
			o.WithConvergence(rule)
		}
		return o, nil
	default:
		return nil, &UnknownMethodError{Method: method}
	}
}

// Stop reasons reported in Result.Status
const (
	StatusTarget          = "target reached"
	StatusEvaluationLimit = "evaluation limit reached"
	StatusIterationLimit  = "iteration limit reached"
	StatusInterrupted     = "interrupted"
)

var (
	errTargetReached   = errors.New(StatusTarget)
	errEvaluationLimit = errors.New(StatusEvaluationLimit)
	errConverged       = errors.New(StatusConverged)
)

func (p *Problem) validate() error {
	if p.Func == nil {
		return fmt.Errorf("objective function is required")
	}
	if len(p.Bounds) == 0 {
		return fmt.Errorf("bounds are required")
	}
	if p.Initial != nil && len(p.Initial) != len(p.Bounds) {
		return fmt.Errorf("initial vector has %d components, want %d", len(p.Initial), len(p.Bounds))
	}
	return nil
}

func (p *Problem) start() []float64 {
	if p.Initial != nil {
		return p.Bounds.Project(p.Initial)
	}
	return p.Bounds.Center()
}

// tracker wraps the objective for every method: it projects proposals,
// enforces the evaluation budget and remembers the best projected point,
// overall and since the last beginSegment. With a convergence rule set,
// the best score after each major iteration feeds the rule.
type tracker struct {
	ctx      context.Context
	f        Objective
	bounds   Bounds
	settings Settings
	converge ConvergenceStrategy

	mu      sync.Mutex
	evals   int
	iters   int
	bestX   []float64
	bestF   float64
	segX    []float64
	segF    float64
	history []OptimizationStep
	stop    error
}

func newTracker(ctx context.Context, p Problem, converge ConvergenceStrategy) *tracker {
	return &tracker{
		ctx:      ctx,
		f:        p.Func,
		bounds:   p.Bounds,
		settings: p.Settings,
		converge: converge,
		bestF:    math.Inf(1),
		segF:     math.Inf(1),
	}
}

// beginSegment starts a new trajectory: it resets the segment best and the
// convergence history, and lifts a convergence stop of the previous one.
func (t *tracker) beginSegment() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segX = nil
	t.segF = math.Inf(1)
	t.history = nil
	if t.stop == errConverged {
		t.stop = nil
	}
}

// segmentBest returns the best point since beginSegment, nil if none.
func (t *tracker) segmentBest() ([]float64, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.segX...), t.segF
}

// eval projects x, evaluates it and records the result. After the budget
// is exhausted or the context is done it returns +Inf without evaluating.
func (t *tracker) eval(x []float64) float64 {
	px := t.bounds.Project(x)
	if t.stopped() != nil {
		return math.Inf(1)
	}
	f := t.f(t.ctx, px)

	t.mu.Lock()
	t.evals++
	n := t.evals
	if f < t.bestF || t.bestX == nil {
		t.bestF = f
		t.bestX = px
	}
	if f < t.segF || t.segX == nil {
		t.segF = f
		t.segX = px
	}
	if t.settings.Target != nil && t.bestF < *t.settings.Target && t.stop == nil {
		t.stop = errTargetReached
	}
	if t.settings.MaxEvaluations > 0 && n >= t.settings.MaxEvaluations && t.stop == nil {
		t.stop = errEvaluationLimit
	}
	t.mu.Unlock()

	if t.settings.Monitor != nil {
		t.settings.Monitor.Observe(n, px, f)
	}
	return f
}

// iteration records a completed major iteration.
func (t *tracker) iteration() {
	t.mu.Lock()
	t.iters++
	if t.settings.MaxIterations > 0 && t.iters >= t.settings.MaxIterations && t.stop == nil {
		t.stop = errors.New(StatusIterationLimit)
	}
	if t.converge != nil && t.segX != nil {
		t.history = append(t.history, OptimizationStep{Iteration: t.iters, Score: t.segF, X: t.segX})
		if len(t.history) > DefaultHistoryLimit {
			t.history = t.history[len(t.history)-DefaultHistoryLimit:]
		}
		if ok, _ := t.converge.CheckConvergence(t.history); ok && t.stop == nil {
			t.stop = errConverged
		}
	}
	t.mu.Unlock()
	if t.settings.Monitor != nil {
		t.settings.Monitor.iteration()
	}
}

// stopped returns why the run must end, or nil.
func (t *tracker) stopped() error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop
}

// iterationsLeft returns the remaining major iteration budget, 0 when unlimited.
func (t *tracker) iterationsLeft() int {
	if t.settings.MaxIterations <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if left := t.settings.MaxIterations - t.iters; left > 0 {
		return left
	}
	return 1
}

// result builds the Result; status is the method's own stop reason and is
// overridden by interruption and budget stops.
func (t *tracker) result(status string) *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := &Result{
		X:           append([]float64(nil), t.bestX...),
		F:           t.bestF,
		Evaluations: t.evals,
		Iterations:  t.iters,
		Status:      status,
	}
	switch {
	case t.ctx.Err() != nil:
		r.Status = StatusInterrupted
		r.Interrupted = true
	case t.stop != nil:
		r.Status = t.stop.Error()
	}
	return r
}
