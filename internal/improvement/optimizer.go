package improvement

import (
	"context"
	"math"
	"sync"
)

// Coordinate search defaults in unit-cube coordinates
const (
	DefaultCoordinateStep = 0.1
	DefaultMinStep        = 1e-6
)

// Optimizer implements a hill-climbing coordinate search: it evaluates the
// explorer's neighbors of the current point, moves to the best one when it
// improves, and halves the continuous steps otherwise.
type Optimizer struct {
	explorer    ParameterExplorer   // Parameter space exploration strategy
	convergence ConvergenceStrategy // Optional early-stopping check on the history
	minStep     float64             // Smallest continuous step, relative to the bound width
	mu          sync.RWMutex
	bestScore   float64
	iteration   int
	history     []OptimizationStep
}

// OptimizationStep represents a single optimization step
type OptimizationStep struct {
	Iteration int
	Score     float64
	X         []float64
}

// NewOptimizer creates a new hill-climbing optimizer
func NewOptimizer() *Optimizer {
	return &Optimizer{
		explorer: NewDefaultExplorer(), // Use default exploration strategy
		convergence: noImprovement(ConvergenceSettings{}.withDefaults()),
		minStep:   DefaultMinStep,
		bestScore: math.MaxFloat64, // Start with worst possible score
		history:   make([]OptimizationStep, 0),
	}
}

// WithExplorer sets a custom parameter exploration strategy
func (o *Optimizer) WithExplorer(explorer ParameterExplorer) *Optimizer {
	o.explorer = explorer
	return o
}

// WithConvergence sets the early-stopping strategy; nil disables it
func (o *Optimizer) WithConvergence(strategy ConvergenceStrategy) *Optimizer {
	o.convergence = strategy
	return o
}

// WithMinStep sets the relative step below which the search has converged
func (o *Optimizer) WithMinStep(step float64) *Optimizer {
	if step > 0 {
		o.minStep = step
	}
	return o
}

func (o *Optimizer) Name() string { return MethodCoordinate }

// Minimize runs the hill-climbing search
func (o *Optimizer) Minimize(ctx context.Context, p Problem) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if o.explorer == nil {
		o.explorer = NewDefaultExplorer()
	}

	t := newTracker(ctx, p, nil)
	unit := p.Settings.InitialStep
	if unit <= 0 {
		unit = DefaultCoordinateStep
	}
	steps := make([]float64, p.Bounds.Dim())
	for i, b := range p.Bounds {
		steps[i] = unit * (b.Upper - b.Lower)
	}

	current := p.start()
	currentScore := t.eval(current)

	o.mu.Lock()
	o.iteration = 0
	o.bestScore = currentScore
	o.history = []OptimizationStep{{Iteration: 0, Score: currentScore, X: current}}
	o.mu.Unlock()

	for iteration := 1; t.stopped() == nil; iteration++ {
		o.mu.Lock()
		o.iteration = iteration
		o.mu.Unlock()

		neighbors := o.explorer.GenerateNeighbors(current, steps, p.Bounds)
		if len(neighbors) == 0 {
			// No valid neighbors, optimization converged
			return t.result(StatusConverged), nil
		}

		// Evaluate all neighbors and find the best one
		bestNeighbor := neighbors[0]
		bestNeighborScore := math.Inf(1)
		for _, neighbor := range neighbors {
			if t.stopped() != nil {
				break
			}
			if score := t.eval(neighbor); score < bestNeighborScore {
				bestNeighborScore = score
				bestNeighbor = neighbor
			}
		}

		improved := bestNeighborScore < currentScore
		if improved {
			current = bestNeighbor
			currentScore = bestNeighborScore
		} else if !o.shrink(steps, p.Bounds) {
			o.record(iteration, currentScore, current)
			t.iteration()
			return t.result(StatusConverged), nil
		}
		o.record(iteration, currentScore, current)
		t.iteration()

		if !improved && o.convergence != nil {
			if converged, _ := o.convergence.CheckConvergence(o.History()); converged {
				return t.result(StatusConverged), nil
			}
		}
	}

	return t.result(StatusConverged), nil
}

// shrink halves every continuous step; it returns false once all steps are
// at their minimum, meaning no finer neighborhood is left to try
func (o *Optimizer) shrink(steps []float64, bounds Bounds) bool {
	shrunk := false
	for i, b := range bounds {
		if b.Integer || len(b.Values) > 0 {
			continue
		}
		floor := o.minStep * (b.Upper - b.Lower)
		if steps[i] > floor {
			steps[i] = math.Max(floor, steps[i]/2)
			shrunk = true
		}
	}
	return shrunk
}

func (o *Optimizer) record(iteration int, score float64, x []float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if score < o.bestScore {
		o.bestScore = score
	}
	o.history = append(o.history, OptimizationStep{Iteration: iteration, Score: score, X: x})
	if len(o.history) > DefaultHistoryLimit {
		o.history = o.history[len(o.history)-DefaultHistoryLimit:]
	}
}

// History returns a copy of the accepted steps
func (o *Optimizer) History() []OptimizationStep {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]OptimizationStep, len(o.history))
	copy(out, o.history)
	return out
}

// GetBestScore returns the best score found so far
func (o *Optimizer) GetBestScore() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.bestScore
}

// GetIteration returns the current iteration number
func (o *Optimizer) GetIteration() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.iteration
}
