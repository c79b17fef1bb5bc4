package improvement

import (
	"context"
	"math"

	"github.com/GoSim-25-26J-441/simtune/pkg/utils"
)

// DefaultBuckshotStarts is the number of starts when Settings.Population is 0.
const DefaultBuckshotStarts = 2

// Buckshot refines several scattered starts with Nelder-Mead. The first
// start is the problem's initial point; the rest are drawn uniformly
// within bounds. All starts share one evaluation budget. Each start yields
// the best point it evaluated, and Selection picks the reported one.
type Buckshot struct {
	Selection   SelectionStrategy   // nil = lowest fitness
	Convergence ConvergenceStrategy // optional, ends the current start only

	candidates []*Candidate
}

func (m *Buckshot) Name() string { return MethodBuckshot }

func (m *Buckshot) Minimize(ctx context.Context, p Problem) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	n := p.Settings.Population
	if n <= 0 {
		n = DefaultBuckshotStarts
	}
	rng := utils.NewRandSource(p.Settings.Seed)
	starts := make([][]float64, n)
	starts[0] = p.start()
	for i := 1; i < n; i++ {
		starts[i] = p.Bounds.Random(rng)
	}

	t := newTracker(ctx, p, m.Convergence)
	m.candidates = make([]*Candidate, 0, n)
	for i, x0 := range starts {
		if err := t.stopped(); err != nil && err != errConverged {
			break
		}
		t.beginSegment()
		res, err := runGonum(t, p.Bounds.Normalize(x0), nelderMead(p.Settings), defaultConverger())
		if err != nil {
			return t.result(StatusFailed), err
		}
		cand := &Candidate{Start: i, Initial: x0, Status: gonumStatus(res)}
		if x, f := t.segmentBest(); len(x) > 0 {
			cand.X = x
			cand.F = f
			cand.Evaluated = true
			if p.Feasible != nil {
				cand.Feasible = p.Feasible(context.WithoutCancel(ctx), x)
			} else {
				cand.Feasible = f < math.MaxFloat64
			}
		}
		m.candidates = append(m.candidates, cand)
	}

	sel := m.Selection
	if sel == nil {
		sel = &BestScoreStrategy{}
	}
	best, err := sel.SelectBest(m.candidates)
	if err != nil {
		return t.result(StatusFailed), nil
	}
	res := t.result(StatusConverged)
	res.X = append([]float64(nil), best.X...)
	res.F = best.F
	return res, nil
}

// Candidates returns the per-start outcomes of the last run.
func (m *Buckshot) Candidates() []*Candidate {
	return m.candidates
}
