package improvement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/optimize"
)

// Method defaults in unit-cube coordinates
const (
	DefaultSimplexSize = 0.1
	DefaultCMAESStep   = 0.3
)

// OutOfBoundsWeight scales the penalty on proposals outside the unit cube.
// The penalty grows with the distance to the cube; the point evaluated is
// always the projection.
const OutOfBoundsWeight = 1e3

// NelderMead runs a single gonum Nelder-Mead trajectory from the initial point.
type NelderMead struct {
	Convergence ConvergenceStrategy // optional, checked after every major iteration
}

func (m *NelderMead) Name() string { return MethodNelderMead }

func (m *NelderMead) Minimize(ctx context.Context, p Problem) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	t := newTracker(ctx, p, m.Convergence)
	res, err := runGonum(t, p.Bounds.Normalize(p.start()), nelderMead(p.Settings), defaultConverger())
	if err != nil {
		return t.result(StatusFailed), err
	}
	return t.result(gonumStatus(res)), nil
}

// CMAES runs gonum's CMA-ES with Cholesky covariance updates.
type CMAES struct {
	Convergence ConvergenceStrategy // optional, checked after every major iteration
}

func (m *CMAES) Name() string { return MethodCMAES }

func (m *CMAES) Minimize(ctx context.Context, p Problem) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	step := p.Settings.InitialStep
	if step <= 0 {
		step = DefaultCMAESStep
	}
	method := &optimize.CmaEsChol{
		InitStepSize: step,
		Population:   p.Settings.Population,
	}
	if seed := p.Settings.Seed; seed != 0 {
		method.Src = rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
	}
	t := newTracker(ctx, p, m.Convergence)
	res, err := runGonum(t, p.Bounds.Normalize(p.start()), method, &optimize.NeverTerminate{})
	if err != nil {
		return t.result(StatusFailed), err
	}
	return t.result(gonumStatus(res)), nil
}

// StatusConverged and StatusFailed are method-level stop reasons.
const (
	StatusConverged = "converged"
	StatusFailed    = "failed"
)

func nelderMead(s Settings) *optimize.NelderMead {
	size := s.InitialStep
	if size <= 0 {
		size = DefaultSimplexSize
	}
	return &optimize.NelderMead{SimplexSize: size}
}

func defaultConverger() optimize.Converger {
	return &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 100}
}

// runGonum minimizes in unit-cube coordinates. Every proposal is mapped back
// into bounds by the tracker; stop requests surface through Problem.Status.
// Interruption is not an error.
func runGonum(t *tracker, u0 []float64, method optimize.Method, conv optimize.Converger) (*optimize.Result, error) {
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			f := t.eval(t.bounds.Denormalize(u))
			if d := unitCubeDistance(u); d > 0 {
				f += OutOfBoundsWeight * (d + d*d)
			}
			return f
		},
		Status: func() (optimize.Status, error) {
			err := t.stopped()
			switch {
			case err == nil:
				return optimize.NotTerminated, nil
			case errors.Is(err, errTargetReached):
				return optimize.FunctionThreshold, nil
			case errors.Is(err, errEvaluationLimit):
				return optimize.FunctionEvaluationLimit, nil
			case errors.Is(err, errConverged):
				return optimize.MethodConverge, nil
			case t.ctx.Err() != nil:
				return optimize.Failure, err
			default:
				return optimize.IterationLimit, nil
			}
		},
	}
	settings := &optimize.Settings{
		Converger:       conv,
		Recorder:        recorder{t: t},
		MajorIterations: t.iterationsLeft(),
		Concurrent:      0,
	}

	res, err := optimize.Minimize(problem, u0, settings, method)
	if err != nil {
		if t.ctx.Err() != nil {
			return res, nil
		}
		return res, fmt.Errorf("optimization failed: %w", err)
	}
	return res, nil
}

// unitCubeDistance is the Euclidean distance from u to [0, 1]^n.
func unitCubeDistance(u []float64) float64 {
	var sum float64
	for _, v := range u {
		switch {
		case v < 0:
			sum += v * v
		case v > 1:
			sum += (v - 1) * (v - 1)
		}
	}
	return math.Sqrt(sum)
}

func gonumStatus(res *optimize.Result) string {
	if res == nil {
		return StatusConverged
	}
	switch res.Status {
	case optimize.FunctionConvergence, optimize.MethodConverge, optimize.StepConvergence, optimize.Success:
		return StatusConverged
	case optimize.FunctionThreshold:
		return StatusTarget
	case optimize.IterationLimit:
		return StatusIterationLimit
	case optimize.FunctionEvaluationLimit:
		return StatusEvaluationLimit
	default:
		return res.Status.String()
	}
}
