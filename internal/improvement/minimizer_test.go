package improvement

import (
	"bytes"
	"context"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
	"github.com/GoSim-25-26J-441/simtune/pkg/models"
)

func continuousBounds() Bounds {
	return Bounds{{Lower: 0, Upper: 10}, {Lower: 0, Upper: 5}}
}

func TestMinimizersFindMinimum(t *testing.T) {
	tests := []struct {
		name      string
		minimizer Minimizer
		settings  Settings
		tol       float64
	}{
		{"nelder-mead", &NelderMead{}, Settings{}, 1e-3},
		{"cmaes", &CMAES{}, Settings{MaxEvaluations: 4000, Population: 8, Seed: 1}, 1e-2},
		{"buckshot", &Buckshot{}, Settings{Population: 3, Seed: 7}, 1e-3},
		{"coordinate", NewOptimizer(), Settings{}, 1e-3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.minimizer.Minimize(context.Background(), Problem{
				Func:     quadratic,
				Bounds:   continuousBounds(),
				Settings: tt.settings,
			})
			if err != nil {
				t.Fatalf("Minimize: %v", err)
			}
			if math.Abs(res.X[0]-3) > tt.tol || math.Abs(res.X[1]-1) > tt.tol {
				t.Fatalf("expected minimum near (3, 1), got %v (f=%v, status=%s)", res.X, res.F, res.Status)
			}
			if res.Evaluations == 0 {
				t.Fatalf("expected evaluations to be counted")
			}
			if !continuousBounds().Contains(res.X) {
				t.Fatalf("result %v outside bounds", res.X)
			}
		})
	}
}

func TestCMAESSeededRunsRepeat(t *testing.T) {
	run := func() *Result {
		res, err := (&CMAES{}).Minimize(context.Background(), Problem{
			Func:     quadratic,
			Bounds:   continuousBounds(),
			Settings: Settings{MaxEvaluations: 600, Population: 8, Seed: 42},
		})
		if err != nil {
			t.Fatalf("Minimize: %v", err)
		}
		return res
	}
	first, second := run(), run()
	if first.F != second.F || first.Evaluations != second.Evaluations ||
		first.X[0] != second.X[0] || first.X[1] != second.X[1] {
		t.Fatalf("expected identical seeded runs, got %+v and %+v", first, second)
	}
}

func TestCMAESConvergesAcrossSeeds(t *testing.T) {
	// The box edge must not trap the search: every seed reaches the
	// interior minimum.
	for seed := int64(1); seed <= 20; seed++ {
		res, err := (&CMAES{}).Minimize(context.Background(), Problem{
			Func:     quadratic,
			Bounds:   continuousBounds(),
			Settings: Settings{MaxEvaluations: 4000, Population: 8, Seed: seed},
		})
		if err != nil {
			t.Fatalf("seed %d: Minimize: %v", seed, err)
		}
		if math.Abs(res.X[0]-3) > 1e-2 || math.Abs(res.X[1]-1) > 1e-2 {
			t.Fatalf("seed %d: expected minimum near (3, 1), got %v (f=%v, status=%s)", seed, res.X, res.F, res.Status)
		}
	}
}

func TestUnitCubeDistance(t *testing.T) {
	tests := []struct {
		u    []float64
		want float64
	}{
		{[]float64{0.5, 0.5}, 0},
		{[]float64{0, 1}, 0},
		{[]float64{-0.3, 0.5}, 0.3},
		{[]float64{1.3, -0.4}, 0.5},
	}
	for _, tt := range tests {
		if got := unitCubeDistance(tt.u); math.Abs(got-tt.want) > 1e-12 {
			t.Fatalf("unitCubeDistance(%v) = %v, want %v", tt.u, got, tt.want)
		}
	}
}

func TestMinimizersStayInBounds(t *testing.T) {
	// The unconstrained minimum lies outside the box.
	outside := func(_ context.Context, x []float64) float64 {
		return (x[0]+5)*(x[0]+5) + (x[1]-20)*(x[1]-20)
	}
	bounds := mixedBounds()
	for _, m := range []Minimizer{&NelderMead{}, &CMAES{}, &Buckshot{}, NewOptimizer()} {
		t.Run(m.Name(), func(t *testing.T) {
			var mu sync.Mutex
			var escaped []float64
			f := func(ctx context.Context, x []float64) float64 {
				if !bounds.Contains(x) || x[1] != math.Round(x[1]) {
					mu.Lock()
					escaped = x
					mu.Unlock()
				}
				return outside(ctx, x)
			}
			res, err := m.Minimize(context.Background(), Problem{
				Func:     f,
				Bounds:   bounds,
				Settings: Settings{MaxEvaluations: 500, Seed: 1},
			})
			if err != nil {
				t.Fatalf("Minimize: %v", err)
			}
			if escaped != nil {
				t.Fatalf("objective saw out-of-bounds vector %v", escaped)
			}
			if res.X[0] != 0 || res.X[1] != 5 {
				t.Fatalf("expected corner (0, 5), got %v", res.X)
			}
		})
	}
}

func TestEvaluationLimit(t *testing.T) {
	for _, m := range []Minimizer{&NelderMead{}, &CMAES{}, &Buckshot{}, NewOptimizer()} {
		t.Run(m.Name(), func(t *testing.T) {
			calls := 0
			f := func(ctx context.Context, x []float64) float64 {
				calls++
				return quadratic(ctx, x)
			}
			res, err := m.Minimize(context.Background(), Problem{
				Func:     f,
				Bounds:   continuousBounds(),
				Settings: Settings{MaxEvaluations: 10},
			})
			if err != nil {
				t.Fatalf("Minimize: %v", err)
			}
			if calls != 10 || res.Evaluations != 10 {
				t.Fatalf("expected exactly 10 evaluations, got %d calls, %d reported", calls, res.Evaluations)
			}
			if res.Status != StatusEvaluationLimit {
				t.Fatalf("expected evaluation limit status, got %q", res.Status)
			}
		})
	}
}

func TestTargetFitness(t *testing.T) {
	target := 0.5
	for _, m := range []Minimizer{&NelderMead{}, &Buckshot{}, NewOptimizer()} {
		t.Run(m.Name(), func(t *testing.T) {
			res, err := m.Minimize(context.Background(), Problem{
				Func:     quadratic,
				Bounds:   continuousBounds(),
				Initial:  []float64{9, 4},
				Settings: Settings{Target: &target},
			})
			if err != nil {
				t.Fatalf("Minimize: %v", err)
			}
			if res.F >= target {
				t.Fatalf("expected fitness below %v, got %v", target, res.F)
			}
			if res.Status != StatusTarget {
				t.Fatalf("expected target status, got %q", res.Status)
			}
		})
	}
}

func TestInterruptionReportsBest(t *testing.T) {
	for _, m := range []Minimizer{&NelderMead{}, &CMAES{}, &Buckshot{}, NewOptimizer()} {
		t.Run(m.Name(), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			calls := 0
			f := func(ctx context.Context, x []float64) float64 {
				calls++
				if calls == 25 {
					cancel()
				}
				return quadratic(ctx, x)
			}
			res, err := m.Minimize(ctx, Problem{Func: f, Bounds: continuousBounds()})
			if err != nil {
				t.Fatalf("expected interruption to be reported as a result, got %v", err)
			}
			if !res.Interrupted || res.Status != StatusInterrupted {
				t.Fatalf("expected interrupted result, got %+v", res)
			}
			if calls != 25 {
				t.Fatalf("expected evaluations to stop at the interruption, got %d", calls)
			}
			if len(res.X) != 2 || math.IsInf(res.F, 1) {
				t.Fatalf("expected best-so-far point, got %+v", res)
			}
		})
	}
}

func TestSentinelDoesNotBreakSearch(t *testing.T) {
	// Half of the box fails like an unparseable report.
	f := func(ctx context.Context, x []float64) float64 {
		if x[0] > 6 {
			return math.MaxFloat64
		}
		return quadratic(ctx, x)
	}
	res, err := (&NelderMead{}).Minimize(context.Background(), Problem{
		Func:    f,
		Bounds:  continuousBounds(),
		Initial: []float64{5.9, 2},
	})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if res.F > 1e-3 {
		t.Fatalf("expected search to reach the feasible minimum, got %v at %v", res.F, res.X)
	}
}

func TestMonitorObservesEvaluations(t *testing.T) {
	var buf bytes.Buffer
	mon := NewMonitor(5, 10, logger.NewText("info", &buf))
	var mu sync.Mutex
	var seen []models.Evaluation
	mon.Subscribe(func(ev models.Evaluation) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	res, err := NewOptimizer().Minimize(context.Background(), Problem{
		Func:     quadratic,
		Bounds:   mixedBounds(),
		Settings: Settings{MaxEvaluations: 40, Monitor: mon},
	})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != res.Evaluations || mon.Evaluations() != res.Evaluations {
		t.Fatalf("expected %d observations, got %d (monitor says %d)", res.Evaluations, len(seen), mon.Evaluations())
	}
	for i, ev := range seen {
		if ev.Index != i+1 {
			t.Fatalf("observation %d has index %d", i, ev.Index)
		}
		if i > 0 && ev.BestFitness > seen[i-1].BestFitness {
			t.Fatalf("best fitness increased at observation %d", i)
		}
	}
	x, f, ok := mon.Best()
	if !ok || f != res.F || x[0] != res.X[0] || x[1] != res.X[1] {
		t.Fatalf("monitor best (%v, %v) differs from result (%v, %v)", x, f, res.X, res.F)
	}
	if mon.Iterations() != res.Iterations {
		t.Fatalf("monitor iterations %d, result %d", mon.Iterations(), res.Iterations)
	}

	out := buf.String()
	if got := strings.Count(out, "msg=progress"); got != 40/5 {
		t.Fatalf("expected %d progress lines, got %d:\n%s", 40/5, got, out)
	}
	if got := strings.Count(out, "best_x="); got != 40/10 {
		t.Fatalf("expected %d verbose lines, got %d", 40/10, got)
	}
	for _, ev := range mon.History(0) {
		if !ev.Improved && ev.Index%5 != 0 {
			t.Fatalf("history kept an unremarkable evaluation: %+v", ev)
		}
	}
}

func TestGonumIterationsRecorded(t *testing.T) {
	mon := NewMonitor(0, 0, logger.Discard())
	res, err := (&NelderMead{}).Minimize(context.Background(), Problem{
		Func:     quadratic,
		Bounds:   continuousBounds(),
		Settings: Settings{MaxIterations: 5, Monitor: mon},
	})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if res.Iterations == 0 || res.Iterations > 5 || mon.Iterations() != res.Iterations {
		t.Fatalf("expected at most 5 iterations, got result %d monitor %d", res.Iterations, mon.Iterations())
	}
	if res.Status != StatusIterationLimit {
		t.Fatalf("expected iteration limit status, got %q", res.Status)
	}
}

func TestConvergenceRuleStopsGonumMethods(t *testing.T) {
	free, err := (&NelderMead{}).Minimize(context.Background(), Problem{Func: quadratic, Bounds: continuousBounds()})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	rule, err := NewConvergence(ConvergenceSettings{Rule: "plateau", Window: 5, Tolerance: 100})
	if err != nil {
		t.Fatalf("NewConvergence: %v", err)
	}
	res, err := (&NelderMead{Convergence: rule}).Minimize(context.Background(), Problem{Func: quadratic, Bounds: continuousBounds()})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if res.Status != StatusConverged {
		t.Fatalf("expected converged status, got %q", res.Status)
	}
	if res.Iterations < 5 || res.Iterations >= free.Iterations {
		t.Fatalf("expected the rule to stop after its window, got %d iterations (free run %d)", res.Iterations, free.Iterations)
	}
}

func TestBuckshotConvergenceEndsEachStart(t *testing.T) {
	rule, err := NewConvergence(ConvergenceSettings{Rule: "plateau", Window: 3, Tolerance: 100})
	if err != nil {
		t.Fatalf("NewConvergence: %v", err)
	}
	m := &Buckshot{Convergence: rule}
	res, err := m.Minimize(context.Background(), Problem{
		Func:     quadratic,
		Bounds:   continuousBounds(),
		Settings: Settings{Population: 3, Seed: 7},
	})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if len(m.Candidates()) != 3 {
		t.Fatalf("expected every start to run, got %d candidates", len(m.Candidates()))
	}
	if res.Status != StatusConverged {
		t.Fatalf("expected converged status, got %q", res.Status)
	}
}

// twoBasins is 0 at x0 = 0.5, left of a wall at x0 = 1, and 1 at (8, 1)
// right of it.
func twoBasins(_ context.Context, x []float64) float64 {
	if x[0] < 1 {
		return (x[0] - 0.5) * (x[0] - 0.5)
	}
	return (x[0]-8)*(x[0]-8) + (x[1]-1)*(x[1]-1) + 1
}

func TestBuckshotSelectionDecidesResult(t *testing.T) {
	feasible := func(_ context.Context, x []float64) bool { return x[0] >= 1 }
	problem := Problem{
		Func:     twoBasins,
		Bounds:   continuousBounds(),
		Initial:  []float64{0.5, 1},
		Settings: Settings{Population: 6, Seed: 7},
		Feasible: feasible,
	}

	tests := []struct {
		name      string
		selection SelectionStrategy
		feasible  bool
	}{
		{"best_score", &BestScoreStrategy{}, false},
		{"feasible_first", &FeasibleFirstStrategy{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Buckshot{Selection: tt.selection}
			res, err := m.Minimize(context.Background(), problem)
			if err != nil {
				t.Fatalf("Minimize: %v", err)
			}
			if got := feasible(context.Background(), res.X); got != tt.feasible {
				t.Fatalf("expected feasible=%v result, got %v (f=%v)", tt.feasible, res.X, res.F)
			}
			if res.F != twoBasins(context.Background(), res.X) {
				t.Fatalf("result fitness %v does not belong to %v", res.F, res.X)
			}
			if tt.feasible && res.F < 1 {
				t.Fatalf("expected the feasible basin, got f=%v", res.F)
			}
			if !tt.feasible && res.F != 0 {
				t.Fatalf("expected the global minimum, got f=%v", res.F)
			}
			first := m.Candidates()[0]
			if first.Feasible || first.F != 0 {
				t.Fatalf("expected the first start to end infeasible at 0, got %+v", first)
			}
		})
	}
}
