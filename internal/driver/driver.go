// Package driver runs one optimization end to end: it sizes the search
// space, drives the selected minimizer through the evaluation pipeline,
// reports progress and prints the final result.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/GoSim-25-26J-441/simtune/internal/improvement"
	"github.com/GoSim-25-26J-441/simtune/internal/metrics"
	"github.com/GoSim-25-26J-441/simtune/internal/monitor"
	"github.com/GoSim-25-26J-441/simtune/internal/objective"
	"github.com/GoSim-25-26J-441/simtune/internal/simulator"
	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
	"github.com/GoSim-25-26J-441/simtune/pkg/models"
	"github.com/GoSim-25-26J-441/simtune/pkg/utils"
)

// Outcome is the result of a completed or interrupted run.
type Outcome struct {
	Run         *models.Run
	Result      *improvement.Result
	Breakdown   *objective.Breakdown
	FinalReport string
	History     *models.HistoryComparison // trend over the recent evaluations
}

// HistoryWindow is how many recent evaluations the history comparison covers.
const HistoryWindow = 100

func runStats(c *metrics.Collector, mon *improvement.Monitor) *models.RunStats {
	stats := metrics.ConvertToRunStats(c)
	if h, err := improvement.CompareHistory(mon.History(HistoryWindow)); err == nil {
		stats.History = h
	}
	return stats
}

// Driver runs optimizations for one configuration.
type Driver struct {
	cfg   *config.Config
	eval  *EvaluationContext
	store *monitor.Store
	out   io.Writer
	log   *slog.Logger
}

// New creates a driver writing the console report to out. A nil store gets
// a private one.
func New(cfg *config.Config, out io.Writer, store *monitor.Store, log *slog.Logger) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	log = logger.Or(log)
	eval, err := NewEvaluationContext(cfg, log)
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = monitor.NewStore(0)
	}
	if out == nil {
		out = io.Discard
	}
	return &Driver{
		cfg:   cfg,
		eval:  eval,
		store: store,
		out:   out,
		log:   log.With("component", "driver"),
	}, nil
}

// Evaluation returns the driver's evaluation pipeline.
func (d *Driver) Evaluation() *EvaluationContext {
	return d.eval
}

// Store returns the progress store the driver reports into.
func (d *Driver) Store() *monitor.Store {
	return d.store
}

// Dimension returns search.dimension, or asks the simulator when it is 0.
func (d *Driver) Dimension(ctx context.Context) (int, error) {
	if n := d.cfg.Search.Dimension; n > 0 {
		return n, nil
	}
	n, err := d.eval.Adapter.QueryExpectedArgumentCount(ctx)
	if err != nil {
		return 0, err
	}
	d.log.Info("simulator expects arguments", "count", n)
	return n, nil
}

// Run optimizes until a stop criterion or cancellation. Cancellation is not
// an error: the best point found so far is reported as interrupted.
func (d *Driver) Run(ctx context.Context) (*Outcome, error) {
	dim, err := d.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	declared, err := d.cfg.Search.ResolveBounds(dim)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bounds: %w", err)
	}
	bounds, err := improvement.BoundsFromConfig(declared)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bounds: %w", err)
	}
	var initial []float64
	if len(d.cfg.Search.Initial) > 0 {
		if len(d.cfg.Search.Initial) != dim {
			return nil, fmt.Errorf("initial vector has %d components, simulator expects %d", len(d.cfg.Search.Initial), dim)
		}
		initial = append(initial, d.cfg.Search.Initial...)
	}

	opt := d.cfg.Optimization
	minimizer, err := improvement.NewWithOptions(opt.Method, improvement.Options{
		Convergence: improvement.ConvergenceFromConfig(opt.Convergence),
		Explorer:    opt.Explorer,
		Selection:   opt.Selection,
	})
	if err != nil {
		return nil, err
	}
	var feasible func(context.Context, []float64) bool
	if opt.Selection == config.SelectFeasibleFirst {
		feasible = d.eval.Objective.Feasible
	}

	run := &models.Run{
		ID:     utils.GenerateRunID(),
		Method: minimizer.Name(),
		Status: models.RunStatusRunning,
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.store.Begin(run, cancel)

	labels := metrics.CreateMethodLabels(minimizer.Name())
	mon := improvement.NewMonitor(opt.ReportEvery, opt.VerboseEvery, d.log)
	d.store.SetStatsSource(func() *models.RunStats {
		return runStats(d.eval.Collector, mon)
	})
	mon.Subscribe(func(ev models.Evaluation) {
		metrics.RecordEvaluation(d.eval.Collector, ev, labels)
		d.store.Observe(ev)
		hits := d.eval.Cache.Stats().Hits
		iterations := mon.Iterations()
		d.store.Update(func(r *models.Run) {
			r.Invocations = d.eval.Invocations()
			r.CacheHits = hits
			r.Iterations = iterations
		})
	})

	d.eval.Collector.Start()
	d.log.Info("optimization started",
		"run_id", run.ID,
		"method", minimizer.Name(),
		"dimension", dim,
		"schedule", d.eval.Objective.Schedule().Name())

	res, err := minimizer.Minimize(runCtx, improvement.Problem{
		Func:    d.eval.Objective.Evaluate,
		Bounds:  bounds,
		Initial: initial,
		Settings: improvement.Settings{
			MaxIterations:  opt.MaxIterations,
			MaxEvaluations: opt.MaxEvaluations,
			Target:         opt.TargetFitness,
			InitialStep:    opt.InitialStep,
			Population:     opt.Population,
			Seed:           opt.Seed,
			Monitor:        mon,
		},
		Feasible: feasible,
	})
	d.eval.Collector.Stop()
	if err != nil {
		d.store.Finish(models.RunStatusFailed, "", err)
		return nil, fmt.Errorf("%s failed: %w", minimizer.Name(), err)
	}

	status := models.RunStatusCompleted
	if res.Interrupted {
		status = models.RunStatusInterrupted
		d.log.Warn("optimization interrupted; reporting best point so far", "evaluations", res.Evaluations)
	}

	// The run context may be gone; completion still needs the simulator.
	out, err := d.complete(context.WithoutCancel(ctx), res)
	out.History = runStats(d.eval.Collector, mon).History
	if h := out.History; h != nil {
		d.log.Info("search trend",
			"trend", h.ImprovementTrend,
			"improvement_pct", h.ImprovementPct,
			"failed", h.Failed,
			"samples", h.Samples)
	}
	d.store.Update(func(r *models.Run) {
		r.Evaluations = res.Evaluations
		r.Iterations = res.Iterations
		r.Invocations = d.eval.Invocations()
		r.CacheHits = d.eval.Cache.Stats().Hits
		if len(res.X) > 0 {
			f := res.F
			r.BestX = append([]float64(nil), res.X...)
			r.BestFitness = &f
		}
	})
	d.store.Finish(status, res.Status, err)
	if p, perr := d.store.Progress(); perr == nil {
		out.Run = p.Run
	}
	return out, err
}

// complete prints the best point and its fitness, clears the cache and
// renders the best point with one live simulator run.
func (d *Driver) complete(ctx context.Context, res *improvement.Result) (*Outcome, error) {
	out := &Outcome{Result: res}
	if len(res.X) == 0 {
		return out, errors.New("no point was evaluated")
	}

	fitness := d.eval.Objective.Evaluate(ctx, res.X)
	fmt.Fprintf(d.out, "Optimized Result: %s\n", FormatVector(res.X))
	fmt.Fprintf(d.out, "Objective Value: %s\n", simulator.FormatParam(fitness))

	if b, err := d.eval.Objective.Breakdown(ctx, res.X); err != nil {
		d.log.Warn("best point has no usable report", "error", err)
	} else {
		out.Breakdown = b
		for _, term := range b.Terms {
			if term.Penalty > 0 {
				d.log.Info("constraint violated at best point",
					"constraint", term.Name,
					"value", term.Value,
					"violation", term.Violation,
					"penalty", term.Penalty)
			}
		}
	}

	d.eval.Cache.Clear()
	report, err := d.eval.Adapter.Invoke(ctx, res.X, simulator.FlagRender)
	out.FinalReport = report
	if report != "" {
		fmt.Fprint(d.out, report)
		if !strings.HasSuffix(report, "\n") {
			fmt.Fprintln(d.out)
		}
	}
	if err != nil {
		return out, fmt.Errorf("final simulator run failed: %w", err)
	}

	d.log.Info("optimization finished",
		"status", res.Status,
		"fitness", fitness,
		"evaluations", res.Evaluations,
		"iterations", res.Iterations,
		"invocations", d.eval.Invocations())
	return out, nil
}

// FormatVector renders v as [v1 v2 ...] with the simulator's number format.
func FormatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = simulator.FormatParam(x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
