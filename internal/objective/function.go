// Package objective folds simulator metrics into a single non-negative
// fitness value using constraint-violation penalties.
package objective

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/GoSim-25-26J-441/simtune/internal/report"
	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/GoSim-25-26J-441/simtune/internal/objective"

// Sentinel is the fitness of a vector whose report could not be scored.
const Sentinel = math.MaxFloat64

// Reporter returns the simulator report for a vector.
type Reporter interface {
	Get(ctx context.Context, vector []float64) (string, error)
}

// Term is one constraint's contribution to a score.
type Term struct {
	Name      string  `json:"name"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Violation float64 `json:"violation"`
	Applied   bool    `json:"applied"`
	Penalty   float64 `json:"penalty"`
}

// Breakdown explains a fitness value.
type Breakdown struct {
	Metrics  report.MetricSet `json:"metrics"`
	Base     float64          `json:"base"`
	Terms    []Term           `json:"terms"`
	Total    float64          `json:"total"`
	Feasible bool             `json:"feasible"`
}

// Function is the penalty objective.
type Function struct {
	reporter    Reporter
	constraints []Constraint
	schedule    Schedule
	log         *slog.Logger

	evaluations atomic.Int64
	failures    atomic.Int64

	tracer trace.Tracer
	evals  metric.Int64Counter
}

// New creates an objective over reporter with the given constraints.
func New(reporter Reporter, schedule Schedule, constraints []Constraint, log *slog.Logger) (*Function, error) {
	if reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if schedule == nil {
		schedule = Linear{}
	}
	seen := make(map[string]bool, len(constraints))
	for _, c := range constraints {
		if err := c.validate(); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate constraint name: %s", c.Name)
		}
		seen[c.Name] = true
	}

	evals, err := otel.Meter(instrumentationName).Int64Counter(
		"simtune.objective.evaluations",
		metric.WithDescription("Objective evaluations by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation counter: %w", err)
	}

	return &Function{
		reporter:    reporter,
		constraints: append([]Constraint(nil), constraints...),
		schedule:    schedule,
		log:         logger.Or(log).With("component", "objective"),
		tracer:      otel.Tracer(instrumentationName),
		evals:       evals,
	}, nil
}

// FromConfig creates an objective from the objective config section.
func FromConfig(reporter Reporter, cfg config.Objective, log *slog.Logger) (*Function, error) {
	schedule, err := NewSchedule(cfg.Schedule, cfg.Exponent)
	if err != nil {
		return nil, err
	}
	constraints := make([]Constraint, 0, len(cfg.Constraints))
	for _, c := range cfg.Constraints {
		cc, err := ConstraintFromConfig(c)
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, cc)
	}
	return New(reporter, schedule, constraints, log)
}

// Constraints returns the declared constraints.
func (f *Function) Constraints() []Constraint {
	return append([]Constraint(nil), f.constraints...)
}

// Schedule returns the penalty schedule.
func (f *Function) Schedule() Schedule {
	return f.schedule
}

// Evaluations returns how many times Evaluate has run.
func (f *Function) Evaluations() int64 {
	return f.evaluations.Load()
}

// Failures returns how many evaluations produced the sentinel.
func (f *Function) Failures() int64 {
	return f.failures.Load()
}

// Evaluate returns the fitness of vector. Any failure to obtain or parse
// the report yields Sentinel; the result is never negative or non-finite.
func (f *Function) Evaluate(ctx context.Context, vector []float64) float64 {
	ctx, span := f.tracer.Start(ctx, "objective.evaluate")
	defer span.End()

	f.evaluations.Add(1)
	b, err := f.Breakdown(ctx, vector)
	fitness := Sentinel
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		f.log.Debug("evaluation failed, using sentinel", "vector", vector, "error", err)
	} else if !valid(b.Total) {
		outcome = "invalid"
		f.log.Debug("fitness out of range, using sentinel", "vector", vector, "fitness", b.Total)
	} else {
		fitness = b.Total
	}
	if fitness == Sentinel {
		f.failures.Add(1)
	}

	f.evals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	span.SetAttributes(
		attribute.String("objective.outcome", outcome),
		attribute.Float64("objective.fitness", fitness),
	)
	return fitness
}

// Breakdown fetches and scores the report for vector.
func (f *Function) Breakdown(ctx context.Context, vector []float64) (*Breakdown, error) {
	out, err := f.reporter.Get(ctx, vector)
	if err != nil {
		f.log.Debug("simulator report unavailable", "vector", vector, "error", err)
	}
	m, perr := report.Parse(out)
	if perr != nil {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", err, perr)
		}
		return nil, perr
	}
	return f.Score(m)
}

// Feasible reports whether vector has a usable report that satisfies every
// bound constraint.
func (f *Function) Feasible(ctx context.Context, vector []float64) bool {
	b, err := f.Breakdown(ctx, vector)
	return err == nil && b.Feasible
}

// Score applies the constraints to an already parsed metric set.
func (f *Function) Score(m report.MetricSet) (*Breakdown, error) {
	b := &Breakdown{
		Metrics:  m,
		Base:     math.Abs(m.TimeElapsed),
		Terms:    make([]Term, 0, len(f.constraints)),
		Feasible: true,
	}
	total := b.Base
	for _, c := range f.constraints {
		violation, applied, err := c.Violation(m)
		if err != nil {
			return nil, err
		}
		value, _ := m.Get(c.Metric)
		t := Term{Name: c.Name, Metric: c.Metric, Value: value, Violation: violation, Applied: applied}
		switch {
		case math.IsInf(violation, 1):
			t.Penalty = math.Inf(1)
			total = math.Inf(1)
		case applied:
			t.Penalty = f.schedule.Penalty(violation, c.Weight)
			total += t.Penalty
		}
		if (c.Kind != KindAbsDiff && applied) || math.IsInf(violation, 1) {
			b.Feasible = false
		}
		b.Terms = append(b.Terms, t)
	}
	b.Total = total
	return b, nil
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
