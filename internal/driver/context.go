package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/simtune/internal/evalcache"
	"github.com/GoSim-25-26J-441/simtune/internal/metrics"
	"github.com/GoSim-25-26J-441/simtune/internal/objective"
	"github.com/GoSim-25-26J-441/simtune/internal/simulator"
	"github.com/GoSim-25-26J-441/simtune/pkg/config"
)

// EvaluationContext owns the evaluation pipeline of one optimization:
// adapter, cache in front of it, the penalty objective and the metrics
// history they feed.
type EvaluationContext struct {
	Adapter   *simulator.Adapter
	Cache     *evalcache.Cache
	Objective *objective.Function
	Collector *metrics.Collector
}

// NewEvaluationContext builds the pipeline from cfg.
func NewEvaluationContext(cfg *config.Config, log *slog.Logger) (*EvaluationContext, error) {
	adapter, err := simulator.FromConfig(cfg.Simulator, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulator adapter: %w", err)
	}
	collector := metrics.NewCollector()
	cache, err := evalcache.FromConfig(&timedInvoker{inner: adapter, collector: collector}, cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation cache: %w", err)
	}
	fn, err := objective.FromConfig(cache, cfg.Objective, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create objective: %w", err)
	}
	return &EvaluationContext{
		Adapter:   adapter,
		Cache:     cache,
		Objective: fn,
		Collector: collector,
	}, nil
}

// Evaluate returns the fitness of vector through the cache.
func (e *EvaluationContext) Evaluate(ctx context.Context, vector []float64) float64 {
	return e.Objective.Evaluate(ctx, vector)
}

// Invocations returns the number of simulator processes launched.
func (e *EvaluationContext) Invocations() int64 {
	return e.Adapter.Invocations()
}

// timedInvoker records the latency of every cache miss in the collector.
type timedInvoker struct {
	inner     simulator.Invoker
	collector *metrics.Collector
}

func (t *timedInvoker) Invoke(ctx context.Context, vector []float64, flag simulator.Flag) (string, error) {
	start := time.Now()
	out, err := t.inner.Invoke(ctx, vector, flag)
	metrics.RecordSimulatorLatency(t.collector, time.Since(start), err, time.Now(), nil)
	return out, err
}
