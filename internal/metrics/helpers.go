package metrics

import (
	"math"
	"time"

	"github.com/GoSim-25-26J-441/simtune/pkg/models"
)

// Common metric names
const (
	MetricFitness            = "fitness"
	MetricBestFitness        = "best_fitness"
	MetricEvaluationFailures = "evaluation_failures"
	MetricSimulatorLatency   = "simulator_latency_ms"
	MetricSimulatorErrors    = "simulator_errors"
)

// RecordEvaluation records one objective evaluation. Failed evaluations
// (sentinel or non-finite fitness) count as failures and stay out of the
// fitness series.
func RecordEvaluation(collector *Collector, ev models.Evaluation, labels map[string]string) {
	if ev.Fitness >= math.MaxFloat64 || math.IsNaN(ev.Fitness) || math.IsInf(ev.Fitness, 0) {
		collector.Record(MetricEvaluationFailures, 1, ev.Timestamp, labels)
	} else {
		collector.Record(MetricFitness, ev.Fitness, ev.Timestamp, labels)
	}
	if ev.Improved {
		collector.Record(MetricBestFitness, ev.BestFitness, ev.Timestamp, labels)
	}
}

// RecordSimulatorLatency records the wall time of one simulator invocation
func RecordSimulatorLatency(collector *Collector, d time.Duration, err error, timestamp time.Time, labels map[string]string) {
	collector.Record(MetricSimulatorLatency, float64(d)/float64(time.Millisecond), timestamp, labels)
	if err != nil {
		collector.Record(MetricSimulatorErrors, 1, timestamp, labels)
	}
}

// CreateMethodLabels creates a labels map for a search method
func CreateMethodLabels(method string) map[string]string {
	return map[string]string{
		"method": method,
	}
}

// ConvertToRunStats summarizes the collector into RunStats. It reads the
// running totals and cached aggregations, not the retained points.
func ConvertToRunStats(collector *Collector) *models.RunStats {
	failures := collector.Count(MetricEvaluationFailures)
	stats := &models.RunStats{
		Duration:         collector.Duration(),
		Evaluations:      collector.Count(MetricFitness) + failures,
		Failures:         failures,
		Invocations:      collector.Count(MetricSimulatorLatency),
		SimulatorErrors:  collector.Count(MetricSimulatorErrors),
		Fitness:          collector.Aggregation(MetricFitness),
		SimulatorLatency: collector.Aggregation(MetricSimulatorLatency),
	}
	if best := collector.Aggregation(MetricBestFitness); best != nil {
		b := best.Min
		stats.BestFitness = &b
	}
	return stats
}
