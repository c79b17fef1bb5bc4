package objective

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/simtune/internal/report"
	"github.com/GoSim-25-26J-441/simtune/pkg/config"
)

// Kind is how a constraint compares its metric.
type Kind string

const (
	// KindMax bounds the metric from above.
	KindMax Kind = config.KindMax
	// KindMin bounds the metric from below.
	KindMin Kind = config.KindMin
	// KindAbsDiff penalizes |metric - other| unconditionally.
	KindAbsDiff Kind = config.KindAbsDiff
)

// Constraint is one physical limit on a parsed metric.
type Constraint struct {
	Name   string
	Metric string
	Kind   Kind
	Other  string
	Limit  float64
	Weight float64
}

// ConstraintFromConfig converts and validates a declared constraint.
func ConstraintFromConfig(c config.Constraint) (Constraint, error) {
	out := Constraint{
		Name:   c.Name,
		Metric: c.Metric,
		Kind:   Kind(c.Kind),
		Other:  c.Other,
		Limit:  c.Limit,
		Weight: c.Weight,
	}
	if out.Name == "" {
		out.Name = c.Metric
	}
	return out, out.validate()
}

func (c Constraint) validate() error {
	if !report.IsMetric(c.Metric) {
		return fmt.Errorf("constraint %s: unknown metric %q", c.Name, c.Metric)
	}
	switch c.Kind {
	case KindMax, KindMin:
	case KindAbsDiff:
		if !report.IsMetric(c.Other) {
			return fmt.Errorf("constraint %s: unknown other metric %q", c.Name, c.Other)
		}
	default:
		return fmt.Errorf("constraint %s: invalid kind %q", c.Name, c.Kind)
	}
	if c.Weight < 0 || math.IsNaN(c.Weight) {
		return fmt.Errorf("constraint %s: weight must be non-negative", c.Name)
	}
	if math.IsNaN(c.Limit) {
		return fmt.Errorf("constraint %s: limit is NaN", c.Name)
	}
	return nil
}

// Violation returns how far m lies past the constraint, 0 when satisfied.
// The second result is false when the constraint holds. An abs_diff
// constraint is always reported as applied. A non-finite metric violates
// every constraint on it by +Inf.
func (c Constraint) Violation(m report.MetricSet) (float64, bool, error) {
	v, err := m.Get(c.Metric)
	if err != nil {
		return 0, false, err
	}
	if !finite(v) {
		return math.Inf(1), true, nil
	}
	switch c.Kind {
	case KindMax:
		if v > c.Limit {
			return v - c.Limit, true, nil
		}
		return 0, false, nil
	case KindMin:
		if v < c.Limit {
			return c.Limit - v, true, nil
		}
		return 0, false, nil
	case KindAbsDiff:
		o, err := m.Get(c.Other)
		if err != nil {
			return 0, false, err
		}
		if !finite(o) {
			return math.Inf(1), true, nil
		}
		return math.Abs(v - o), true, nil
	default:
		return 0, false, fmt.Errorf("constraint %s: invalid kind %q", c.Name, c.Kind)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
