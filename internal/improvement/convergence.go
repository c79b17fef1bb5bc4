package improvement

import (
	"fmt"
	"math"
	"strings"

	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"gonum.org/v1/gonum/stat"
)

// ConvergenceStrategy decides from the recent steps whether a search should stop
type ConvergenceStrategy interface {
	// CheckConvergence reports whether history has converged and why
	CheckConvergence(history []OptimizationStep) (bool, string)
	Name() string
}

// Convergence defaults
const (
	DefaultConvergenceWindow    = 30
	DefaultConvergenceTolerance = 1e-3
	DefaultConvergenceMinSteps  = 3
)

// ConvergenceSettings select and tune a convergence rule. Zero fields take
// the defaults above; an empty Rule means no_improvement.
type ConvergenceSettings struct {
	Rule      string
	Window    int     // trailing steps the rule looks at
	Tolerance float64 // plateau range, relative improvement or coefficient of variation
	MinSteps  int     // steps before any rule may fire
}

func (s ConvergenceSettings) withDefaults() ConvergenceSettings {
	if s.Rule == "" {
		s.Rule = config.ConvergeNoImprovement
	}
	if s.Window <= 0 {
		s.Window = DefaultConvergenceWindow
	}
	if s.Tolerance <= 0 {
		s.Tolerance = DefaultConvergenceTolerance
	}
	if s.MinSteps <= 0 {
		s.MinSteps = DefaultConvergenceMinSteps
	}
	return s
}

// ConvergenceFromConfig converts the optimization.convergence section
func ConvergenceFromConfig(c config.Convergence) ConvergenceSettings {
	return ConvergenceSettings{Rule: c.Rule, Window: c.Window, Tolerance: c.Tolerance, MinSteps: c.MinSteps}
}

// NewConvergence builds the named rule. The none rule returns a nil strategy.
func NewConvergence(s ConvergenceSettings) (ConvergenceStrategy, error) {
	s = s.withDefaults()
	switch strings.ToLower(s.Rule) {
	case config.ConvergeNoImprovement:
		return noImprovement(s), nil
	case config.ConvergePlateau:
		return plateau(s), nil
	case config.ConvergeThreshold:
		return threshold(s), nil
	case config.ConvergeVariance:
		return variance(s), nil
	case config.ConvergeCombined:
		return &anyRule{name: config.ConvergeCombined, rules: []ConvergenceStrategy{
			noImprovement(s), plateau(s), threshold(s),
		}}, nil
	case config.ConvergeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown convergence rule: %s", s.Rule)
	}
}

// windowRule applies test to the scores of the last Window steps. With
// full set, histories shorter than the window never converge.
type windowRule struct {
	name string
	s    ConvergenceSettings
	full bool
	test func(history, window []float64) (bool, string)
}

func (r *windowRule) Name() string { return r.name }

func (r *windowRule) CheckConvergence(history []OptimizationStep) (bool, string) {
	if len(history) < r.s.MinSteps {
		return false, ""
	}
	n := r.s.Window
	if n > len(history) {
		if r.full {
			return false, ""
		}
		n = len(history)
	}
	scores := make([]float64, len(history))
	for i, step := range history {
		scores[i] = step.Score
	}
	return r.test(scores, scores[len(scores)-n:])
}

// noImprovement fires once no step of the window beats the best score
// recorded before it.
func noImprovement(s ConvergenceSettings) *windowRule {
	return &windowRule{name: config.ConvergeNoImprovement, s: s, test: func(history, window []float64) (bool, string) {
		before := history[:len(history)-len(window)]
		if len(before) == 0 || len(window) < s.Window {
			return false, ""
		}
		if best := minOf(before); minOf(window) >= best {
			return true, fmt.Sprintf("no improvement on %g for %d steps", best, len(window))
		}
		return false, ""
	}}
}

func plateau(s ConvergenceSettings) *windowRule {
	return &windowRule{name: config.ConvergePlateau, s: s, full: true, test: func(_, window []float64) (bool, string) {
		if r := maxOf(window) - minOf(window); r <= s.Tolerance {
			return true, fmt.Sprintf("scores within %g for %d steps", r, len(window))
		}
		return false, ""
	}}
}

// threshold compares the first and last score of the window
func threshold(s ConvergenceSettings) *windowRule {
	return &windowRule{name: config.ConvergeThreshold, s: s, full: true, test: func(_, window []float64) (bool, string) {
		first, last := window[0], window[len(window)-1]
		scale := math.Abs(first)
		if scale == 0 {
			scale = 1
		}
		if rel := (first - last) / scale; rel <= s.Tolerance {
			return true, fmt.Sprintf("relative improvement %.4g over %d steps", rel, len(window))
		}
		return false, ""
	}}
}

func variance(s ConvergenceSettings) *windowRule {
	return &windowRule{name: config.ConvergeVariance, s: s, full: true, test: func(_, window []float64) (bool, string) {
		mean, std := stat.PopMeanStdDev(window, nil)
		cv := std
		if mean != 0 {
			cv = std / math.Abs(mean)
		}
		if cv <= s.Tolerance {
			return true, fmt.Sprintf("coefficient of variation %.4g over %d steps", cv, len(window))
		}
		return false, ""
	}}
}

// anyRule converges when any member does
type anyRule struct {
	name  string
	rules []ConvergenceStrategy
}

func (r *anyRule) Name() string { return r.name }

func (r *anyRule) CheckConvergence(history []OptimizationStep) (bool, string) {
	for _, rule := range r.rules {
		if ok, reason := rule.CheckConvergence(history); ok {
			return true, rule.Name() + ": " + reason
		}
	}
	return false, ""
}

func minOf(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
