package config

import (
	"fmt"
	"math"
	"os"
)

// Schedules, constraint kinds and cache policies accepted by the loader
const (
	ScheduleLinear   = "linear"
	ScheduleExponent = "exponent"

	KindMax     = "max"
	KindMin     = "min"
	KindAbsDiff = "abs_diff"

	CountInvocations = "invocations"
	CountLookups     = "lookups"

	SnapshotOmit   = "omit"
	SnapshotRender = "render"
	SnapshotNone   = "none"
)

// Convergence rules, explorers and selection strategies
const (
	ConvergeNoImprovement = "no_improvement"
	ConvergePlateau       = "plateau"
	ConvergeThreshold     = "threshold"
	ConvergeVariance      = "variance"
	ConvergeCombined      = "combined"
	ConvergeNone          = "none"

	ExplorerDefault      = "default"
	ExplorerConservative = "conservative"
	ExplorerAggressive   = "aggressive"

	SelectBestScore     = "best_score"
	SelectFeasibleFirst = "feasible_first"
)

// DefaultPenaltyWeight is the weight applied to every default constraint
const DefaultPenaltyWeight = 100000

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used for the two-parameter
// speed/strategy search against the race simulator.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Simulator: Simulator{
			Path: "./asc-simulation.exe",
			Args: []string{"calc"},
		},
		Search: Search{
			Bounds: []Bound{
				{Lower: 0, Upper: 65},
				{Lower: 0, Upper: 5, Integer: true},
			},
		},
		Objective: Objective{
			Schedule:    ScheduleLinear,
			Constraints: DefaultConstraints(),
		},
		Cache: Cache{
			SnapshotDefault: SnapshotOmit,
			Count:           CountInvocations,
		},
		Optimization: Optimization{
			Method:         "buckshot",
			MaxIterations:  10000000,
			MaxEvaluations: 10000000,
			Population:     2,
			ReportEvery:    10,
			VerboseEvery:   50,
		},
	}
}

// DefaultConstraints returns the physical limits for the race vehicle
func DefaultConstraints() []Constraint {
	w := float64(DefaultPenaltyWeight)
	return []Constraint{
		{Name: "energy_cap", Metric: "energy_consumption", Kind: KindMax, Limit: 1300, Weight: w},
		{Name: "energy_floor", Metric: "energy_consumption", Kind: KindMin, Limit: 0, Weight: w},
		{Name: "max_velocity", Metric: "max_velocity", Kind: KindMax, Limit: 30, Weight: w},
		{Name: "min_velocity", Metric: "min_velocity", Kind: KindMin, Limit: 1, Weight: w},
		{Name: "max_acceleration", Metric: "max_acceleration", Kind: KindMax, Limit: 3, Weight: w},
		{Name: "max_deceleration", Metric: "min_acceleration", Kind: KindMin, Limit: -2, Weight: w},
		{Name: "max_centripetal", Metric: "max_centripetal_acceleration", Kind: KindMax, Limit: 3, Weight: w},
		{Name: "return_to_start_speed", Metric: "final_velocity", Kind: KindAbsDiff, Other: "initial_velocity", Weight: w},
	}
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", cfg.LogFormat)
	}

	if err := validateSimulator(&cfg.Simulator); err != nil {
		return fmt.Errorf("simulator validation failed: %w", err)
	}
	if err := validateSearch(&cfg.Search); err != nil {
		return fmt.Errorf("search validation failed: %w", err)
	}
	if err := validateObjective(&cfg.Objective); err != nil {
		return fmt.Errorf("objective validation failed: %w", err)
	}
	if err := validateCache(&cfg.Cache); err != nil {
		return fmt.Errorf("cache validation failed: %w", err)
	}
	if err := validateOptimization(&cfg.Optimization); err != nil {
		return fmt.Errorf("optimization validation failed: %w", err)
	}
	return nil
}

// validateSimulator validates the simulator launch settings
func validateSimulator(s *Simulator) error {
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	timeout, err := s.GetTimeout()
	if err != nil {
		return fmt.Errorf("invalid timeout %s: %w", s.Timeout, err)
	}
	if timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", s.Timeout)
	}
	return nil
}

// validateSearch validates the search space
func validateSearch(s *Search) error {
	if s.Dimension < 0 {
		return fmt.Errorf("dimension cannot be negative, got %d", s.Dimension)
	}
	for i, b := range s.Bounds {
		if err := validateBound(b); err != nil {
			return fmt.Errorf("bound %d: %w", i, err)
		}
	}
	if s.DefaultBound != nil {
		if err := validateBound(*s.DefaultBound); err != nil {
			return fmt.Errorf("default_bound: %w", err)
		}
	}
	if s.Dimension > 0 && s.DefaultBound == nil && len(s.Bounds) != s.Dimension {
		return fmt.Errorf("dimension %d needs %d bounds or a default_bound, got %d bounds", s.Dimension, s.Dimension, len(s.Bounds))
	}
	if len(s.Initial) > 0 && s.Dimension > 0 && len(s.Initial) != s.Dimension {
		return fmt.Errorf("initial vector has %d components, dimension is %d", len(s.Initial), s.Dimension)
	}
	return nil
}

func validateBound(b Bound) error {
	if b.Lower > b.Upper {
		return fmt.Errorf("lower %g exceeds upper %g", b.Lower, b.Upper)
	}
	for _, v := range b.Values {
		if v < b.Lower || v > b.Upper {
			return fmt.Errorf("discrete value %g outside [%g, %g]", v, b.Lower, b.Upper)
		}
	}
	return nil
}

// validateObjective validates the penalty schedule and constraints
func validateObjective(o *Objective) error {
	switch o.Schedule {
	case ScheduleLinear:
	case ScheduleExponent:
		if o.Exponent <= 0 {
			return fmt.Errorf("exponent schedule needs a positive exponent, got %g", o.Exponent)
		}
	default:
		return fmt.Errorf("invalid schedule: %s (must be linear or exponent)", o.Schedule)
	}

	names := make(map[string]bool)
	for i, c := range o.Constraints {
		if c.Name == "" {
			return fmt.Errorf("constraint %d: name cannot be empty", i)
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate constraint name: %s", c.Name)
		}
		names[c.Name] = true
		if c.Metric == "" {
			return fmt.Errorf("constraint %s: metric cannot be empty", c.Name)
		}
		switch c.Kind {
		case KindMax, KindMin:
		case KindAbsDiff:
			if c.Other == "" {
				return fmt.Errorf("constraint %s: abs_diff needs an 'other' metric", c.Name)
			}
		default:
			return fmt.Errorf("constraint %s: invalid kind %s (must be max, min, or abs_diff)", c.Name, c.Kind)
		}
		if c.Weight < 0 {
			return fmt.Errorf("constraint %s: weight cannot be negative, got %g", c.Name, c.Weight)
		}
	}
	return nil
}

// validateCache validates the cache policy
func validateCache(c *Cache) error {
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance cannot be negative, got %g", c.Tolerance)
	}
	if c.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every cannot be negative, got %d", c.SnapshotEvery)
	}
	switch c.SnapshotDefault {
	case "", SnapshotOmit, SnapshotRender, SnapshotNone:
	default:
		return fmt.Errorf("invalid snapshot_default: %s (must be omit, render, or none)", c.SnapshotDefault)
	}
	switch c.Count {
	case "", CountInvocations, CountLookups:
	default:
		return fmt.Errorf("invalid count: %s (must be invocations or lookups)", c.Count)
	}
	return nil
}

// validateOptimization validates the optimization configuration
func validateOptimization(o *Optimization) error {
	if o.Method == "" {
		return fmt.Errorf("optimization method cannot be empty")
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative, got %d", o.MaxIterations)
	}
	if o.MaxEvaluations < 0 {
		return fmt.Errorf("max_evaluations cannot be negative, got %d", o.MaxEvaluations)
	}
	if o.Population < 0 {
		return fmt.Errorf("population cannot be negative, got %d", o.Population)
	}
	if o.InitialStep < 0 {
		return fmt.Errorf("initial_step cannot be negative, got %g", o.InitialStep)
	}
	if o.ReportEvery < 0 || o.VerboseEvery < 0 {
		return fmt.Errorf("report_every and verbose_every cannot be negative")
	}
	switch o.Convergence.Rule {
	case "", ConvergeNoImprovement, ConvergePlateau, ConvergeThreshold, ConvergeVariance, ConvergeCombined, ConvergeNone:
	default:
		return fmt.Errorf("invalid convergence rule: %s", o.Convergence.Rule)
	}
	if o.Convergence.Window < 0 || o.Convergence.MinSteps < 0 {
		return fmt.Errorf("convergence window and min_steps cannot be negative")
	}
	if o.Convergence.Tolerance < 0 || math.IsNaN(o.Convergence.Tolerance) {
		return fmt.Errorf("convergence tolerance must be non-negative, got %g", o.Convergence.Tolerance)
	}
	switch o.Explorer {
	case "", ExplorerDefault, ExplorerConservative, ExplorerAggressive:
	default:
		return fmt.Errorf("invalid explorer: %s (must be default, conservative or aggressive)", o.Explorer)
	}
	switch o.Selection {
	case "", SelectBestScore, SelectFeasibleFirst:
	default:
		return fmt.Errorf("invalid selection: %s (must be best_score or feasible_first)", o.Selection)
	}
	return nil
}
