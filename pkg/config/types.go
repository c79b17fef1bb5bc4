package config

import "time"

// Config represents the complete harness configuration
type Config struct {
	LogLevel     string       `yaml:"log_level"`
	LogFormat    string       `yaml:"log_format"` // text or json
	Simulator    Simulator    `yaml:"simulator"`
	Search       Search       `yaml:"search"`
	Objective    Objective    `yaml:"objective"`
	Cache        Cache        `yaml:"cache"`
	Optimization Optimization `yaml:"optimization"`
	Server       *Server      `yaml:"server,omitempty"`
	Telemetry    *Telemetry   `yaml:"telemetry,omitempty"`
}

// Simulator describes how the external simulator is launched
type Simulator struct {
	Path      string   `yaml:"path"`
	Args      []string `yaml:"args,omitempty"`       // base args; may contain {0}, {1}, ... placeholders
	QueryArgs []string `yaml:"query_args,omitempty"` // args for the argument-count query; none by default
	Dir       string   `yaml:"dir,omitempty"`
	Env       []string `yaml:"env,omitempty"`     // KEY=VALUE entries added to the inherited environment
	Timeout   string   `yaml:"timeout,omitempty"` // e.g. "30s"; empty disables the timeout
}

// Search describes the search space
type Search struct {
	Dimension    int       `yaml:"dimension,omitempty"` // 0 queries the simulator
	Bounds       []Bound   `yaml:"bounds"`
	DefaultBound *Bound    `yaml:"default_bound,omitempty"` // used for positions past len(Bounds)
	Initial      []float64 `yaml:"initial,omitempty"`
}

// Bound is the closed interval allowed for one parameter position
type Bound struct {
	Lower   float64   `yaml:"lower"`
	Upper   float64   `yaml:"upper"`
	Integer bool      `yaml:"integer,omitempty"`
	Values  []float64 `yaml:"values,omitempty"` // discrete set, nearest member wins
}

// Objective describes the penalty schedule and declared constraints
type Objective struct {
	Schedule    string       `yaml:"schedule"` // linear or exponent
	Exponent    float64      `yaml:"exponent,omitempty"`
	Constraints []Constraint `yaml:"constraints"`
}

// Constraint is one physical bound on a parsed metric
type Constraint struct {
	Name   string  `yaml:"name"`
	Metric string  `yaml:"metric"`
	Kind   string  `yaml:"kind"`            // max, min or abs_diff
	Other  string  `yaml:"other,omitempty"` // second metric for abs_diff
	Limit  float64 `yaml:"limit,omitempty"`
	Weight float64 `yaml:"weight"`
}

// Cache configures the evaluation cache and snapshot cadence
type Cache struct {
	Tolerance       float64 `yaml:"tolerance,omitempty"`        // 0 = exact keys
	SnapshotEvery   int     `yaml:"snapshot_every,omitempty"`   // 0 disables periodic snapshots
	SnapshotDefault string  `yaml:"snapshot_default,omitempty"` // flag when snapshots are disabled: omit, render or none
	Count           string  `yaml:"count,omitempty"`            // invocations or lookups
}

// Optimization configures the minimizer and its budget
type Optimization struct {
	Method         string   `yaml:"method"` // nelder-mead, cmaes, buckshot, coordinate
	MaxIterations  int      `yaml:"max_iterations,omitempty"`
	MaxEvaluations int      `yaml:"max_evaluations,omitempty"`
	TargetFitness  *float64 `yaml:"target_fitness,omitempty"`
	Population     int      `yaml:"population,omitempty"`
	Seed           int64    `yaml:"seed,omitempty"`
	InitialStep    float64  `yaml:"initial_step,omitempty"`
	ReportEvery    int      `yaml:"report_every,omitempty"`
	VerboseEvery   int      `yaml:"verbose_every,omitempty"`

	Convergence Convergence `yaml:"convergence,omitempty"` // early stopping, checked every iteration
	Explorer    string      `yaml:"explorer,omitempty"`    // coordinate neighborhood: default, conservative, aggressive
	Selection   string      `yaml:"selection,omitempty"`   // buckshot winner: best_score, feasible_first
}

// Convergence configures early stopping on the best score per iteration.
// Zero values select the defaults.
type Convergence struct {
	Rule      string  `yaml:"rule,omitempty"` // no_improvement, plateau, threshold, variance, combined, none
	Window    int     `yaml:"window,omitempty"`
	Tolerance float64 `yaml:"tolerance,omitempty"`
	MinSteps  int     `yaml:"min_steps,omitempty"`
}

// Server configures the optional progress monitor endpoints
type Server struct {
	HTTPAddr string `yaml:"http_addr,omitempty"`
	GRPCAddr string `yaml:"grpc_addr,omitempty"`
}

// Telemetry toggles OpenTelemetry exporters
type Telemetry struct {
	Metrics bool `yaml:"metrics"`
	Tracing bool `yaml:"tracing"` // spans printed to stderr
}

// GetTimeout parses the timeout string to time.Duration
func (s *Simulator) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(s.Timeout)
}
