// Package simulator launches the external simulator for one parameter vector
// and returns its raw text report.
package simulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GoSim-25-26J-441/simtune/internal/report"
	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/GoSim-25-26J-441/simtune/internal/simulator"

// Flag is the optional trailing argument that controls rendering.
type Flag int

const (
	// FlagOmit passes no trailing argument.
	FlagOmit Flag = iota
	// FlagRender passes an empty argument, asking the simulator to write its plots.
	FlagRender
	// FlagNone passes the literal "none", suppressing plots.
	FlagNone
)

func (f Flag) String() string {
	switch f {
	case FlagRender:
		return "render"
	case FlagNone:
		return "none"
	default:
		return "omit"
	}
}

// ParseFlag maps a config value (omit, render, none) to a Flag.
func ParseFlag(s string) (Flag, error) {
	switch s {
	case "", config.SnapshotOmit:
		return FlagOmit, nil
	case config.SnapshotRender:
		return FlagRender, nil
	case config.SnapshotNone:
		return FlagNone, nil
	default:
		return FlagOmit, fmt.Errorf("unknown snapshot flag: %s", s)
	}
}

func (f Flag) arg() (string, bool) {
	switch f {
	case FlagRender:
		return "", true
	case FlagNone:
		return "none", true
	default:
		return "", false
	}
}

// Invoker runs one simulation.
type Invoker interface {
	Invoke(ctx context.Context, vector []float64, flag Flag) (string, error)
}

// ErrArgumentCount is returned when the simulator does not report how many
// parameters it expects.
var ErrArgumentCount = errors.New("cannot determine expected argument count")

// Options configures an Adapter.
type Options struct {
	Path      string
	Args      []string
	QueryArgs []string
	Dir       string
	Env       []string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Adapter invokes the simulator as a blocking subprocess.
type Adapter struct {
	opts           Options
	log            *slog.Logger
	maxPlaceholder int // highest {i} used in Args, -1 when parameters are appended

	invocations atomic.Int64

	tracer  trace.Tracer
	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

// New creates an Adapter. Instruments come from the global OpenTelemetry providers.
func New(opts Options) (*Adapter, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("simulator path is required")
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("simulator timeout cannot be negative: %s", opts.Timeout)
	}

	meter := otel.Meter(instrumentationName)
	calls, err := meter.Int64Counter(
		"simtune.simulator.invocations",
		metric.WithDescription("Total number of simulator processes launched"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation counter: %w", err)
	}
	latency, err := meter.Float64Histogram(
		"simtune.simulator.latency",
		metric.WithDescription("Simulator wall-clock run time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}

	a := &Adapter{
		opts:           opts,
		log:            logger.Or(opts.Logger).With("component", "simulator"),
		maxPlaceholder: -1,
		tracer:         otel.Tracer(instrumentationName),
		calls:          calls,
		latency:        latency,
	}
	for _, arg := range opts.Args {
		if i, ok := placeholderIndex(arg); ok && i > a.maxPlaceholder {
			a.maxPlaceholder = i
		}
	}
	return a, nil
}

// FromConfig creates an Adapter from the simulator config section.
func FromConfig(cfg config.Simulator, log *slog.Logger) (*Adapter, error) {
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid simulator timeout %s: %w", cfg.Timeout, err)
	}
	return New(Options{
		Path:      cfg.Path,
		Args:      cfg.Args,
		QueryArgs: cfg.QueryArgs,
		Dir:       cfg.Dir,
		Env:       cfg.Env,
		Timeout:   timeout,
		Logger:    log,
	})
}

// Invocations returns the number of processes launched so far.
func (a *Adapter) Invocations() int64 {
	return a.invocations.Load()
}

// Args builds the argument list (without the executable) for a vector.
// Parameters replace {i} placeholders when the base args contain any,
// otherwise they are appended in positional order.
func (a *Adapter) Args(vector []float64, flag Flag) []string {
	params := make([]string, len(vector))
	for i, v := range vector {
		params[i] = FormatParam(v)
	}

	args := make([]string, 0, len(a.opts.Args)+len(params)+1)
	for _, arg := range a.opts.Args {
		if i, ok := placeholderIndex(arg); ok && i < len(params) {
			args = append(args, params[i])
			continue
		}
		args = append(args, arg)
	}
	if a.maxPlaceholder < 0 {
		args = append(args, params...)
	}
	if s, ok := flag.arg(); ok {
		args = append(args, s)
	}
	return args
}

// Invoke runs the simulator for vector and returns its standard output.
// The exit status is not inspected; a failing simulator shows up as a
// report the parser rejects. A non-nil error means the process could not
// be launched or was stopped by the context.
func (a *Adapter) Invoke(ctx context.Context, vector []float64, flag Flag) (string, error) {
	if a.maxPlaceholder >= len(vector) {
		return "", fmt.Errorf("vector has %d components but simulator args reference {%d}", len(vector), a.maxPlaceholder)
	}
	return a.run(ctx, a.Args(vector, flag), flag)
}

// QueryExpectedArgumentCount runs the simulator without parameters and
// reads the "Expected argument count:" line.
func (a *Adapter) QueryExpectedArgumentCount(ctx context.Context) (int, error) {
	out, err := a.run(ctx, a.opts.QueryArgs, FlagOmit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArgumentCount, err)
	}
	n, err := report.Int(out, report.LabelExpectedArgumentCount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArgumentCount, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: simulator reported %d", ErrArgumentCount, n)
	}
	return n, nil
}

func (a *Adapter) run(ctx context.Context, args []string, flag Flag) (string, error) {
	ctx, span := a.tracer.Start(ctx, "simulator.invoke", trace.WithAttributes(
		attribute.String("simulator.flag", flag.String()),
		attribute.Int("simulator.args", len(args)),
	))
	defer span.End()

	runCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, a.opts.Path, args...)
	cmd.Dir = a.opts.Dir
	if len(a.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), a.opts.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	n := a.invocations.Add(1)

	var exitErr *exec.ExitError
	switch {
	case runCtx.Err() != nil:
		err = fmt.Errorf("simulator stopped after %s: %w", elapsed.Round(time.Millisecond), runCtx.Err())
	case err == nil:
	case errors.As(err, &exitErr):
		a.log.Debug("simulator exited with non-zero status",
			"invocation", n,
			"exit_code", exitErr.ExitCode(),
			"stderr", truncate(stderr.String(), 200))
		err = nil
	default:
		err = fmt.Errorf("failed to launch simulator %s: %w", a.opts.Path, err)
	}

	attrs := metric.WithAttributes(
		attribute.String("flag", flag.String()),
		attribute.Bool("failed", err != nil),
	)
	a.calls.Add(ctx, 1, attrs)
	a.latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.log.Warn("simulator invocation failed", "invocation", n, "error", err)
		return stdout.String(), err
	}
	a.log.Debug("simulator invocation finished",
		"invocation", n,
		"flag", flag.String(),
		"duration", elapsed,
		"bytes", stdout.Len())
	return stdout.String(), nil
}

// FormatParam renders one vector component as a command-line argument.
func FormatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func placeholderIndex(arg string) (int, bool) {
	if len(arg) < 3 || arg[0] != '{' || arg[len(arg)-1] != '}' {
		return 0, false
	}
	i, err := strconv.Atoi(arg[1 : len(arg)-1])
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
