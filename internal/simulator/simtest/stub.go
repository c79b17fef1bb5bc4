// Package simtest provides a stub simulator for tests. The test binary
// re-executes itself as the simulator: a package's TestMain calls Main,
// which answers as the stub when the helper environment variable is set.
package simtest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

const (
	envHelper = "SIMTUNE_STUB_SIMULATOR"
	envMode   = "SIMTUNE_STUB_MODE"
	envLog    = "SIMTUNE_STUB_LOG"
	envEnergy = "SIMTUNE_STUB_ENERGY"
	envArgc   = "SIMTUNE_STUB_ARGC"
)

// Stub behaviours selected with the Mode option.
const (
	ModeModel    = "model"    // computes a report from the parameters
	ModeGarbage  = "garbage"  // prints text without any metric
	ModeExitCode = "exit"     // prints a model report and exits with status 3
	ModeSleep    = "sleep"    // blocks for a minute before printing
	ModeNoArgc   = "noargc"   // query output lacks the argument count line
	ModePartial  = "partial"  // prints only some metrics
	ModeNegative = "negative" // reports a negative elapsed time
)

const logPrefix = "run"

// Marker is the first base argument the stub receives; everything after it
// is what a real simulator would see.
const Marker = "stub"

// Main runs the stub when the process was launched as one, otherwise the tests.
func Main(m *testing.M) {
	if os.Getenv(envHelper) == "1" {
		os.Exit(run(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// Path is the executable to configure as the simulator.
func Path() string {
	return os.Args[0]
}

// Args returns the base args for the stub followed by extra.
func Args(extra ...string) []string {
	return append([]string{Marker}, extra...)
}

// Option tunes the stub's environment.
type Option func(map[string]string)

// Mode selects the stub behaviour.
func Mode(mode string) Option {
	return func(env map[string]string) { env[envMode] = mode }
}

// Energy overrides the reported energy consumption.
func Energy(v float64) Option {
	return func(env map[string]string) { env[envEnergy] = strconv.FormatFloat(v, 'g', -1, 64) }
}

// ArgumentCount sets the count returned by the no-parameter query.
func ArgumentCount(n int) Option {
	return func(env map[string]string) { env[envArgc] = strconv.Itoa(n) }
}

// LogTo makes every stub run append its argv (after the marker) to path.
func LogTo(path string) Option {
	return func(env map[string]string) { env[envLog] = path }
}

// Env returns the KEY=VALUE entries that turn the test binary into the stub.
func Env(opts ...Option) []string {
	env := map[string]string{envHelper: "1", envMode: ModeModel}
	for _, opt := range opts {
		opt(env)
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// NewLog returns a fresh invocation log path in a test temp directory.
func NewLog(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "invocations.log")
}

// Invocation is one logged stub run.
type Invocation struct {
	Args []string
}

// ReadLog returns the invocations recorded at path, oldest first.
func ReadLog(t testing.TB, path string) []Invocation {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read stub log: %v", err)
	}
	var out []Invocation
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if fields[0] != logPrefix {
			t.Fatalf("bad stub log line %q", line)
		}
		args := []string{}
		for _, field := range fields[1:] {
			s, err := strconv.Unquote(field)
			if err != nil {
				t.Fatalf("bad stub log line %q: %v", line, err)
			}
			args = append(args, s)
		}
		out = append(out, Invocation{Args: args})
	}
	return out
}

// Metrics is the report the stub model prints for a parameter vector.
type Metrics struct {
	TimeElapsed     float64
	Energy          float64
	InitialVelocity float64
	FinalVelocity   float64
	MaxVelocity     float64
	MinVelocity     float64
	MaxAcceleration float64
	MinAcceleration float64
	MaxCentripetal  float64
}

// Model is the stub's physics: every constraint of the default set holds
// near the optimum, which sits at (10, 1) with an elapsed time of 5.
func Model(params []float64) Metrics {
	m := Metrics{
		TimeElapsed:     5,
		Energy:          1000,
		InitialVelocity: 0,
		FinalVelocity:   0,
		MaxVelocity:     20,
		MinVelocity:     1.5,
		MaxAcceleration: 2,
		MinAcceleration: -1,
		MaxCentripetal:  1,
	}
	if len(params) > 0 {
		d := params[0] - 10
		m.TimeElapsed += d * d / 10
		m.Energy += 20 * math.Abs(d)
	}
	if len(params) > 1 {
		d := params[1] - 1
		m.TimeElapsed += d * d
		m.MaxVelocity += 3 * math.Abs(d)
	}
	return m
}

// Report renders metrics in the simulator's output format.
func Report(m Metrics) string {
	var b strings.Builder
	line := func(label string, v float64) {
		fmt.Fprintf(&b, "%s %s\n", label, strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteString("Route simulation finished\n")
	line("Time Elapsed (s):", m.TimeElapsed)
	line("Energy Consumption (W):", m.Energy)
	line("Initial Velocity (m/s):", m.InitialVelocity)
	line("Final Velocity (m/s):", m.FinalVelocity)
	line("Max Velocity (m/s):", m.MaxVelocity)
	line("Min Velocity (m/s):", m.MinVelocity)
	line("Max Acceleration (m/s^2):", m.MaxAcceleration)
	line("Min Acceleration (m/s^2):", m.MinAcceleration)
	line("Max Centripetal Acceleration (m/s^2):", m.MaxCentripetal)
	return b.String()
}

func run(args []string) int {
	if len(args) > 0 && args[0] == Marker {
		args = args[1:]
	}
	if path := os.Getenv(envLog); path != "" {
		if err := appendLog(path, args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	mode := os.Getenv(envMode)
	if len(args) == 0 {
		if mode == ModeNoArgc {
			fmt.Println("usage: simulator calc <route> ...")
			return 1
		}
		argc := os.Getenv(envArgc)
		if argc == "" {
			argc = "2"
		}
		fmt.Println("usage: simulator calc <route> ...")
		fmt.Printf("Expected argument count: %s\n", argc)
		return 1
	}

	var params []float64
	for _, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			continue // flag or non-numeric base arg
		}
		params = append(params, v)
	}
	m := Model(params)
	if s := os.Getenv(envEnergy); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			m.Energy = v
		}
	}

	switch mode {
	case ModeGarbage:
		fmt.Println("segmentation fault (core dumped)")
	case ModeExitCode:
		fmt.Print(Report(m))
		return 3
	case ModeSleep:
		fmt.Println("Route simulation started")
		time.Sleep(time.Minute)
		fmt.Print(Report(m))
	case ModePartial:
		fmt.Printf("Time Elapsed (s): %g\nEnergy Consumption (W): %g\n", m.TimeElapsed, m.Energy)
	case ModeNegative:
		m.TimeElapsed = -m.TimeElapsed
		fmt.Print(Report(m))
	default:
		fmt.Print(Report(m))
	}
	return 0
}

func appendLog(path string, args []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open stub log: %w", err)
	}
	defer f.Close()
	quoted := []string{logPrefix}
	for _, a := range args {
		quoted = append(quoted, strconv.Quote(a))
	}
	_, err = fmt.Fprintln(f, strings.Join(quoted, "\t"))
	return err
}
