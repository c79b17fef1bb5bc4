package evalcache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/simtune/internal/simulator"
	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
)

type call struct {
	vector []float64
	flag   simulator.Flag
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []call
	fail  bool
	delay time.Duration
}

func (f *fakeInvoker) Invoke(ctx context.Context, vector []float64, flag simulator.Flag) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{vector: append([]float64(nil), vector...), flag: flag})
	if f.fail {
		return "", errors.New("exec: not found")
	}
	return fmt.Sprintf("Run: %d\nX: %v\n", len(f.calls), vector), nil
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newCache(t *testing.T, inv simulator.Invoker, opts Options) *Cache {
	t.Helper()
	opts.Logger = logger.Discard()
	c, err := New(inv, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	inv := &fakeInvoker{}
	tests := []struct {
		name string
		inv  simulator.Invoker
		opts Options
	}{
		{"nil invoker", nil, Options{}},
		{"negative tolerance", inv, Options{Tolerance: -1}},
		{"nan tolerance", inv, Options{Tolerance: math.NaN()}},
		{"negative snapshot", inv, Options{SnapshotEvery: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.inv, tt.opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestGetIsDeterministic(t *testing.T) {
	inv := &fakeInvoker{}
	c := newCache(t, inv, Options{})
	ctx := context.Background()

	first, err := c.Get(ctx, []float64{10, 1})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := c.Get(ctx, []float64{10, 1})
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if again != first {
			t.Fatalf("expected identical report, got %q vs %q", again, first)
		}
	}
	if inv.count() != 1 {
		t.Fatalf("expected a single invocation, got %d", inv.count())
	}

	s := c.Stats()
	if s.Hits != 5 || s.Misses != 1 || s.Invocations != 1 || s.Entries != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestExactKeys(t *testing.T) {
	inv := &fakeInvoker{}
	c := newCache(t, inv, Options{})
	ctx := context.Background()

	vectors := [][]float64{
		{1, 2},
		{1, 2.0000000000000004},
		{0},
		{math.Copysign(0, -1)},
		{1, 2, 0},
	}
	for _, v := range vectors {
		if _, err := c.Get(ctx, v); err != nil {
			t.Fatalf("Get(%v): %v", v, err)
		}
	}
	if inv.count() != len(vectors) {
		t.Fatalf("expected %d distinct invocations, got %d", len(vectors), inv.count())
	}
	if c.Len() != len(vectors) {
		t.Fatalf("expected %d entries, got %d", len(vectors), c.Len())
	}
}

func TestToleranceKeys(t *testing.T) {
	inv := &fakeInvoker{}
	c := newCache(t, inv, Options{Tolerance: 0.01})
	ctx := context.Background()

	for _, v := range [][]float64{{1.001, 2}, {0.999, 2.002}, {1.0, 2.0}} {
		if _, err := c.Get(ctx, v); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if inv.count() != 1 {
		t.Fatalf("expected vectors within tolerance to share an entry, got %d invocations", inv.count())
	}
	if _, err := c.Get(ctx, []float64{1.02, 2}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inv.count() != 2 {
		t.Fatalf("expected a new invocation outside tolerance, got %d", inv.count())
	}
}

func TestCallerMutationDoesNotAffectInvocation(t *testing.T) {
	inv := &fakeInvoker{}
	c := newCache(t, inv, Options{})
	v := []float64{3, 4}
	if _, err := c.Get(context.Background(), v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	v[0] = 99
	if inv.calls[0].vector[0] != 3 {
		t.Fatalf("invoker saw caller mutation: %v", inv.calls[0].vector)
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	inv := &fakeInvoker{fail: true}
	c := newCache(t, inv, Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		out, err := c.Get(ctx, []float64{1})
		if err == nil {
			t.Fatalf("expected invocation error")
		}
		if out != "" {
			t.Fatalf("expected empty report, got %q", out)
		}
	}
	if inv.count() != 2 {
		t.Fatalf("expected failed invocation to be retried on next lookup, got %d", inv.count())
	}
	if s := c.Stats(); s.Failures != 2 || s.Entries != 0 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestClear(t *testing.T) {
	inv := &fakeInvoker{}
	c := newCache(t, inv, Options{})
	ctx := context.Background()

	if _, err := c.Get(ctx, []float64{10, 1}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, got %d", c.Len())
	}
	if _, err := c.Get(ctx, []float64{10, 1}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inv.count() != 2 {
		t.Fatalf("expected a live invocation after Clear, got %d", inv.count())
	}
}

func TestSnapshotCadence(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		calls [][]float64
		want  []simulator.Flag
	}{
		{
			name:  "disabled omits flag",
			opts:  Options{},
			calls: [][]float64{{1}, {2}, {3}},
			want:  []simulator.Flag{simulator.FlagOmit, simulator.FlagOmit, simulator.FlagOmit},
		},
		{
			name:  "disabled with none default",
			opts:  Options{Default: simulator.FlagNone},
			calls: [][]float64{{1}, {2}},
			want:  []simulator.Flag{simulator.FlagNone, simulator.FlagNone},
		},
		{
			name:  "every third invocation",
			opts:  Options{SnapshotEvery: 3},
			calls: [][]float64{{1}, {2}, {3}, {4}, {5}, {6}},
			want: []simulator.Flag{
				simulator.FlagNone, simulator.FlagNone, simulator.FlagRender,
				simulator.FlagNone, simulator.FlagNone, simulator.FlagRender,
			},
		},
		{
			name:  "hits do not advance invocation counter",
			opts:  Options{SnapshotEvery: 2},
			calls: [][]float64{{1}, {1}, {1}, {2}},
			want:  []simulator.Flag{simulator.FlagNone, simulator.FlagRender},
		},
		{
			name:  "hits advance lookup counter",
			opts:  Options{SnapshotEvery: 2, Count: CountLookups},
			calls: [][]float64{{1}, {1}, {2}, {3}},
			want:  []simulator.Flag{simulator.FlagNone, simulator.FlagNone, simulator.FlagRender},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{}
			c := newCache(t, inv, tt.opts)
			for _, v := range tt.calls {
				if _, err := c.Get(context.Background(), v); err != nil {
					t.Fatalf("Get: %v", err)
				}
			}
			if len(inv.calls) != len(tt.want) {
				t.Fatalf("expected %d invocations, got %d", len(tt.want), len(inv.calls))
			}
			for i, want := range tt.want {
				if got := inv.calls[i].flag; got != want {
					t.Fatalf("invocation %d: flag %s, want %s", i+1, got, want)
				}
			}
		})
	}
}

func TestConcurrentMissesShareInvocation(t *testing.T) {
	inv := &fakeInvoker{delay: 50 * time.Millisecond}
	c := newCache(t, inv, Options{})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := c.Get(context.Background(), []float64{7, 7})
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = out
		}(i)
	}
	wg.Wait()

	if inv.count() != 1 {
		t.Fatalf("expected one invocation for concurrent misses, got %d", inv.count())
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatalf("expected all callers to see the same report")
		}
	}
}

func TestFromConfig(t *testing.T) {
	inv := &fakeInvoker{}
	c, err := FromConfig(inv, config.Cache{SnapshotEvery: 4, SnapshotDefault: config.SnapshotNone, Count: config.CountLookups}, logger.Discard())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if c.opts.Count != CountLookups || c.opts.Default != simulator.FlagNone || c.opts.SnapshotEvery != 4 {
		t.Fatalf("unexpected options: %+v", c.opts)
	}
	if _, err := FromConfig(inv, config.Cache{Count: "sometimes"}, nil); err == nil {
		t.Fatalf("expected error for bad count policy")
	}
	if _, err := FromConfig(inv, config.Cache{SnapshotDefault: "maybe"}, nil); err == nil {
		t.Fatalf("expected error for bad snapshot default")
	}
}
