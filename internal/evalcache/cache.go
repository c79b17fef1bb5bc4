// Package evalcache memoizes simulator reports by parameter vector and
// decides the snapshot flag passed on each new invocation.
package evalcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/GoSim-25-26J-441/simtune/internal/simulator"
	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// CountPolicy selects what advances the snapshot counter.
type CountPolicy int

const (
	// CountInvocations advances the counter on actual simulator launches only.
	CountInvocations CountPolicy = iota
	// CountLookups advances the counter on every Get, hits included.
	CountLookups
)

// Options configures a Cache.
type Options struct {
	// Tolerance > 0 quantizes components to multiples of Tolerance before
	// keying; 0 keys on the exact bit pattern.
	Tolerance float64
	// SnapshotEvery K > 0 renders every K-th counted evaluation and passes
	// FlagNone otherwise. 0 passes Default on every invocation.
	SnapshotEvery int
	Default       simulator.Flag
	Count         CountPolicy
	Logger        *slog.Logger
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries     int   `json:"entries"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Invocations int64 `json:"invocations"`
	Failures    int64 `json:"failures"`
	Snapshots   int64 `json:"snapshots"`
}

// Cache maps parameter vectors to raw simulator reports.
type Cache struct {
	inv  simulator.Invoker
	opts Options
	log  *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]string
	counter int64
	stats   Stats
}

// New creates a cache in front of inv.
func New(inv simulator.Invoker, opts Options) (*Cache, error) {
	if inv == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if opts.Tolerance < 0 || math.IsNaN(opts.Tolerance) || math.IsInf(opts.Tolerance, 0) {
		return nil, fmt.Errorf("invalid tolerance: %v", opts.Tolerance)
	}
	if opts.SnapshotEvery < 0 {
		return nil, fmt.Errorf("snapshot_every cannot be negative: %d", opts.SnapshotEvery)
	}
	return &Cache{
		inv:     inv,
		opts:    opts,
		log:     logger.Or(opts.Logger).With("component", "evalcache"),
		entries: make(map[string]string),
	}, nil
}

// FromConfig creates a cache from the cache config section.
func FromConfig(inv simulator.Invoker, cfg config.Cache, log *slog.Logger) (*Cache, error) {
	def, err := simulator.ParseFlag(cfg.SnapshotDefault)
	if err != nil {
		return nil, err
	}
	count := CountInvocations
	switch cfg.Count {
	case "", config.CountInvocations:
	case config.CountLookups:
		count = CountLookups
	default:
		return nil, fmt.Errorf("invalid count policy: %s", cfg.Count)
	}
	return New(inv, Options{
		Tolerance:     cfg.Tolerance,
		SnapshotEvery: cfg.SnapshotEvery,
		Default:       def,
		Count:         count,
		Logger:        log,
	})
}

// Get returns the report for vector, invoking the simulator on a miss.
// Concurrent misses on the same key share one invocation. Invocation
// errors are returned with whatever output was captured and are not cached.
func (c *Cache) Get(ctx context.Context, vector []float64) (string, error) {
	key := c.key(vector)

	c.mu.Lock()
	if out, ok := c.entries[key]; ok {
		c.stats.Hits++
		if c.opts.Count == CountLookups {
			c.counter++
		}
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	params := append([]float64(nil), vector...)
	v, err, shared := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		if out, ok := c.entries[key]; ok {
			c.stats.Hits++
			if c.opts.Count == CountLookups {
				c.counter++
			}
			c.mu.Unlock()
			return out, nil
		}
		c.stats.Misses++
		c.counter++
		flag := c.flag(c.counter)
		if flag == simulator.FlagRender {
			c.stats.Snapshots++
		}
		c.stats.Invocations++
		c.mu.Unlock()

		out, err := c.inv.Invoke(ctx, params, flag)
		if err != nil {
			c.mu.Lock()
			c.stats.Failures++
			c.mu.Unlock()
			return out, err
		}

		c.mu.Lock()
		c.entries[key] = out
		c.mu.Unlock()
		return out, nil
	})
	if shared {
		c.log.Debug("shared in-flight evaluation", "vector", params)
	}
	out, _ := v.(string)
	return out, err
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]string)
	c.mu.Unlock()
	c.log.Debug("cache cleared", "entries", n)
}

// Len returns the number of cached reports.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

func (c *Cache) flag(n int64) simulator.Flag {
	k := int64(c.opts.SnapshotEvery)
	if k <= 0 {
		return c.opts.Default
	}
	if n%k == 0 {
		return simulator.FlagRender
	}
	return simulator.FlagNone
}

// key encodes the vector as a fixed-width byte string, so vectors of
// different lengths never collide.
func (c *Cache) key(vector []float64) string {
	buf := make([]byte, 8*len(vector))
	for i, v := range vector {
		if c.opts.Tolerance > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			v = math.Round(v/c.opts.Tolerance) * c.opts.Tolerance
			if v == 0 {
				v = 0 // fold -0 into +0
			}
		}
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return string(buf)
}
