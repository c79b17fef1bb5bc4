package improvement

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/GoSim-25-26J-441/simtune/pkg/config"
)

// ParameterExplorer defines strategies for exploring the parameter space
type ParameterExplorer interface {
	// GenerateNeighbors creates neighboring vectors by moving base by up to
	// steps[i] along each position; results are projected into bounds
	GenerateNeighbors(base, steps []float64, bounds Bounds) [][]float64
	// Name returns the name of the exploration strategy
	Name() string
}

// DefaultExplorer moves one position at a time by plus or minus its step
type DefaultExplorer struct {
	name      string
	stepScale float64
	diagonal  bool
}

// NewDefaultExplorer creates a new default parameter explorer
func NewDefaultExplorer() *DefaultExplorer {
	return &DefaultExplorer{name: config.ExplorerDefault, stepScale: 1.0}
}

// NewExplorer returns the named neighborhood: default moves by the full
// step, conservative by half of it, aggressive by twice the step and along
// every pair of positions as well.
func NewExplorer(name string) (*DefaultExplorer, error) {
	switch strings.ToLower(name) {
	case "", config.ExplorerDefault:
		return NewDefaultExplorer(), nil
	case config.ExplorerConservative:
		return &DefaultExplorer{name: config.ExplorerConservative, stepScale: 0.5}, nil
	case config.ExplorerAggressive:
		return &DefaultExplorer{name: config.ExplorerAggressive, stepScale: 2, diagonal: true}, nil
	default:
		return nil, fmt.Errorf("unknown explorer: %s", name)
	}
}

func (e *DefaultExplorer) Name() string {
	if e.name == "" {
		return config.ExplorerDefault
	}
	return e.name
}

// GenerateNeighbors generates axis moves, plus pairwise diagonal moves when enabled
func (e *DefaultExplorer) GenerateNeighbors(base, steps []float64, bounds Bounds) [][]float64 {
	neighbors := make([][]float64, 0, 2*len(base))
	seen := map[string]bool{vectorKey(bounds.Project(base)): true}
	add := func(x []float64) {
		p := bounds.Project(x)
		k := vectorKey(p)
		if seen[k] {
			return
		}
		seen[k] = true
		neighbors = append(neighbors, p)
	}

	for i := range base {
		for _, v := range e.moves(i, base[i], steps, bounds) {
			x := append([]float64(nil), base...)
			x[i] = v
			add(x)
		}
	}

	if e.diagonal {
		for i := range base {
			for j := i + 1; j < len(base); j++ {
				for _, vi := range e.moves(i, base[i], steps, bounds) {
					for _, vj := range e.moves(j, base[j], steps, bounds) {
						x := append([]float64(nil), base...)
						x[i] = vi
						x[j] = vj
						add(x)
					}
				}
			}
		}
	}

	return neighbors
}

// moves returns the up and down values for position i. Integer positions
// move by at least 1; discrete positions step to the adjacent members.
func (e *DefaultExplorer) moves(i int, v float64, steps []float64, bounds Bounds) []float64 {
	if i >= len(steps) {
		return nil
	}
	d := steps[i] * e.stepScale
	if i < len(bounds) {
		b := bounds[i]
		switch {
		case len(b.Values) > 0:
			return adjacent(b.Values, v)
		case b.Integer:
			d = math.Max(1, math.Round(d))
		}
	}
	if d <= 0 {
		return nil
	}
	return []float64{v + d, v - d}
}

func adjacent(sorted []float64, v float64) []float64 {
	i := sort.SearchFloat64s(sorted, nearest(sorted, v))
	out := make([]float64, 0, 2)
	if i+1 < len(sorted) {
		out = append(out, sorted[i+1])
	}
	if i > 0 {
		out = append(out, sorted[i-1])
	}
	return out
}

func vectorKey(x []float64) string {
	b := make([]byte, 0, 8*len(x))
	for _, v := range x {
		u := math.Float64bits(v)
		for s := 0; s < 64; s += 8 {
			b = append(b, byte(u>>s))
		}
	}
	return string(b)
}
