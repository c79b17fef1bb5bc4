package improvement

import (
	"fmt"
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"github.com/GoSim-25-26J-441/simtune/pkg/utils"
	"gonum.org/v1/gonum/floats"
)

// Bound is the closed search interval for one vector position.
type Bound struct {
	Lower   float64
	Upper   float64
	Integer bool
	Values  []float64 // sorted discrete set; empty means continuous
}

// Bounds holds one Bound per vector position.
type Bounds []Bound

// BoundsFromConfig converts config bounds, sorting discrete value sets.
func BoundsFromConfig(in []config.Bound) (Bounds, error) {
	out := make(Bounds, len(in))
	for i, b := range in {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || b.Lower > b.Upper {
			return nil, fmt.Errorf("bound %d: invalid interval [%v, %v]", i, b.Lower, b.Upper)
		}
		values := append([]float64(nil), b.Values...)
		sort.Float64s(values)
		out[i] = Bound{Lower: b.Lower, Upper: b.Upper, Integer: b.Integer, Values: values}
	}
	return out, nil
}

// Dim returns the number of positions.
func (b Bounds) Dim() int {
	return len(b)
}

// Project clips x into bounds and snaps integer and discrete positions,
// writing the result into a new slice.
func (b Bounds) Project(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if i >= len(b) {
			out[i] = v
			continue
		}
		out[i] = b[i].project(v)
	}
	return out
}

func (b Bound) project(v float64) float64 {
	if math.IsNaN(v) {
		v = b.Lower
	}
	if len(b.Values) > 0 {
		return nearest(b.Values, v)
	}
	v = math.Max(b.Lower, math.Min(b.Upper, v))
	if b.Integer {
		r := math.Round(v)
		switch {
		case r > b.Upper:
			r = math.Floor(b.Upper)
		case r < b.Lower:
			r = math.Ceil(b.Lower)
		}
		if r >= b.Lower && r <= b.Upper {
			v = r
		}
	}
	return v
}

func nearest(sorted []float64, v float64) float64 {
	i := sort.SearchFloat64s(sorted, v)
	switch {
	case i == 0:
		return sorted[0]
	case i == len(sorted):
		return sorted[len(sorted)-1]
	case v-sorted[i-1] <= sorted[i]-v:
		return sorted[i-1]
	default:
		return sorted[i]
	}
}

// Contains reports whether x lies within bounds.
func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b) {
		return false
	}
	for i, v := range x {
		if v < b[i].Lower || v > b[i].Upper || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// Center returns the projected midpoint of every interval.
func (b Bounds) Center() []float64 {
	lo, hi := b.limits()
	x := floats.AddTo(make([]float64, len(b)), lo, hi)
	floats.Scale(0.5, x)
	return b.Project(x)
}

func (b Bounds) limits() (lo, hi []float64) {
	lo = make([]float64, len(b))
	hi = make([]float64, len(b))
	for i, bd := range b {
		lo[i], hi[i] = bd.Lower, bd.Upper
	}
	return lo, hi
}

// Random draws a uniformly distributed projected point.
func (b Bounds) Random(rng *utils.RandSource) []float64 {
	x := make([]float64, len(b))
	for i, bd := range b {
		x[i] = rng.UniformFloat64(bd.Lower, bd.Upper)
	}
	return b.Project(x)
}

// Normalize maps x into the unit cube. Zero-width positions map to 0.
func (b Bounds) Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		w := b[i].Upper - b[i].Lower
		if w > 0 {
			out[i] = (v - b[i].Lower) / w
		}
	}
	return out
}

// Denormalize maps a unit-cube point back into bounds and projects it.
func (b Bounds) Denormalize(u []float64) []float64 {
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = b[i].Lower + v*(b[i].Upper-b[i].Lower)
	}
	return b.Project(out)
}
