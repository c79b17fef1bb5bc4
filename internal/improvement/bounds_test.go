package improvement

import (
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/simtune/pkg/config"
	"github.com/GoSim-25-26J-441/simtune/pkg/utils"
)

func TestBoundsProject(t *testing.T) {
	bounds := Bounds{
		{Lower: 0, Upper: 10},
		{Lower: 0.5, Upper: 3.5, Integer: true},
		{Lower: 1, Upper: 8, Values: []float64{1, 2, 4, 8}},
	}

	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"inside", []float64{5, 2, 4}, []float64{5, 2, 4}},
		{"clipped", []float64{-3, 9, 100}, []float64{0, 3, 8}},
		{"rounded", []float64{10.5, 2.4, 2.9}, []float64{10, 2, 2}},
		{"integer lower edge", []float64{1, 0.2, 5}, []float64{1, 1, 4}},
		{"nan", []float64{math.NaN(), math.NaN(), math.NaN()}, []float64{0, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bounds.Project(tt.in)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("position %d: expected %v, got %v (all %v)", i, tt.want[i], got[i], got)
				}
			}
		})
	}
}

func TestBoundsProjectDoesNotMutate(t *testing.T) {
	bounds := Bounds{{Lower: 0, Upper: 1}}
	in := []float64{5}
	_ = bounds.Project(in)
	if in[0] != 5 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestBoundsNormalizeRoundTrip(t *testing.T) {
	bounds := Bounds{{Lower: -2, Upper: 2}, {Lower: 10, Upper: 20}, {Lower: 3, Upper: 3}}
	x := []float64{1, 12.5, 3}

	u := bounds.Normalize(x)
	want := []float64{0.75, 0.25, 0}
	for i := range want {
		if math.Abs(u[i]-want[i]) > 1e-12 {
			t.Fatalf("normalize %d: expected %v, got %v", i, want[i], u[i])
		}
	}
	back := bounds.Denormalize(u)
	for i := range x {
		if math.Abs(back[i]-x[i]) > 1e-12 {
			t.Fatalf("denormalize %d: expected %v, got %v", i, x[i], back[i])
		}
	}

	outside := bounds.Denormalize([]float64{-1, 2, 0.5})
	if !bounds.Contains(outside) {
		t.Fatalf("denormalized point %v outside bounds", outside)
	}
}

func TestBoundsCenterAndRandom(t *testing.T) {
	bounds := Bounds{{Lower: 0, Upper: 10}, {Lower: 0, Upper: 5, Integer: true}}

	center := bounds.Center()
	if center[0] != 5 || center[1] != 3 {
		t.Fatalf("expected center [5 3], got %v", center)
	}

	rng := utils.NewRandSource(7)
	for i := 0; i < 100; i++ {
		x := bounds.Random(rng)
		if !bounds.Contains(x) {
			t.Fatalf("random point %v outside bounds", x)
		}
		if x[1] != math.Round(x[1]) {
			t.Fatalf("integer position not rounded: %v", x)
		}
	}
}

func TestBoundsContains(t *testing.T) {
	bounds := Bounds{{Lower: 0, Upper: 1}}
	if !bounds.Contains([]float64{0.5}) {
		t.Fatal("expected point inside")
	}
	if bounds.Contains([]float64{1.5}) || bounds.Contains([]float64{math.NaN()}) {
		t.Fatal("expected point outside")
	}
	if bounds.Contains([]float64{0.5, 0.5}) {
		t.Fatal("expected length mismatch to be outside")
	}
}

func TestBoundsFromConfig(t *testing.T) {
	got, err := BoundsFromConfig([]config.Bound{
		{Lower: 0, Upper: 10},
		{Lower: 1, Upper: 8, Values: []float64{8, 1, 4}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Dim() != 2 {
		t.Fatalf("expected 2 positions, got %d", got.Dim())
	}
	if v := got[1].Values; v[0] != 1 || v[1] != 4 || v[2] != 8 {
		t.Fatalf("expected sorted values, got %v", v)
	}

	for _, bad := range [][]config.Bound{
		{{Lower: 5, Upper: 1}},
		{{Lower: math.NaN(), Upper: 1}},
	} {
		if _, err := BoundsFromConfig(bad); err == nil {
			t.Fatalf("expected error for %+v", bad)
		}
	}
}
