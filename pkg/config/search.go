package config

import "fmt"

// ResolveBounds returns exactly n bounds for an n-dimensional search.
// Positions past the declared bounds use DefaultBound.
func (s *Search) ResolveBounds(n int) ([]Bound, error) {
	if n <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", n)
	}
	if len(s.Bounds) > n {
		return nil, fmt.Errorf("%d bounds declared for a %d-dimensional search", len(s.Bounds), n)
	}
	out := make([]Bound, n)
	copy(out, s.Bounds)
	for i := len(s.Bounds); i < n; i++ {
		if s.DefaultBound == nil {
			return nil, fmt.Errorf("position %d has no bound and no default_bound is set", i)
		}
		out[i] = *s.DefaultBound
	}
	return out, nil
}
