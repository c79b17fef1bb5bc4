package improvement

import (
	"fmt"
	"math"
	"strings"

	"github.com/GoSim-25-26J-441/simtune/pkg/config"
)

// SelectionStrategy defines how to select the best candidate among restarts
type SelectionStrategy interface {
	// SelectBest chooses the best candidate from a list of candidates
	SelectBest(candidates []*Candidate) (*Candidate, error)
	// Name returns the name of the selection strategy
	Name() string
}

// Candidate is the outcome of one start of a multi-start search
type Candidate struct {
	Start     int
	Initial   []float64
	X         []float64
	F         float64
	Status    string
	Evaluated bool
	Feasible  bool
}

// BestScoreStrategy selects the candidate with the lowest fitness
type BestScoreStrategy struct{}

func (s *BestScoreStrategy) Name() string {
	return config.SelectBestScore
}

func (s *BestScoreStrategy) SelectBest(candidates []*Candidate) (*Candidate, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates provided")
	}

	// Filter to only evaluated candidates
	evaluated := make([]*Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand != nil && cand.Evaluated && !math.IsNaN(cand.F) {
			evaluated = append(evaluated, cand)
		}
	}
	if len(evaluated) == 0 {
		return nil, fmt.Errorf("no evaluated candidates")
	}

	best := evaluated[0]
	for _, cand := range evaluated[1:] {
		if cand.F < best.F {
			best = cand
		}
	}
	return best, nil
}

// FeasibleFirstStrategy picks the lowest fitness among feasible
// candidates and falls back to every candidate when none is feasible.
type FeasibleFirstStrategy struct{}

func (s *FeasibleFirstStrategy) Name() string {
	return config.SelectFeasibleFirst
}

func (s *FeasibleFirstStrategy) SelectBest(candidates []*Candidate) (*Candidate, error) {
	feasible := make([]*Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand != nil && cand.Evaluated && cand.Feasible {
			feasible = append(feasible, cand)
		}
	}
	if len(feasible) > 0 {
		return (&BestScoreStrategy{}).SelectBest(feasible)
	}
	return (&BestScoreStrategy{}).SelectBest(candidates)
}

// NewSelection returns the named selection strategy
func NewSelection(name string) (SelectionStrategy, error) {
	switch strings.ToLower(name) {
	case "", config.SelectBestScore:
		return &BestScoreStrategy{}, nil
	case config.SelectFeasibleFirst:
		return &FeasibleFirstStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown selection: %s", name)
	}
}
