package objective

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/simtune/pkg/config"
)

// Schedule maps a constraint violation to a penalty.
type Schedule interface {
	Penalty(violation, weight float64) float64
	Name() string
}

// Linear charges weight per unit of violation.
type Linear struct{}

func (Linear) Name() string { return config.ScheduleLinear }

func (Linear) Penalty(violation, weight float64) float64 {
	return violation * weight
}

// Exponent charges (violation + 1) ** E regardless of weight.
type Exponent struct {
	E float64
}

func (Exponent) Name() string { return config.ScheduleExponent }

func (s Exponent) Penalty(violation, _ float64) float64 {
	return math.Pow(violation+1, s.E)
}

// NewSchedule returns the schedule named in config.
func NewSchedule(name string, exponent float64) (Schedule, error) {
	switch name {
	case "", config.ScheduleLinear:
		return Linear{}, nil
	case config.ScheduleExponent:
		if exponent <= 0 || math.IsNaN(exponent) || math.IsInf(exponent, 0) {
			return nil, fmt.Errorf("exponent schedule needs a positive exponent, got %v", exponent)
		}
		return Exponent{E: exponent}, nil
	default:
		return nil, fmt.Errorf("unknown schedule: %s", name)
	}
}
