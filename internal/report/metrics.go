package report

import (
	"errors"
	"fmt"
)

// Metric names used to reference report fields from configuration.
const (
	MetricTimeElapsed       = "time_elapsed"
	MetricEnergyConsumption = "energy_consumption"
	MetricInitialVelocity   = "initial_velocity"
	MetricFinalVelocity     = "final_velocity"
	MetricMaxVelocity       = "max_velocity"
	MetricMinVelocity       = "min_velocity"
	MetricMaxAcceleration   = "max_acceleration"
	MetricMinAcceleration   = "min_acceleration"
	MetricMaxCentripetal    = "max_centripetal_acceleration"
)

// MetricSet holds every metric the objective needs from one report.
type MetricSet struct {
	TimeElapsed       float64 `json:"time_elapsed_s"`
	EnergyConsumption float64 `json:"energy_consumption_w"`
	InitialVelocity   float64 `json:"initial_velocity_mps"`
	FinalVelocity     float64 `json:"final_velocity_mps"`
	MaxVelocity       float64 `json:"max_velocity_mps"`
	MinVelocity       float64 `json:"min_velocity_mps"`
	MaxAcceleration   float64 `json:"max_acceleration_mps2"`
	MinAcceleration   float64 `json:"min_acceleration_mps2"`
	MaxCentripetal    float64 `json:"max_centripetal_acceleration_mps2"`
}

type field struct {
	name  string
	label string
	ptr   func(*MetricSet) *float64
}

var fields = []field{
	{MetricTimeElapsed, LabelTimeElapsed, func(m *MetricSet) *float64 { return &m.TimeElapsed }},
	{MetricEnergyConsumption, LabelEnergyConsumption, func(m *MetricSet) *float64 { return &m.EnergyConsumption }},
	{MetricInitialVelocity, LabelInitialVelocity, func(m *MetricSet) *float64 { return &m.InitialVelocity }},
	{MetricFinalVelocity, LabelFinalVelocity, func(m *MetricSet) *float64 { return &m.FinalVelocity }},
	{MetricMaxVelocity, LabelMaxVelocity, func(m *MetricSet) *float64 { return &m.MaxVelocity }},
	{MetricMinVelocity, LabelMinVelocity, func(m *MetricSet) *float64 { return &m.MinVelocity }},
	{MetricMaxAcceleration, LabelMaxAcceleration, func(m *MetricSet) *float64 { return &m.MaxAcceleration }},
	{MetricMinAcceleration, LabelMinAcceleration, func(m *MetricSet) *float64 { return &m.MinAcceleration }},
	{MetricMaxCentripetal, LabelMaxCentripetal, func(m *MetricSet) *float64 { return &m.MaxCentripetal }},
}

// Names returns the metric names in report order.
func Names() []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.name
	}
	return out
}

// IsMetric reports whether name is a known metric.
func IsMetric(name string) bool {
	for _, f := range fields {
		if f.name == name {
			return true
		}
	}
	return false
}

// Get returns the metric with the given name.
func (m MetricSet) Get(name string) (float64, error) {
	for _, f := range fields {
		if f.name == name {
			return *f.ptr(&m), nil
		}
	}
	return 0, fmt.Errorf("unknown metric: %s", name)
}

// Parse extracts every required metric from a report. Any missing or
// malformed metric fails the whole parse; all failures are joined.
func Parse(report string) (MetricSet, error) {
	var m MetricSet
	var errs []error
	for _, f := range fields {
		v, err := Value(report, f.label)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.ptr(&m) = v
	}
	if len(errs) > 0 {
		return MetricSet{}, errors.Join(errs...)
	}
	return m, nil
}
