// Package report extracts named numeric metrics from a simulator's text report.
//
// A report is free-form text; the only contract is that it contains
// "<Label>: <number>" lines for the labels below. Line order does not
// matter and unknown lines are ignored. The first occurrence of a label
// anywhere in the text wins, even inside a longer label.
package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Report labels emitted by the simulator, trailing colon included.
const (
	LabelTimeElapsed       = "Time Elapsed (s):"
	LabelEnergyConsumption = "Energy Consumption (W):"
	LabelInitialVelocity   = "Initial Velocity (m/s):"
	LabelFinalVelocity     = "Final Velocity (m/s):"
	LabelMaxVelocity       = "Max Velocity (m/s):"
	LabelMinVelocity       = "Min Velocity (m/s):"
	LabelMaxAcceleration   = "Max Acceleration (m/s^2):"
	LabelMinAcceleration   = "Min Acceleration (m/s^2):"
	LabelMaxCentripetal    = "Max Centripetal Acceleration (m/s^2):"
)

// LabelExpectedArgumentCount prefixes the simulator's reply to a zero-argument call.
const LabelExpectedArgumentCount = "Expected argument count:"

// ParseError reports a label that is missing or not followed by a number.
type ParseError struct {
	Label  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Label, e.Reason)
}

// ErrLabelMissing is matched by every ParseError raised for an absent label.
var ErrLabelMissing = errors.New("label not found")

// Is lets errors.Is(err, ErrLabelMissing) match missing-label failures.
func (e *ParseError) Is(target error) bool {
	return target == ErrLabelMissing && e.Reason == ErrLabelMissing.Error()
}

// Value returns the first real number that immediately follows label,
// up to the next line break.
func Value(report, label string) (float64, error) {
	idx := strings.Index(report, label)
	if idx < 0 {
		return 0, &ParseError{Label: label, Reason: ErrLabelMissing.Error()}
	}
	rest := report[idx+len(label):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return parseNumber(label, rest)
}

// Int returns the integer that follows label, e.g. the argument-count line.
func Int(report, label string) (int, error) {
	v, err := Value(report, label)
	if err != nil {
		return 0, err
	}
	n := int(v)
	if float64(n) != v {
		return 0, &ParseError{Label: label, Reason: fmt.Sprintf("%g is not an integer", v)}
	}
	return n, nil
}

// Scan tokenizes a report in one pass into label -> raw value text.
// The label is everything up to and including the first colon of a line,
// so keys are whole line prefixes. Value and Parse instead match the first
// occurrence of a label anywhere in the text.
func Scan(report string) map[string]string {
	fields := make(map[string]string)
	for len(report) > 0 {
		line := report
		if nl := strings.IndexByte(report, '\n'); nl >= 0 {
			line, report = report[:nl], report[nl+1:]
		} else {
			report = ""
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		label := strings.TrimSpace(line[:colon+1])
		if _, seen := fields[label]; seen {
			continue
		}
		fields[label] = strings.TrimSpace(line[colon+1:])
	}
	return fields
}

func parseNumber(label, text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, &ParseError{Label: label, Reason: "no value"}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &ParseError{Label: label, Reason: fmt.Sprintf("%q is not a number", text)}
	}
	return v, nil
}
