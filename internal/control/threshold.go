// Package control implements closed-loop control of on/off outputs.
//
// A Controller composes three collaborators: a ControlledOutput (the
// Auto/Manual mode machine guarding one output line), an Evaluator (the
// decision rule for one tick: hysteresis threshold or time-of-day window),
// and a Loop (the cancellable periodic worker). Hardware and sensors are
// injected as interfaces so everything here runs against fakes in tests.
package control

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidThreshold is returned for a target band that violates min < max
// or 0 <= hysteresis <= max-min.
var ErrInvalidThreshold = errors.New("invalid threshold")

// Class is the classification of a reading against its target band.
type Class string

const (
	ClassOK      Class = "OK"
	ClassHigh    Class = "HIGH"
	ClassLow     Class = "LOW"
	ClassUnknown Class = "UNKNOWN" // reading unavailable
)

// Threshold is a target band with a hysteresis dead-band.
type Threshold struct {
	Min        float64
	Max        float64
	Hysteresis float64
}

// NewThreshold returns a validated Threshold.
func NewThreshold(min, max, hysteresis float64) (Threshold, error) {
	t := Threshold{Min: min, Max: max, Hysteresis: hysteresis}
	if err := t.Validate(); err != nil {
		return Threshold{}, err
	}
	return t, nil
}

// Validate checks the band invariants.
func (t Threshold) Validate() error {
	for _, v := range []float64{t.Min, t.Max, t.Hysteresis} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: values must be finite", ErrInvalidThreshold)
		}
	}
	if t.Min >= t.Max {
		return fmt.Errorf("%w: target_min (%g) must be < target_max (%g)", ErrInvalidThreshold, t.Min, t.Max)
	}
	if t.Hysteresis < 0 {
		return fmt.Errorf("%w: hysteresis (%g) must be >= 0", ErrInvalidThreshold, t.Hysteresis)
	}
	if t.Hysteresis > t.Max-t.Min {
		return fmt.Errorf("%w: hysteresis (%g) must be <= target_max - target_min (%g)",
			ErrInvalidThreshold, t.Hysteresis, t.Max-t.Min)
	}
	return nil
}

// Classify places r relative to the band. NaN classifies as UNKNOWN.
func (t Threshold) Classify(r float64) Class {
	switch {
	case math.IsNaN(r):
		return ClassUnknown
	case r > t.Max:
		return ClassHigh
	case r < t.Min:
		return ClassLow
	}
	return ClassOK
}

// Policy turns a reading and the current output state into the desired state.
type Policy interface {
	Classify(r float64) Class
	Decide(r float64, on bool) bool
}

// CoolWhenHigh switches on above Max and off below Max-Hysteresis (fans, chillers).
type CoolWhenHigh struct {
	Threshold
}

// Decide holds the current state inside the dead-band and for NaN readings.
func (p CoolWhenHigh) Decide(r float64, on bool) bool {
	switch {
	case math.IsNaN(r):
		return on
	case r > p.Max:
		return true
	case r < p.Max-p.Hysteresis:
		return false
	}
	return on
}

// PumpWhenLow switches on below Min and off above Min+Hysteresis (top-up pumps).
type PumpWhenLow struct {
	Threshold
}

// Decide holds the current state inside the dead-band and for NaN readings.
func (p PumpWhenLow) Decide(r float64, on bool) bool {
	switch {
	case math.IsNaN(r):
		return on
	case r < p.Min:
		return true
	case r > p.Min+p.Hysteresis:
		return false
	}
	return on
}
