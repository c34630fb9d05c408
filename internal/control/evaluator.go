package control

import (
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/sensor"
	"github.com/sweeney/aquarium-controller/internal/status"
)

// SensorEvaluator reads one controlling value and applies a threshold policy.
// Extra readings are reported to status but do not affect the decision.
type SensorEvaluator struct {
	Sensor  sensor.Sensor
	Reading string
	Extra   []string
	Policy  Policy
	Log     *zap.Logger
}

func (e *SensorEvaluator) read(name string) float64 {
	v := e.Sensor.Read(name)
	if math.IsNaN(v) {
		e.Log.Error("sensor read failed", zap.String("sensor", name))
	}
	return v
}

// Evaluate reads the sensors once and classifies the controlling reading.
func (e *SensorEvaluator) Evaluate() Decision {
	r := e.read(e.Reading)
	fields := make([]status.Field, 0, len(e.Extra)+2)
	fields = append(fields, status.F(e.Reading, r))
	for _, name := range e.Extra {
		fields = append(fields, status.F(name, e.read(name)))
	}
	fields = append(fields, status.F(e.Reading+"_status", string(e.Policy.Classify(r))))

	return Decision{
		Fields: fields,
		Want:   func(on bool) bool { return e.Policy.Decide(r, on) },
	}
}

// WindowEvaluator wants the output on while the clock is inside Window.
type WindowEvaluator struct {
	Window TimeWindow
	Field  string
	Now    func() time.Time
}

// Evaluate compares the current time against the window.
func (e *WindowEvaluator) Evaluate() Decision {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	in := e.Window.Contains(now())
	state := "OFF"
	if in {
		state = "ON"
	}
	return Decision{
		Fields: []status.Field{status.F(e.Field, state)},
		Want:   func(bool) bool { return in },
	}
}

// Inhibitor forces an evaluator's decision to off while active.
type Inhibitor struct {
	Inner  Evaluator
	active atomic.Bool
}

// Set changes the inhibit state and reports whether it changed.
func (i *Inhibitor) Set(active bool) bool {
	return i.active.Swap(active) != active
}

// Active reports the inhibit state.
func (i *Inhibitor) Active() bool {
	return i.active.Load()
}

// Evaluate delegates to Inner, overriding Want while inhibited.
func (i *Inhibitor) Evaluate() Decision {
	d := i.Inner.Evaluate()
	if i.active.Load() {
		d.Want = func(bool) bool { return false }
	}
	return d
}
