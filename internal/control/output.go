package control

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/gpio"
	"github.com/sweeney/aquarium-controller/internal/status"
)

// Mode selects who drives an output.
type Mode int

const (
	Manual Mode = iota // only explicit on/off/toggle calls change the output
	Auto               // the evaluator drives the output
)

func (m Mode) String() string {
	if m == Auto {
		return "AUTO"
	}
	return "MANUAL"
}

// State is the combined mode and output state used by the button cycle.
type State string

const (
	StateAuto      State = "AUTO"
	StateManualOn  State = "MANUAL_ON"
	StateManualOff State = "MANUAL_OFF"
)

// StatusUpdater receives partial status merges. *status.Tracker implements it.
type StatusUpdater interface {
	Update(source string, fields ...status.Field)
}

// Decision is the outcome of sampling an evaluator for one tick.
type Decision struct {
	// Fields are merged into the status record whatever the mode.
	Fields []status.Field

	// Want returns the desired output state given the current one.
	// Nil means the evaluator has no opinion this tick.
	Want func(on bool) bool
}

// Evaluator samples inputs (sensors, clock) for one tick. Evaluate is called
// without the output lock held so slow sensor I/O never blocks a button press.
type Evaluator interface {
	Evaluate() Decision
}

// ControlledOutput is the Auto/Manual state machine for one output line.
// All mode and line changes are serialized by mu, so a button press and a
// scheduled decision can never interleave.
type ControlledOutput struct {
	source string // status source, e.g. "temperature_control"
	name   string // output name, e.g. "fan"
	driver gpio.Output
	eval   Evaluator
	status StatusUpdater
	log    *zap.Logger

	mu     sync.Mutex
	mode   Mode
	record status.Record
}

// NewControlledOutput creates the state machine and publishes its initial status.
func NewControlledOutput(source, name string, driver gpio.Output, eval Evaluator, st StatusUpdater, mode Mode, log *zap.Logger) *ControlledOutput {
	o := &ControlledOutput{
		source: source,
		name:   name,
		driver: driver,
		eval:   eval,
		status: st,
		log:    log,
		mode:   mode,
	}
	o.mu.Lock()
	o.pushLocked()
	o.mu.Unlock()
	return o
}

func (o *ControlledOutput) autoKey() string    { return o.name + "_auto" }
func (o *ControlledOutput) enabledKey() string { return o.name + "_enabled" }

// pushLocked merges extra plus the mode and line state into the status record.
func (o *ControlledOutput) pushLocked(extra ...status.Field) {
	fields := make([]status.Field, 0, len(extra)+2)
	fields = append(fields, extra...)
	fields = append(fields,
		status.F(o.autoKey(), o.mode == Auto),
		status.F(o.enabledKey(), o.driver.IsActive()))
	o.record.Merge(fields)
	o.status.Update(o.source, fields...)
}

func (o *ControlledOutput) driveLocked(on bool) error {
	var err error
	if on {
		err = o.driver.On()
	} else {
		err = o.driver.Off()
	}
	if err != nil {
		o.log.Error("output write failed", zap.String("output", o.name), zap.Bool("on", on), zap.Error(err))
		return fmt.Errorf("%s: %w", o.name, err)
	}
	if on {
		o.log.Debug("turned on", zap.String("output", o.name))
	} else {
		o.log.Debug("turned off", zap.String("output", o.name))
	}
	return nil
}

// On turns the output on. The mode is unchanged.
func (o *ControlledOutput) On() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.driveLocked(true)
	o.pushLocked()
	return err
}

// Off turns the output off. The mode is unchanged.
func (o *ControlledOutput) Off() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.driveLocked(false)
	o.pushLocked()
	return err
}

// Toggle inverts the output. The mode is unchanged.
func (o *ControlledOutput) Toggle() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.driver.Toggle()
	if err != nil {
		o.log.Error("output toggle failed", zap.String("output", o.name), zap.Error(err))
		err = fmt.Errorf("%s: %w", o.name, err)
	} else {
		o.log.Debug("toggled", zap.String("output", o.name), zap.Bool("on", o.driver.IsActive()))
	}
	o.pushLocked()
	return err
}

// AutoOn switches to Auto and evaluates immediately so the output is
// correct without waiting for the next tick.
func (o *ControlledOutput) AutoOn() {
	o.mu.Lock()
	if o.mode == Auto {
		o.mu.Unlock()
		o.log.Warn("already in automatic mode", zap.String("output", o.name))
		return
	}
	o.mode = Auto
	o.log.Info("automatic mode", zap.String("output", o.name))
	o.mu.Unlock()

	o.Update(context.Background())
}

// AutoOff switches to Manual, keeping the output as it is.
func (o *ControlledOutput) AutoOff() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode == Manual {
		o.log.Warn("already in manual mode", zap.String("output", o.name))
		return
	}
	o.mode = Manual
	o.log.Info("manual mode", zap.String("output", o.name))
	o.pushLocked()
}

// Press advances the button cycle Auto -> ManualOn -> ManualOff -> Auto.
func (o *ControlledOutput) Press() {
	o.mu.Lock()
	switch {
	case o.mode == Auto:
		o.mode = Manual
		o.log.Info("button: manual on", zap.String("output", o.name))
		_ = o.driveLocked(true)
		o.pushLocked()
		o.mu.Unlock()
	case o.driver.IsActive():
		o.log.Info("button: manual off", zap.String("output", o.name))
		_ = o.driveLocked(false)
		o.pushLocked()
		o.mu.Unlock()
	default:
		o.mu.Unlock()
		o.log.Info("button: automatic", zap.String("output", o.name))
		o.AutoOn()
	}
}

// Update runs one evaluation: status fields are always merged, the output is
// only driven in Auto. A cancelled ctx means the worker was terminated and
// must not touch the output any more.
func (o *ControlledOutput) Update(ctx context.Context) {
	d := o.eval.Evaluate()

	o.mu.Lock()
	defer o.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if o.mode == Auto && d.Want != nil {
		on := o.driver.IsActive()
		if want := d.Want(on); want != on {
			_ = o.driveLocked(want)
		}
	}
	o.pushLocked(d.Fields...)
}

// Mode returns the current mode.
func (o *ControlledOutput) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// IsOn reports the line state.
func (o *ControlledOutput) IsOn() bool {
	return o.driver.IsActive()
}

// State returns the button-cycle state.
func (o *ControlledOutput) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.mode == Auto:
		return StateAuto
	case o.driver.IsActive():
		return StateManualOn
	}
	return StateManualOff
}

// Status returns a copy of the fields this output last published.
func (o *ControlledOutput) Status() status.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.record.Clone()
}

// withLock runs fn holding the state lock. fn may call pushLocked and driveLocked.
func (o *ControlledOutput) withLock(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn()
}
