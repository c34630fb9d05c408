package control

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/gpio"
	"github.com/sweeney/aquarium-controller/internal/status"
)

// ErrUnknownAction is returned by Do for an unrecognised action name.
var ErrUnknownAction = errors.New("unknown action")

// Options are the settings shared by every controller.
type Options struct {
	Name         string        // controller name and status source, e.g. "temperature_control"
	Output       string        // output name used for status fields, e.g. "fan"
	LoopInterval int           // seconds between ticks
	Auto         bool          // start in automatic mode
	Debounce     time.Duration // button debounce, DefaultDebounce if zero
}

// Hardware are the lines a controller owns exclusively.
type Hardware struct {
	Output gpio.Output
	Button gpio.Button // optional
}

// Controller assembles a ControlledOutput, its Evaluator and a polling Loop.
type Controller struct {
	*ControlledOutput

	name   string
	loop   *Loop
	hw     Hardware
	extra  []gpio.Input
	log    *zap.Logger
	quit   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// New builds a controller. Monitoring is not started.
func New(opts Options, hw Hardware, eval Evaluator, st StatusUpdater, log *zap.Logger) (*Controller, error) {
	if hw.Output == nil {
		return nil, fmt.Errorf("%s: output is required", opts.Name)
	}
	log = log.Named(opts.Name)

	mode := Manual
	if opts.Auto {
		mode = Auto
	}
	c := &Controller{
		name: opts.Name,
		hw:   hw,
		log:  log,
		quit: make(chan struct{}),
	}
	loop, err := NewLoop(opts.Name, opts.LoopInterval, nil, log)
	if err != nil {
		return nil, err
	}
	c.ControlledOutput = NewControlledOutput(opts.Name, opts.Output, hw.Output, eval, st, mode, log)
	loop.update = c.ControlledOutput.Update
	c.loop = loop

	if hw.Button != nil {
		c.watch(func() { c.watchButton(gpio.NewDebouncer(opts.Debounce)) })
	}
	return c, nil
}

// watch runs fn in a goroutine tracked by Close.
func (c *Controller) watch(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Controller) watchButton(d *gpio.Debouncer) {
	presses := c.hw.Button.Presses()
	for {
		select {
		case <-c.quit:
			return
		case t, ok := <-presses:
			if !ok {
				return
			}
			if d.Accept(t) {
				c.Press()
			}
		}
	}
}

// Name returns the controller name.
func (c *Controller) Name() string { return c.name }

// IsAuto reports whether the controller is in automatic mode.
func (c *Controller) IsAuto() bool { return c.Mode() == Auto }

// Monitoring reports whether the polling loop is running.
func (c *Controller) Monitoring() bool { return c.loop.Running() }

// StartMonitoring starts the polling loop. A second call logs a warning.
func (c *Controller) StartMonitoring() { c.loop.Start() }

// StopMonitoring stops the polling loop. Calling it while stopped logs a warning.
func (c *Controller) StopMonitoring() error { return c.loop.Stop() }

// Do applies a named action: on, off, toggle, auto, manual, start or stop.
func (c *Controller) Do(action string) error {
	switch action {
	case "on":
		return c.On()
	case "off":
		return c.Off()
	case "toggle":
		return c.Toggle()
	case "auto":
		c.AutoOn()
	case "manual":
		c.AutoOff()
	case "start":
		c.StartMonitoring()
	case "stop":
		return c.StopMonitoring()
	default:
		return fmt.Errorf("%s: %w %q", c.name, ErrUnknownAction, action)
	}
	return nil
}

// Close stops monitoring and watchers and releases the hardware lines.
func (c *Controller) Close() error {
	var errs []error
	c.closed.Do(func() {
		if c.loop.Running() {
			if err := c.loop.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		close(c.quit)
		c.wg.Wait()
		if c.hw.Button != nil {
			if err := c.hw.Button.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, in := range c.extra {
			if err := in.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := c.hw.Output.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// Snapshot is a read-only view used by the web and MQTT layers.
type Snapshot struct {
	Name       string
	State      State
	On         bool
	Auto       bool
	Monitoring bool
	Fields     status.Record
}

// Snapshot returns the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Name:       c.name,
		State:      c.State(),
		On:         c.IsOn(),
		Auto:       c.IsAuto(),
		Monitoring: c.Monitoring(),
		Fields:     c.Status(),
	}
}
