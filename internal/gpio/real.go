//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives a relay line using the Linux GPIO character device.
type RealOutput struct {
	mu     sync.Mutex
	line   *gpiocdev.Line
	active bool
}

// NewRealOutput requests pin on chip as an output, initially inactive.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealOutput{line: line}, nil
}

func (o *RealOutput) set(active bool) error {
	v := 0
	if active {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.line.Offset(), err)
	}
	o.active = active
	return nil
}

// On drives the line active.
func (o *RealOutput) On() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set(true)
}

// Off drives the line inactive.
func (o *RealOutput) Off() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set(false)
}

// Toggle inverts the line.
func (o *RealOutput) Toggle() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set(!o.active)
}

// IsActive reports the last value driven onto the line.
func (o *RealOutput) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Close drives the line inactive and releases it.
// Reconfiguring to input with pull-down matches the Pi boot default, so
// relays stay off across reboots.
func (o *RealOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("clear pin: %w", err))
	}
	if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin: %w", err))
	}
	o.active = false

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealButton is a momentary push button wired between the pin and ground.
type RealButton struct {
	line    *gpiocdev.Line
	presses chan time.Time
}

// NewRealButton requests pin with pull-up, falling-edge detection and kernel debounce.
func NewRealButton(chip string, pin int, debounce time.Duration) (*RealButton, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	b := &RealButton{presses: make(chan time.Time, 4)}
	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithEventHandler(b.handle))
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	b.line = line
	return b, nil
}

// handle runs on the gpiocdev watcher goroutine and must not block.
func (b *RealButton) handle(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	select {
	case b.presses <- time.Now():
	default:
	}
}

// Presses returns the press channel.
func (b *RealButton) Presses() <-chan time.Time {
	return b.presses
}

// Close releases the line. The press channel is left open so a consumer
// blocked on it simply never receives again.
func (b *RealButton) Close() error {
	if err := b.line.Close(); err != nil {
		return fmt.Errorf("close button pin: %w", err)
	}
	return nil
}

// RealInput is a digital sensor (float switch) reporting both edges.
type RealInput struct {
	line  *gpiocdev.Line
	edges chan bool
}

// NewRealInput requests pin with pull-down and both-edge detection.
func NewRealInput(chip string, pin int, debounce time.Duration) (*RealInput, error) {
	in := &RealInput{edges: make(chan bool, 4)}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(in.handle),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}
	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	in.line = line
	return in, nil
}

func (in *RealInput) handle(evt gpiocdev.LineEvent) {
	select {
	case in.edges <- evt.Type == gpiocdev.LineEventRisingEdge:
	default:
	}
}

// Active returns the current level of the line.
func (in *RealInput) Active() (bool, error) {
	v, err := in.line.Value()
	if err != nil {
		return false, fmt.Errorf("read input pin: %w", err)
	}
	return v == 1, nil
}

// Edges returns the edge channel.
func (in *RealInput) Edges() <-chan bool {
	return in.edges
}

// Close releases the line.
func (in *RealInput) Close() error {
	if err := in.line.Close(); err != nil {
		return fmt.Errorf("close input pin: %w", err)
	}
	return nil
}
