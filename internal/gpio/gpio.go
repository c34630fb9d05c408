// Package gpio provides output lines, push buttons and edge inputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Output is a single on/off physical line (fan relay, pump relay, lights relay).
type Output interface {
	On() error
	Off() error
	Toggle() error

	// IsActive reports the last value driven onto the line.
	IsActive() bool

	// Close releases the line.
	Close() error
}

// Button emits a timestamp for every press (falling edge on a pulled-up line).
// Presses are debounced by the kernel where supported; consumers apply a
// Debouncer on top so that fakes and real hardware behave the same.
type Button interface {
	Presses() <-chan time.Time
	Close() error
}

// Input is an edge-triggered digital input such as a float switch.
type Input interface {
	// Active returns the current logical level.
	Active() (bool, error)

	// Edges emits the new logical level after every debounced change.
	Edges() <-chan bool

	Close() error
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// DefaultDebounce is the minimum spacing between two accepted button presses.
const DefaultDebounce = 100 * time.Millisecond

// Debouncer drops presses that arrive within Interval of the last accepted one.
// Not safe for concurrent use; each button consumer owns one.
type Debouncer struct {
	Interval time.Duration
	last     time.Time
	seen     bool
}

// NewDebouncer returns a Debouncer, substituting DefaultDebounce for a non-positive interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounce
	}
	return &Debouncer{Interval: interval}
}

// Accept reports whether a press at t should be acted upon.
func (d *Debouncer) Accept(t time.Time) bool {
	if d.seen && t.Sub(d.last) < d.Interval {
		return false
	}
	d.last = t
	d.seen = true
	return true
}
