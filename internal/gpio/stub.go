//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chip string, pin int) (*RealOutput, error) { return nil, errUnsupported }

func (o *RealOutput) On() error      { return errUnsupported }
func (o *RealOutput) Off() error     { return errUnsupported }
func (o *RealOutput) Toggle() error  { return errUnsupported }
func (o *RealOutput) IsActive() bool { return false }
func (o *RealOutput) Close() error   { return nil }

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// NewRealButton returns an error on non-Linux platforms.
func NewRealButton(chip string, pin int, debounce time.Duration) (*RealButton, error) {
	return nil, errUnsupported
}

func (b *RealButton) Presses() <-chan time.Time { return nil }
func (b *RealButton) Close() error              { return nil }

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// NewRealInput returns an error on non-Linux platforms.
func NewRealInput(chip string, pin int, debounce time.Duration) (*RealInput, error) {
	return nil, errUnsupported
}

func (in *RealInput) Active() (bool, error) { return false, errUnsupported }
func (in *RealInput) Edges() <-chan bool    { return nil }
func (in *RealInput) Close() error          { return nil }
