package gpio

import (
	"sync"
	"time"
)

// FakeOutput is a test double recording every value driven onto the line.
type FakeOutput struct {
	mu     sync.Mutex
	active bool

	// History records each value set, in order.
	History []bool

	// Err, if set, is returned by On, Off and Toggle without changing state.
	Err error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutput creates a FakeOutput that starts inactive.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

func (f *FakeOutput) set(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.active = active
	f.History = append(f.History, active)
	return nil
}

func (f *FakeOutput) On() error  { return f.set(true) }
func (f *FakeOutput) Off() error { return f.set(false) }

func (f *FakeOutput) Toggle() error {
	return f.set(!f.IsActive())
}

func (f *FakeOutput) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Writes returns a copy of History.
func (f *FakeOutput) Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.History...)
}

func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeButton lets tests inject presses.
type FakeButton struct {
	presses chan time.Time
	Closed  bool
}

// NewFakeButton creates a FakeButton with a small press buffer.
func NewFakeButton() *FakeButton {
	return &FakeButton{presses: make(chan time.Time, 16)}
}

// Press injects a press at time t.
func (f *FakeButton) Press(t time.Time) {
	f.presses <- t
}

func (f *FakeButton) Presses() <-chan time.Time { return f.presses }

func (f *FakeButton) Close() error {
	f.Closed = true
	return nil
}

// FakeInput lets tests drive an edge input.
type FakeInput struct {
	mu     sync.Mutex
	active bool
	edges  chan bool

	// ReadError, if set, will be returned by Active().
	ReadError error
}

// NewFakeInput creates a FakeInput at the given level.
func NewFakeInput(active bool) *FakeInput {
	return &FakeInput{active: active, edges: make(chan bool, 16)}
}

// Set changes the level and emits an edge if it differs.
func (f *FakeInput) Set(active bool) {
	f.mu.Lock()
	changed := f.active != active
	f.active = active
	f.mu.Unlock()
	if changed {
		f.edges <- active
	}
}

func (f *FakeInput) Active() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.active, nil
}

func (f *FakeInput) Edges() <-chan bool { return f.edges }

func (f *FakeInput) Close() error { return nil }
