package sensor

import (
	"math"
	"sync"
)

// Fake is a test double that returns scripted readings per name.
// Each Read consumes the next value; once exhausted the last value repeats.
// Use math.NaN() in a script to simulate a failed read.
type Fake struct {
	mu      sync.Mutex
	scripts map[string][]float64
	index   map[string]int

	// Reads counts calls per name.
	Reads map[string]int
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		scripts: make(map[string][]float64),
		index:   make(map[string]int),
		Reads:   make(map[string]int),
	}
}

// Script sets the readings for name and rewinds it.
func (f *Fake) Script(name string, values ...float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = values
	f.index[name] = 0
	return f
}

// Set replaces the readings for name with a single constant value.
func (f *Fake) Set(name string, v float64) {
	f.Script(name, v)
}

func (f *Fake) Read(name string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads[name]++

	values := f.scripts[name]
	if len(values) == 0 {
		return math.NaN()
	}
	i := f.index[name]
	if i < len(values)-1 {
		f.index[name] = i + 1
	}
	return values[i]
}

// ReadCount returns how many times name was read.
func (f *Fake) ReadCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reads[name]
}
