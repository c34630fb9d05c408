package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/aquarium-controller/internal/gpio"
)

// water builds a pump controller; a nil overflow means no overflow sensor.
func (r *rig) water(t *testing.T, overflow *gpio.FakeInput, auto bool) *Controller {
	t.Helper()
	cfg := WaterConfig{
		LoopInterval: 1,
		Threshold:    Threshold{Min: 50, Max: 80, Hysteresis: 5},
		Auto:         auto,
	}
	var in gpio.Input
	if overflow != nil {
		in = overflow
	}
	c, err := NewWaterControl(cfg, Hardware{Output: r.out}, in, r.sens, r.status, r.log)
	require.NoError(t, err)
	c.loop.step = 5 * time.Millisecond
	c.loop.joinTimeout = 100 * time.Millisecond
	t.Cleanup(func() { c.Close() })
	return c
}

func TestWaterPumpWhenLow(t *testing.T) {
	r := newRig()
	c := r.water(t, nil, true)
	r.sens.Script(WaterLevel, 60, 48, 53, 56, 60)

	want := []bool{false, true, true, false, false}
	for i, w := range want {
		tick(c)
		assert.Equal(t, w, r.out.IsActive(), "step %d", i)
	}
	assert.Equal(t, "OK", r.status.get("water_level_status"))
	assert.Nil(t, r.status.get(Overflow), "no overflow field without a sensor")
}

func TestWaterOverflowInhibitsPump(t *testing.T) {
	r := newRig()
	in := gpio.NewFakeInput(false)
	c := r.water(t, in, true)
	r.sens.Set(WaterLevel, 40)

	assert.Equal(t, false, r.status.get(Overflow))

	tick(c)
	require.True(t, r.out.IsActive(), "low level starts the pump")

	in.Set(true)
	assert.Eventually(t, func() bool { return r.status.get(Overflow) == true }, time.Second, time.Millisecond)
	assert.False(t, r.out.IsActive(), "overflow stops the pump")
	assert.Contains(t, r.warnings(), "overflow detected, water pump inhibited")

	tick(c)
	assert.False(t, r.out.IsActive(), "pump stays off while overflow is active")
	assert.Equal(t, "LOW", r.status.get("water_level_status"))

	in.Set(false)
	assert.Eventually(t, func() bool { return r.status.get(Overflow) == false }, time.Second, time.Millisecond)
	assert.Eventually(t, r.out.IsActive, time.Second, time.Millisecond, "automatic control resumes")
	assert.Equal(t, 1, r.logs.FilterMessage("overflow ended").Len())
}

func TestWaterOverflowLeavesManualAlone(t *testing.T) {
	r := newRig()
	in := gpio.NewFakeInput(false)
	c := r.water(t, in, false)
	require.NoError(t, c.On())

	in.Set(true)
	assert.Eventually(t, func() bool { return r.status.get(Overflow) == true }, time.Second, time.Millisecond)
	assert.True(t, r.out.IsActive(), "manual pump is the operator's responsibility")
}

func TestWaterOverflowActiveAtStart(t *testing.T) {
	r := newRig()
	in := gpio.NewFakeInput(true)
	c := r.water(t, in, true)
	r.sens.Set(WaterLevel, 40)

	assert.Equal(t, true, r.status.get(Overflow))
	tick(c)
	assert.False(t, r.out.IsActive())
}

func TestLightsWindow(t *testing.T) {
	r := newRig()
	now := time.Date(2026, 3, 1, 7, 0, 0, 0, time.Local)
	window, err := NewTimeWindow("08:00", "20:00")
	require.NoError(t, err)

	c, err := NewLightsControl(LightsConfig{
		LoopInterval: 60,
		Window:       window,
		Auto:         true,
		Now:          func() time.Time { return now },
	}, Hardware{Output: r.out, Button: r.btn}, r.status, r.log)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	assert.Equal(t, "08:00-20:00", r.status.get("lights_window"))

	tick(c)
	assert.False(t, r.out.IsActive())
	assert.Equal(t, "OFF", r.status.get("lights_timer"))

	now = now.Add(2 * time.Hour)
	tick(c)
	assert.True(t, r.out.IsActive())
	assert.Equal(t, "ON", r.status.get("lights_timer"))

	// Button semantics are the same as every other output.
	c.Press()
	assert.Equal(t, StateManualOn, c.State())
	c.Press()
	assert.Equal(t, StateManualOff, c.State())
	tick(c)
	assert.False(t, r.out.IsActive(), "timer ignored in manual")
	c.Press()
	assert.Equal(t, StateAuto, c.State())
	assert.True(t, r.out.IsActive())
}

func TestLightsRejectsEmptyWindow(t *testing.T) {
	r := newRig()
	_, err := NewLightsControl(LightsConfig{LoopInterval: 60}, Hardware{Output: r.out}, r.status, r.log)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
