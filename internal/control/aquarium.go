package control

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/gpio"
	"github.com/sweeney/aquarium-controller/internal/sensor"
	"github.com/sweeney/aquarium-controller/internal/status"
)

// Sensor and status field names used by the aquarium controllers.
const (
	WaterTemp  = "water_temp"
	AirTemp    = "air_temp"
	WaterLevel = "water_level"
	Overflow   = "overflow"
)

// TemperatureConfig configures the fan controller.
type TemperatureConfig struct {
	LoopInterval int
	Threshold    Threshold
	Auto         bool
	Debounce     time.Duration
}

// NewTemperatureControl runs the fan when the water is too warm.
// air_temp is read and reported alongside water_temp.
func NewTemperatureControl(cfg TemperatureConfig, hw Hardware, sens sensor.Sensor, st StatusUpdater, log *zap.Logger) (*Controller, error) {
	if err := cfg.Threshold.Validate(); err != nil {
		return nil, err
	}
	eval := &SensorEvaluator{
		Sensor:  sens,
		Reading: WaterTemp,
		Extra:   []string{AirTemp},
		Policy:  CoolWhenHigh{cfg.Threshold},
		Log:     log.Named("temperature_control"),
	}
	c, err := New(Options{
		Name:         "temperature_control",
		Output:       "fan",
		LoopInterval: cfg.LoopInterval,
		Auto:         cfg.Auto,
		Debounce:     cfg.Debounce,
	}, hw, eval, st, log)
	if err != nil {
		return nil, err
	}
	c.log.Info("temperature control initialised",
		zap.Float64("target_min", cfg.Threshold.Min),
		zap.Float64("target_max", cfg.Threshold.Max),
		zap.Float64("hysteresis", cfg.Threshold.Hysteresis))
	return c, nil
}

// WaterConfig configures the top-up pump controller.
type WaterConfig struct {
	LoopInterval int
	Threshold    Threshold
	Auto         bool
	Debounce     time.Duration
}

// NewWaterControl runs the pump when the level is low. While the optional
// overflow input is active the pump is held off in automatic mode; when it
// clears, automatic control resumes immediately.
func NewWaterControl(cfg WaterConfig, hw Hardware, overflow gpio.Input, sens sensor.Sensor, st StatusUpdater, log *zap.Logger) (*Controller, error) {
	if err := cfg.Threshold.Validate(); err != nil {
		return nil, err
	}
	inhibit := &Inhibitor{Inner: &SensorEvaluator{
		Sensor:  sens,
		Reading: WaterLevel,
		Policy:  PumpWhenLow{cfg.Threshold},
		Log:     log.Named("water_control"),
	}}
	if overflow != nil {
		active, err := overflow.Active()
		if err != nil {
			log.Named("water_control").Error("overflow read failed", zap.Error(err))
		}
		inhibit.Set(active)
	}

	c, err := New(Options{
		Name:         "water_control",
		Output:       "pump",
		LoopInterval: cfg.LoopInterval,
		Auto:         cfg.Auto,
		Debounce:     cfg.Debounce,
	}, hw, inhibit, st, log)
	if err != nil {
		return nil, err
	}

	if overflow != nil {
		c.extra = append(c.extra, overflow)
		c.withLock(func() { c.pushLocked(status.F(Overflow, inhibit.Active())) })
		c.watch(func() { c.watchOverflow(overflow, inhibit) })
	}
	c.log.Info("water control initialised",
		zap.Float64("target_min", cfg.Threshold.Min),
		zap.Float64("target_max", cfg.Threshold.Max),
		zap.Float64("hysteresis", cfg.Threshold.Hysteresis),
		zap.Bool("overflow_sensor", overflow != nil))
	return c, nil
}

func (c *Controller) watchOverflow(in gpio.Input, inhibit *Inhibitor) {
	edges := in.Edges()
	for {
		select {
		case <-c.quit:
			return
		case active, ok := <-edges:
			if !ok {
				return
			}
			if !inhibit.Set(active) {
				continue
			}
			if active {
				c.log.Warn("overflow detected, water pump inhibited")
				c.withLock(func() {
					if c.mode == Auto && c.driver.IsActive() {
						_ = c.driveLocked(false)
					}
					c.pushLocked(status.F(Overflow, true))
				})
				continue
			}
			c.log.Info("overflow ended")
			c.withLock(func() { c.pushLocked(status.F(Overflow, false)) })
			if c.IsAuto() {
				c.Update(context.Background())
			}
		}
	}
}

// LightsConfig configures the lights timer.
type LightsConfig struct {
	LoopInterval int
	Window       TimeWindow
	Auto         bool
	Debounce     time.Duration
	Now          func() time.Time // defaults to time.Now
}

// NewLightsControl switches the lights on inside the daily window.
func NewLightsControl(cfg LightsConfig, hw Hardware, st StatusUpdater, log *zap.Logger) (*Controller, error) {
	if cfg.Window.On == cfg.Window.Off {
		return nil, ErrInvalidWindow
	}
	eval := &WindowEvaluator{Window: cfg.Window, Field: "lights_timer", Now: cfg.Now}
	c, err := New(Options{
		Name:         "lights",
		Output:       "lights",
		LoopInterval: cfg.LoopInterval,
		Auto:         cfg.Auto,
		Debounce:     cfg.Debounce,
	}, hw, eval, st, log)
	if err != nil {
		return nil, err
	}
	c.withLock(func() { c.pushLocked(status.F("lights_window", cfg.Window.String())) })
	c.log.Info("lights control initialised", zap.Stringer("window", cfg.Window))
	return c, nil
}
