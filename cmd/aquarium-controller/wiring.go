package main

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/aquarium-controller/internal/config"
	"github.com/sweeney/aquarium-controller/internal/control"
	"github.com/sweeney/aquarium-controller/internal/gpio"
	"github.com/sweeney/aquarium-controller/internal/sensor"
)

// newLogger builds the zap logger selected by the logging section.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// hardware opens GPIO lines by pin number.
type hardware interface {
	Output(pin int) (gpio.Output, error)
	Button(pin int) (gpio.Button, error)
	Input(pin int) (gpio.Input, error)
}

type realHardware struct {
	chip     string
	debounce time.Duration
}

func (h realHardware) Output(pin int) (gpio.Output, error) { return gpio.NewRealOutput(h.chip, pin) }

func (h realHardware) Button(pin int) (gpio.Button, error) {
	return gpio.NewRealButton(h.chip, pin, h.debounce)
}

func (h realHardware) Input(pin int) (gpio.Input, error) {
	return gpio.NewRealInput(h.chip, pin, h.debounce)
}

// buildSensors routes every configured reading to its reader.
func buildSensors(cfg config.SensorsConfig, log *zap.Logger) sensor.Multi {
	m := make(sensor.Multi)
	log = log.Named("sensor")
	w1 := sensor.NewW1(cfg.W1, log)
	for name := range cfg.W1 {
		m[name] = w1
	}
	files := sensor.NewFiles(cfg.Files, log)
	for name := range cfg.Files {
		m[name] = files
	}
	return m
}

// openLines opens an output and an optional button. On failure anything
// already opened is closed.
func openLines(hw hardware, out int, button *int) (control.Hardware, error) {
	o, err := hw.Output(out)
	if err != nil {
		return control.Hardware{}, fmt.Errorf("output pin %d: %w", out, err)
	}
	lines := control.Hardware{Output: o}
	if button != nil {
		b, err := hw.Button(*button)
		if err != nil {
			o.Close()
			return control.Hardware{}, fmt.Errorf("button pin %d: %w", *button, err)
		}
		lines.Button = b
	}
	return lines, nil
}

func releaseLines(lines control.Hardware) {
	if lines.Button != nil {
		lines.Button.Close()
	}
	lines.Output.Close()
}

// buildControllers constructs every configured controller. If one fails,
// those already built are closed and the error is returned.
func buildControllers(cfg config.Config, hw hardware, sens sensor.Sensor, st control.StatusUpdater, log *zap.Logger) (built []*control.Controller, err error) {
	defer func() {
		if err != nil {
			for _, c := range built {
				c.Close()
			}
			built = nil
		}
	}()

	if t := cfg.Temperature; t != nil {
		lines, err := openLines(hw, t.Fan, t.Button)
		if err != nil {
			return built, fmt.Errorf("temperature_control: %w", err)
		}
		c, err := control.NewTemperatureControl(control.TemperatureConfig{
			LoopInterval: t.LoopInterval,
			Threshold:    t.Threshold(),
			Auto:         config.AutoStart(t.AutoStart, false),
			Debounce:     cfg.GPIO.Debounce,
		}, lines, sens, st, log)
		if err != nil {
			releaseLines(lines)
			return built, fmt.Errorf("temperature_control: %w", err)
		}
		built = append(built, c)
	}

	if w := cfg.Water; w != nil {
		lines, err := openLines(hw, w.Pump, w.Button)
		if err != nil {
			return built, fmt.Errorf("water_control: %w", err)
		}
		var overflow gpio.Input
		if w.Overflow != nil {
			overflow, err = hw.Input(*w.Overflow)
			if err != nil {
				releaseLines(lines)
				return built, fmt.Errorf("water_control: overflow pin %d: %w", *w.Overflow, err)
			}
		}
		c, err := control.NewWaterControl(control.WaterConfig{
			LoopInterval: w.LoopInterval,
			Threshold:    w.Threshold(),
			Auto:         config.AutoStart(w.AutoStart, false),
			Debounce:     cfg.GPIO.Debounce,
		}, lines, overflow, sens, st, log)
		if err != nil {
			releaseLines(lines)
			if overflow != nil {
				overflow.Close()
			}
			return built, fmt.Errorf("water_control: %w", err)
		}
		built = append(built, c)
	}

	if l := cfg.Lights; l != nil {
		window, err := l.Window()
		if err != nil {
			return built, fmt.Errorf("lights: %w", err)
		}
		lines, err := openLines(hw, l.Output, l.Button)
		if err != nil {
			return built, fmt.Errorf("lights: %w", err)
		}
		c, err := control.NewLightsControl(control.LightsConfig{
			LoopInterval: l.LoopInterval,
			Window:       window,
			Auto:         config.AutoStart(l.AutoStart, true),
			Debounce:     cfg.GPIO.Debounce,
		}, lines, st, log)
		if err != nil {
			releaseLines(lines)
			return built, fmt.Errorf("lights: %w", err)
		}
		built = append(built, c)
	}

	if len(built) == 0 {
		return nil, errors.New("no controllers configured")
	}
	return built, nil
}

// stopControllers closes every controller, joining their errors.
func stopControllers(controllers []*control.Controller) error {
	var errs []error
	for _, c := range controllers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
