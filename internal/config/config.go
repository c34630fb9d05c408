// Package config loads the daemon's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/aquarium-controller/internal/control"
	"github.com/sweeney/aquarium-controller/internal/sensor"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Defaults applied by Load when a value is absent.
const (
	DefaultChip           = "gpiochip0"
	DefaultDebounce       = 100 * time.Millisecond
	DefaultLightsInterval = 60
	DefaultHTTPAddr       = ":8080"
	DefaultRefresh        = 10 * time.Second
	DefaultHeartbeat      = 15 * time.Minute
	DefaultLogLevel       = "info"
)

// Config is the top-level daemon configuration.
type Config struct {
	GPIO        GPIOConfig         `yaml:"gpio"`
	Sensors     SensorsConfig      `yaml:"sensors"`
	Temperature *TemperatureConfig `yaml:"temperature_control"`
	Water       *WaterConfig       `yaml:"water_control"`
	Lights      *LightsConfig      `yaml:"lights"`
	MQTT        MQTTConfig         `yaml:"mqtt"`
	HTTP        HTTPConfig         `yaml:"http"`
	Logging     LoggingConfig      `yaml:"logging"`
	Heartbeat   time.Duration      `yaml:"heartbeat"` // 0 disables
}

// GPIOConfig selects the chip and the button debounce interval.
type GPIOConfig struct {
	Chip     string        `yaml:"chip"`
	Debounce time.Duration `yaml:"debounce"`
}

// SensorsConfig maps reading names to their sources.
type SensorsConfig struct {
	W1    map[string]string        `yaml:"w1"`    // name -> w1_slave path
	Files map[string]sensor.Source `yaml:"files"` // name -> scaled sysfs attribute
}

// ThresholdConfig holds the regulation band.
type ThresholdConfig struct {
	TargetMin  float64 `yaml:"target_min"`
	TargetMax  float64 `yaml:"target_max"`
	Hysteresis float64 `yaml:"hysteresis"`
}

// Threshold converts the band for the control package.
func (t ThresholdConfig) Threshold() control.Threshold {
	return control.Threshold{Min: t.TargetMin, Max: t.TargetMax, Hysteresis: t.Hysteresis}
}

// TemperatureConfig configures the fan controller.
type TemperatureConfig struct {
	ThresholdConfig `yaml:",inline"`
	LoopInterval    int   `yaml:"loop_interval"`
	Fan             int   `yaml:"fan"`
	Button          *int  `yaml:"button"`
	AutoStart       *bool `yaml:"auto_start"`
}

// WaterConfig configures the pump controller.
type WaterConfig struct {
	ThresholdConfig `yaml:",inline"`
	LoopInterval    int   `yaml:"loop_interval"`
	Pump            int   `yaml:"pump"`
	Button          *int  `yaml:"button"`
	Overflow        *int  `yaml:"overflow"`
	AutoStart       *bool `yaml:"auto_start"`
}

// LightsConfig configures the lights timer.
type LightsConfig struct {
	LoopInterval int    `yaml:"loop_interval"`
	Output       int    `yaml:"output"`
	Button       *int   `yaml:"button"`
	TimeOn       string `yaml:"time_on"`
	TimeOff      string `yaml:"time_off"`
	AutoStart    *bool  `yaml:"auto_start"`
}

// Window parses the on/off times.
func (l LightsConfig) Window() (control.TimeWindow, error) {
	return control.NewTimeWindow(l.TimeOn, l.TimeOff)
}

// MQTTConfig holds broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTPConfig holds the status server settings. An empty address disables it.
type HTTPConfig struct {
	Addr    string        `yaml:"addr"`
	Refresh time.Duration `yaml:"refresh"`
}

// LoggingConfig selects the zap configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads a YAML file, expanding $VAR and ${VAR} from the environment
// first, and applies defaults. It does not validate.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content the same way Load does.
func Parse(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Config{
		HTTP:      HTTPConfig{Addr: DefaultHTTPAddr},
		Heartbeat: DefaultHeartbeat,
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = DefaultChip
	}
	if c.GPIO.Debounce == 0 {
		c.GPIO.Debounce = DefaultDebounce
	}
	if c.Lights != nil && c.Lights.LoopInterval == 0 {
		c.Lights.LoopInterval = DefaultLightsInterval
	}
	if c.HTTP.Refresh == 0 {
		c.HTTP.Refresh = DefaultRefresh
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// AutoStart reports whether a controller starts in automatic mode.
// Lights follow their timer unless told otherwise; the rest start manual.
func AutoStart(flag *bool, def bool) bool {
	if flag == nil {
		return def
	}
	return *flag
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Temperature == nil && c.Water == nil && c.Lights == nil {
		return fmt.Errorf("%w: no controllers configured", ErrInvalid)
	}
	if c.GPIO.Debounce < 0 {
		return fmt.Errorf("%w: gpio.debounce must not be negative", ErrInvalid)
	}

	pins := make(map[int]string)
	claim := func(owner string, pin int) error {
		if pin < 0 {
			return fmt.Errorf("%w: %s: pin %d", ErrInvalid, owner, pin)
		}
		if prev, dup := pins[pin]; dup {
			return fmt.Errorf("%w: pin %d used by %s and %s", ErrInvalid, pin, prev, owner)
		}
		pins[pin] = owner
		return nil
	}
	claimOpt := func(owner string, pin *int) error {
		if pin == nil {
			return nil
		}
		return claim(owner, *pin)
	}

	if t := c.Temperature; t != nil {
		if err := checkLoop("temperature_control", t.LoopInterval, t.ThresholdConfig); err != nil {
			return err
		}
		if err := c.needSensor("temperature_control", control.WaterTemp); err != nil {
			return err
		}
		if err := claim("temperature_control.fan", t.Fan); err != nil {
			return err
		}
		if err := claimOpt("temperature_control.button", t.Button); err != nil {
			return err
		}
	}
	if w := c.Water; w != nil {
		if err := checkLoop("water_control", w.LoopInterval, w.ThresholdConfig); err != nil {
			return err
		}
		if err := c.needSensor("water_control", control.WaterLevel); err != nil {
			return err
		}
		if err := claim("water_control.pump", w.Pump); err != nil {
			return err
		}
		if err := claimOpt("water_control.button", w.Button); err != nil {
			return err
		}
		if err := claimOpt("water_control.overflow", w.Overflow); err != nil {
			return err
		}
	}
	if l := c.Lights; l != nil {
		if l.LoopInterval < 1 {
			return fmt.Errorf("%w: lights: loop_interval must be integer > 0", ErrInvalid)
		}
		if _, err := l.Window(); err != nil {
			return fmt.Errorf("%w: lights: %v", ErrInvalid, err)
		}
		if err := claim("lights.output", l.Output); err != nil {
			return err
		}
		if err := claimOpt("lights.button", l.Button); err != nil {
			return err
		}
	}

	if c.MQTT.BufferSize < 0 {
		return fmt.Errorf("%w: mqtt.buffer_size must not be negative", ErrInvalid)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must not be negative", ErrInvalid)
	}
	return nil
}

func checkLoop(name string, interval int, t ThresholdConfig) error {
	if interval < 1 {
		return fmt.Errorf("%w: %s: loop_interval must be integer > 0", ErrInvalid, name)
	}
	if err := t.Threshold().Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	return nil
}

func (c Config) needSensor(owner, name string) error {
	if _, ok := c.Sensors.W1[name]; ok {
		return nil
	}
	if _, ok := c.Sensors.Files[name]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s: no sensor named %q", ErrInvalid, owner, name)
}
