// Package sensor reads numeric values (temperatures, water level) by name.
//
// Sensors never fail loudly: a reading that cannot be obtained is reported
// as NaN and the caller decides how to log it. The next poll naturally retries.
package sensor

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Sensor returns the named reading, or NaN when it is unavailable.
type Sensor interface {
	Read(name string) float64
}

// Unavailable is the value reported for failed reads.
var Unavailable = math.NaN()

// Source describes one numeric sysfs attribute.
// The reading is (raw + Offset) * Scale.
type Source struct {
	Path   string  `yaml:"path"`
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

// Files reads named values from sysfs-style files.
// 1-Wire DS18B20 w1_slave files are recognised by their "t=" suffix.
type Files struct {
	sources map[string]Source
	log     *zap.Logger
}

// NewFiles creates a Files sensor. A zero Scale is treated as 1.
func NewFiles(sources map[string]Source, log *zap.Logger) *Files {
	s := make(map[string]Source, len(sources))
	for name, src := range sources {
		if src.Scale == 0 {
			src.Scale = 1
		}
		s[name] = src
	}
	return &Files{sources: s, log: log}
}

// NewW1 maps names to DS18B20 device files, scaling millidegrees to °C.
func NewW1(devices map[string]string, log *zap.Logger) *Files {
	sources := make(map[string]Source, len(devices))
	for name, path := range devices {
		sources[name] = Source{Path: path, Scale: 0.001}
	}
	return NewFiles(sources, log)
}

// Read returns the named value or NaN.
func (f *Files) Read(name string) float64 {
	src, ok := f.sources[name]
	if !ok {
		f.log.Debug("unknown sensor", zap.String("sensor", name))
		return Unavailable
	}
	raw, err := readRaw(src.Path)
	if err != nil {
		f.log.Debug("sensor read failed", zap.String("sensor", name), zap.Error(err))
		return Unavailable
	}
	return (raw + src.Offset) * src.Scale
}

// Names returns the configured sensor names.
func (f *Files) Names() []string {
	names := make([]string, 0, len(f.sources))
	for n := range f.sources {
		names = append(names, n)
	}
	return names
}

func readRaw(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return parseRaw(string(data))
}

// parseRaw accepts either a bare number or DS18B20 output:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseRaw(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty reading")
	}
	if strings.Contains(s, "crc=") {
		first, _, _ := strings.Cut(s, "\n")
		if !strings.HasSuffix(strings.TrimSpace(first), "YES") {
			return 0, fmt.Errorf("crc check failed")
		}
	}
	if i := strings.LastIndex(s, "t="); i >= 0 {
		s = s[i+2:]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse reading: %w", err)
	}
	return v, nil
}

// Multi routes each name to the sensor that owns it.
type Multi map[string]Sensor

// Read returns the named value from its owning sensor, or NaN.
func (m Multi) Read(name string) float64 {
	s, ok := m[name]
	if !ok {
		return Unavailable
	}
	return s.Read(name)
}
