package internal

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/control"
	"github.com/sweeney/aquarium-controller/internal/gpio"
	"github.com/sweeney/aquarium-controller/internal/metrics"
	"github.com/sweeney/aquarium-controller/internal/mqtt"
	"github.com/sweeney/aquarium-controller/internal/sensor"
	"github.com/sweeney/aquarium-controller/internal/status"
)

// TestIntegrationFullFlow drives two controllers from fake sensors through
// the tracker to the MQTT and metrics sinks.
func TestIntegrationFullFlow(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	reg := prometheus.NewRegistry()
	exporter, err := metrics.New(reg)
	require.NoError(t, err)

	tracker := status.NewTracker(time.Now(), status.Config{Version: "test"},
		mqtt.Sink{Publisher: pub, Log: zap.NewNop()}, exporter)
	ctx, cancel := context.WithCancel(context.Background())
	go tracker.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-tracker.Done()
	})

	sens := sensor.NewFake().
		Script(control.WaterTemp, 27, 27, math.NaN(), 24.5).
		Script(control.AirTemp, 21).
		Script(control.WaterLevel, 45, 52, 56)

	fan := gpio.NewFakeOutput()
	temp, err := control.NewTemperatureControl(control.TemperatureConfig{
		LoopInterval: 1,
		Threshold:    control.Threshold{Min: 24, Max: 26, Hysteresis: 1},
		Auto:         true,
	}, control.Hardware{Output: fan}, sens, tracker, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { temp.Close() })

	pump := gpio.NewFakeOutput()
	overflow := gpio.NewFakeInput(false)
	water, err := control.NewWaterControl(control.WaterConfig{
		LoopInterval: 1,
		Threshold:    control.Threshold{Min: 50, Max: 80, Hysteresis: 5},
		Auto:         true,
	}, control.Hardware{Output: pump}, overflow, sens, tracker, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { water.Close() })

	tick := func() {
		temp.Update(context.Background())
		water.Update(context.Background())
	}

	tick() // 27 HIGH, level 45 LOW
	assert.True(t, fan.IsActive())
	assert.True(t, pump.IsActive())

	tick() // still high, level 52 in dead-band
	overflow.Set(true)
	require.Eventually(t, func() bool { return !pump.IsActive() }, time.Second, time.Millisecond)

	tick() // sensor failure: fan held on
	assert.True(t, fan.IsActive())

	tick() // 24.5 below max-h
	assert.False(t, fan.IsActive())

	snap := tracker.Snapshot()
	v, _ := snap.Fields.Get("water_temp_status")
	assert.Equal(t, "OK", v)
	v, _ = snap.Fields.Get(control.Overflow)
	assert.Equal(t, true, v)
	v, _ = snap.Fields.Get("pump_enabled")
	assert.Equal(t, false, v)
	assert.Equal(t, []string{"fan_auto", "fan_enabled", "pump_auto", "pump_enabled", "overflow",
		"water_temp", "air_temp", "water_temp_status", "water_level", "water_level_status"}, snap.Fields.Keys())

	err = testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP aquarium_sensor_read_failures_total Readings reported as unavailable.
# TYPE aquarium_sensor_read_failures_total counter
aquarium_sensor_read_failures_total{field="water_temp"} 1
`), "aquarium_sensor_read_failures_total")
	assert.NoError(t, err)

	// Every merged update reached MQTT and encodes to valid JSON, NaN as null.
	require.NotZero(t, pub.StatusCount())
	var nulls int
	for _, u := range pub.Updates {
		payload, err := mqtt.FormatStatusPayload(u)
		require.NoError(t, err)
		var parsed struct {
			Update struct {
				Fields map[string]any `json:"fields"`
			} `json:"update"`
		}
		require.NoError(t, json.Unmarshal(payload, &parsed), "%s", payload)
		if v, ok := parsed.Update.Fields[control.WaterTemp]; ok && v == nil {
			nulls++
		}
	}
	assert.Equal(t, 1, nulls)
}
