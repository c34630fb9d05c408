package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/config"
	"github.com/sweeney/aquarium-controller/internal/control"
	"github.com/sweeney/aquarium-controller/internal/gpio"
	"github.com/sweeney/aquarium-controller/internal/mqtt"
	"github.com/sweeney/aquarium-controller/internal/sensor"
	"github.com/sweeney/aquarium-controller/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo(), "nil when NETWORK_STATUS is unset")

	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	assert.Equal(t, &status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, readNetworkInfo())
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LoggingConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = newLogger(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	_, err = newLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestPrintReadings(t *testing.T) {
	fake := sensor.NewFake()
	fake.Set("water_temp", 25.4321)
	var buf bytes.Buffer
	printReadings(&buf, sensor.Multi{"water_temp": fake, "air_temp": fake})
	assert.Equal(t, "air_temp: unavailable\nwater_temp: 25.43\n", buf.String())
}

// fakeHardware hands out fake lines and remembers them by pin.
type fakeHardware struct {
	outputs map[int]*gpio.FakeOutput
	buttons map[int]*gpio.FakeButton
	inputs  map[int]*gpio.FakeInput
	failPin int
}

func newFakeHardware() *fakeHardware {
	return &fakeHardware{
		outputs: map[int]*gpio.FakeOutput{},
		buttons: map[int]*gpio.FakeButton{},
		inputs:  map[int]*gpio.FakeInput{},
		failPin: -1,
	}
}

var errPinBusy = errors.New("pin busy")

func (h *fakeHardware) Output(pin int) (gpio.Output, error) {
	if pin == h.failPin {
		return nil, errPinBusy
	}
	o := gpio.NewFakeOutput()
	h.outputs[pin] = o
	return o, nil
}

func (h *fakeHardware) Button(pin int) (gpio.Button, error) {
	if pin == h.failPin {
		return nil, errPinBusy
	}
	b := gpio.NewFakeButton()
	h.buttons[pin] = b
	return b, nil
}

func (h *fakeHardware) Input(pin int) (gpio.Input, error) {
	if pin == h.failPin {
		return nil, errPinBusy
	}
	in := gpio.NewFakeInput(false)
	h.inputs[pin] = in
	return in, nil
}

const testConfig = `
sensors:
  w1:
    water_temp: /nonexistent/w1_slave
  files:
    water_level:
      path: /nonexistent/level
temperature_control:
  fan: 17
  button: 27
  loop_interval: 10
  target_min: 24
  target_max: 26
  hysteresis: 1
water_control:
  pump: 22
  overflow: 23
  loop_interval: 5
  target_min: 50
  target_max: 80
  hysteresis: 5
lights:
  output: 5
  time_on: "08:30"
  time_off: "21:00"
`

func loadTestConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

type nopStatus struct{}

func (nopStatus) Update(string, ...status.Field) {}

func TestBuildControllers(t *testing.T) {
	hw := newFakeHardware()
	controllers, err := buildControllers(loadTestConfig(t), hw, sensor.NewFake(), nopStatus{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stopControllers(controllers) })

	var names []string
	for _, c := range controllers {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"temperature_control", "water_control", "lights"}, names)
	assert.False(t, controllers[0].IsAuto(), "temperature starts manual")
	assert.False(t, controllers[1].IsAuto(), "water starts manual")
	assert.True(t, controllers[2].IsAuto(), "lights follow their timer")

	assert.Contains(t, hw.outputs, 17)
	assert.Contains(t, hw.outputs, 22)
	assert.Contains(t, hw.outputs, 5)
	assert.Contains(t, hw.buttons, 27)
	assert.Contains(t, hw.inputs, 23)
}

func TestBuildControllersReleasesOnFailure(t *testing.T) {
	hw := newFakeHardware()
	hw.failPin = 5 // lights output
	_, err := buildControllers(loadTestConfig(t), hw, sensor.NewFake(), nopStatus{}, zap.NewNop())
	require.ErrorIs(t, err, errPinBusy)

	assert.True(t, hw.outputs[17].Closed, "earlier controllers are closed")
	assert.True(t, hw.outputs[22].Closed)
	assert.True(t, hw.buttons[27].Closed)
}

func TestCommandHandler(t *testing.T) {
	hw := newFakeHardware()
	controllers, err := buildControllers(loadTestConfig(t), hw, sensor.NewFake(), nopStatus{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stopControllers(controllers) })

	pub := mqtt.NewFakePublisher()
	require.NoError(t, pub.Subscribe(commandHandler(controllers, zap.NewNop())))

	require.NoError(t, pub.Deliver("aquarium/water_control/set", []byte("on")))
	assert.True(t, hw.outputs[22].IsActive())

	require.NoError(t, pub.Deliver("aquarium/unknown/set", []byte("on")))
	require.NoError(t, pub.Deliver("aquarium/water_control/set", []byte("explode")))
	assert.True(t, hw.outputs[22].IsActive(), "bad commands change nothing")
	assert.Equal(t, control.StateManualOn, controllers[1].State())
}

func startTracker(t *testing.T) *status.Tracker {
	t.Helper()
	tr := status.NewTracker(time.Now(), status.Config{Version: "test"})
	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-tr.Done()
	})
	return tr
}

func TestRunLoopHeartbeatThenShutdown(t *testing.T) {
	tr := startTracker(t)
	tr.Update("lights", status.F("lights_enabled", true))
	pub := mqtt.NewFakePublisher()
	pub.Connected = true

	heartbeat := make(chan time.Time, 1)
	sig := make(chan os.Signal, 1)
	heartbeat <- time.Now()

	done := make(chan struct{})
	go func() {
		runLoop(pub, tr, zap.NewNop(), heartbeat, sig)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(pub.Events()) == 1 }, time.Second, time.Millisecond)
	sig <- syscall.SIGTERM
	<-done

	assert.Equal(t, []string{"HEARTBEAT", "SHUTDOWN"}, pub.Events())
	assert.False(t, pub.SystemEvents[0].Retained)
	assert.True(t, pub.SystemEvents[1].Retained)

	var parsed struct {
		Status struct {
			Event  string         `json:"event"`
			Reason string         `json:"reason"`
			Fields map[string]any `json:"fields"`
			MQTT   struct {
				Connected bool `json:"connected"`
			} `json:"mqtt"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal(pub.SystemPayloads[1], &parsed))
	assert.Equal(t, "SHUTDOWN", parsed.Status.Event)
	assert.Equal(t, "SIGTERM", parsed.Status.Reason)
	assert.Equal(t, true, parsed.Status.Fields["lights_enabled"])
	assert.True(t, parsed.Status.MQTT.Connected)
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	tr := startTracker(t)
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")

	heartbeat := make(chan time.Time, 2)
	heartbeat <- time.Now()
	heartbeat <- time.Now()
	sig := make(chan os.Signal, 1)

	done := make(chan struct{})
	go func() {
		runLoop(pub, tr, zap.NewNop(), heartbeat, sig)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(heartbeat) == 0 }, time.Second, time.Millisecond)
	sig <- syscall.SIGINT
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runLoop did not return after signal")
	}
}

func TestRunLoopWithoutMQTT(t *testing.T) {
	tr := startTracker(t)
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGINT
	runLoop(nil, tr, zap.NewNop(), nil, sig)
}
