// Command aquarium-controller regulates fan, top-up pump and lights from
// sensor readings and buttons, and publishes its status to MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/config"
	"github.com/sweeney/aquarium-controller/internal/control"
	"github.com/sweeney/aquarium-controller/internal/metrics"
	"github.com/sweeney/aquarium-controller/internal/mqtt"
	"github.com/sweeney/aquarium-controller/internal/sensor"
	"github.com/sweeney/aquarium-controller/internal/status"
	"github.com/sweeney/aquarium-controller/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	envPath := flag.String("env", ".env", "dotenv file loaded before the config (optional)")
	printState := flag.Bool("print-state", false, "Print current sensor readings and exit")
	httpAddr := flag.String("http", "", "HTTP status address, overrides http.addr")

	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("fatal: load %s: %v", *envPath, err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer logger.Sync()

	if *printState {
		printReadings(os.Stdout, buildSensors(cfg.Sensors, logger))
		return
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

// printReadings writes one "name: value" line per configured reading.
func printReadings(w io.Writer, sens sensor.Multi) {
	names := make([]string, 0, len(sens))
	for name := range sens {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := sens.Read(name)
		if math.IsNaN(v) {
			fmt.Fprintf(w, "%s: unavailable\n", name)
			continue
		}
		fmt.Fprintf(w, "%s: %.2f\n", name, v)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	hostname, _ := os.Hostname()
	reg := prometheus.NewRegistry()
	exporter, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Version:     version,
		Hostname:    hostname,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	}, status.LogSink{Log: logger.Named("status")}, exporter)
	ctx, cancel := context.WithCancel(context.Background())
	go tracker.Run(ctx)
	defer func() {
		cancel()
		<-tracker.Done()
	}()
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Initialize MQTT
	var publisher *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		publisher, err = mqtt.NewRealPublisher(mqtt.Config{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Username:           cfg.MQTT.Username,
			Password:           cfg.MQTT.Password,
			BufferSize:         cfg.MQTT.BufferSize,
			OnConnectionChange: tracker.SetMQTTConnected,
		}, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer publisher.Close()
		tracker.AddSink(mqtt.Sink{Publisher: publisher, Log: logger.Named("mqtt")})
	}

	controllers, err := buildControllers(cfg,
		realHardware{chip: cfg.GPIO.Chip, debounce: cfg.GPIO.Debounce},
		buildSensors(cfg.Sensors, logger), tracker, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stopControllers(controllers); err != nil {
			logger.Error("stop controllers", zap.Error(err))
		}
	}()

	if publisher != nil {
		if err := publisher.Subscribe(commandHandler(controllers, logger)); err != nil {
			logger.Error("subscribe to commands", zap.Error(err))
		}
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		handles := make([]web.Controller, len(controllers))
		for i, c := range controllers {
			handles[i] = c
		}
		srv := web.New(web.Config{Addr: cfg.HTTP.Addr, Refresh: cfg.HTTP.Refresh}, tracker, handles, reg, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	for _, c := range controllers {
		c.StartMonitoring()
	}
	logger.Info("started", zap.String("version", version), zap.Int("controllers", len(controllers)),
		zap.String("broker", cfg.MQTT.Broker), zap.Duration("heartbeat", cfg.Heartbeat))

	var pub mqtt.Publisher
	if publisher != nil {
		pub = publisher
	}
	publishSystem(pub, tracker, "STARTUP", "", logger)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runLoop(pub, tracker, logger, heartbeat, sigCh)
	return nil
}

// commandHandler applies remote commands to the named controller.
func commandHandler(controllers []*control.Controller, logger *zap.Logger) func(mqtt.Command) {
	byName := make(map[string]*control.Controller, len(controllers))
	for _, c := range controllers {
		byName[c.Name()] = c
	}
	return func(cmd mqtt.Command) {
		c, ok := byName[cmd.Controller]
		if !ok {
			logger.Warn("command for unknown controller", zap.String("controller", cmd.Controller))
			return
		}
		if err := c.Do(cmd.Action); err != nil {
			logger.Warn("command failed", zap.String("controller", cmd.Controller),
				zap.String("action", cmd.Action), zap.Error(err))
		}
	}
}

// publishSystem sends a lifecycle event carrying the full status snapshot.
// pub may be nil when MQTT is disabled.
func publishSystem(pub mqtt.Publisher, tracker *status.Tracker, event, reason string, logger *zap.Logger) {
	if pub == nil {
		return
	}
	if cs, ok := pub.(mqtt.ConnectionStatus); ok {
		tracker.SetMQTTConnected(cs.IsConnected())
	}
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	snap := tracker.Snapshot()
	err := pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		logger.Error("publish system event", zap.String("event", event), zap.Error(err))
		return
	}
	logger.Debug("published system event", zap.String("event", event))
}

// runLoop blocks until a signal arrives, publishing heartbeats meanwhile.
func runLoop(pub mqtt.Publisher, tracker *status.Tracker, logger *zap.Logger, heartbeat <-chan time.Time, sig <-chan os.Signal) {
	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", zap.Stringer("signal", s))
			publishSystem(pub, tracker, "SHUTDOWN", signalName(s), logger)
			return
		case <-heartbeat:
			snap := tracker.Snapshot()
			logger.Info("heartbeat", zap.Duration("uptime", snap.Uptime().Truncate(time.Second)),
				zap.Int("fields", snap.Fields.Len()), zap.Bool("mqtt", snap.MQTTConnected))
			publishSystem(pub, tracker, "HEARTBEAT", "", logger)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
