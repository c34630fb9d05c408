package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/aquarium-controller/internal/status"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// DefaultBufferSize is the number of messages held while disconnected.
	DefaultBufferSize = 100
)

// Config holds the broker connection settings.
type Config struct {
	Broker     string // tcp://host:1883
	ClientID   string
	Username   string
	Password   string
	BufferSize int

	// OnConnectionChange, if set, is called from the paho goroutines
	// whenever the connection comes up or is lost.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are held and replayed on reconnect.
type RealPublisher struct {
	client   paho.Client
	log      *zap.Logger
	onChange func(bool)

	mu        sync.Mutex
	box       *outbox
	handler   func(Command)
	connected bool
	seen      bool // first connection happened
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the publisher is still
// returned; paho keeps retrying in the background.
func NewRealPublisher(cfg Config, log *zap.Logger) (*RealPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker address required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "aquarium-controller"
	}

	p := newPublisher(cfg, log)
	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetWill(TopicSystem, string(will), 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn("broker not reachable yet, retrying in background", zap.String("broker", cfg.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(cfg Config, log *zap.Logger) *RealPublisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RealPublisher{
		log:      log.Named("mqtt"),
		onChange: cfg.OnConnectionChange,
		box:      newOutbox(size),
	}
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.connected = true
	reconnect := p.seen
	p.seen = true
	backlog := p.box.drain()
	handler := p.handler
	p.mu.Unlock()

	p.log.Info("connected", zap.Bool("reconnect", reconnect), zap.Int("backlog", len(backlog)))
	if handler != nil {
		if err := p.subscribe(handler); err != nil {
			p.log.Error("resubscribe failed", zap.Error(err))
		}
	}
	for _, m := range backlog {
		if err := p.send(m); err != nil {
			p.log.Error("replay failed", zap.String("topic", m.topic), zap.Error(err))
		}
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err := p.send(pending{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			p.log.Error("publish reconnect event failed", zap.Error(err))
		}
	}
	if p.onChange != nil {
		p.onChange(true)
	}
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.log.Warn("connection lost", zap.Error(err))
	if p.onChange != nil {
		p.onChange(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// publish sends m now, or holds it if the connection is down.
func (p *RealPublisher) publish(m pending) error {
	p.mu.Lock()
	if !p.connected {
		if p.box.push(m) && p.box.dropped == 1 {
			p.log.Warn("offline buffer full, dropping oldest", zap.Int("capacity", len(p.box.slots)))
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m pending) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// PublishStatus sends a partial status update, QoS 0, not retained.
func (p *RealPublisher) PublishStatus(u status.Update) error {
	payload, err := FormatStatusPayload(u)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}
	return p.publish(pending{topic: TopicStatus, payload: payload})
}

// PublishSystem sends a system lifecycle event, QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pending{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Subscribe delivers parsed commands from TopicCommand to handler. The
// subscription is renewed after every reconnect.
func (p *RealPublisher) Subscribe(handler func(Command)) error {
	p.mu.Lock()
	p.handler = handler
	connected := p.connected
	p.mu.Unlock()
	if !connected {
		return nil
	}
	return p.subscribe(handler)
}

func (p *RealPublisher) subscribe(handler func(Command)) error {
	token := p.client.Subscribe(TopicCommand, 1, func(_ paho.Client, msg paho.Message) {
		cmd, err := ParseCommand(msg.Topic(), msg.Payload())
		if err != nil {
			p.log.Warn("ignoring command", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		p.log.Info("command received", zap.String("controller", cmd.Controller), zap.String("action", cmd.Action))
		handler(cmd)
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", TopicCommand)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicCommand, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(1000) // 1 second timeout
	}
	return nil
}
