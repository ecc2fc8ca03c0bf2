package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/notify"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	outboxSize     = 100
)

// Options configures a broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

func (o Options) client(onConnect paho.OnConnectHandler, onLost paho.ConnectionLostHandler) paho.Client {
	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(onConnect).
		SetConnectionLostHandler(onLost)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	return paho.NewClient(opts)
}

func connect(client paho.Client) error {
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// RealPublisher publishes notifications and lifecycle events to an MQTT
// broker. Messages published while the connection is down are kept in an
// outbox and replayed on reconnect.
type RealPublisher struct {
	client paho.Client

	mu        sync.Mutex
	out       *outbox
	connected bool // set after the first successful connect
}

// NewRealPublisher connects to the broker described by opts.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	p := &RealPublisher{out: newOutbox(outboxSize)}
	p.client = opts.client(p.onConnect, p.onConnectionLost)
	if err := connect(p.client); err != nil {
		return nil, err
	}
	return p, nil
}

// Notify publishes n on TopicNotifications.
func (p *RealPublisher) Notify(_ context.Context, n notify.Notification) error {
	payload, err := notify.FormatPayload(n)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(pendingMsg{topic: TopicNotifications, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pendingMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

func (p *RealPublisher) publish(msg pendingMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.out.push(msg)
		p.mu.Unlock()
		return nil
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg pendingMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	pending := p.out.drain()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	if len(pending) > 0 {
		slog.Info("mqtt: connected, replaying outbox", "messages", len(pending))
	}
	// Publish from a goroutine: paho runs this handler on its connection
	// goroutine and waiting on tokens here would deadlock.
	go func() {
		if reconnect {
			reconnected, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
			if err := p.send(pendingMsg{topic: TopicSystem, payload: reconnected, qos: 1, retained: true}); err != nil {
				slog.Warn("mqtt: reconnect event", "error", err)
			}
		}
		for _, msg := range pending {
			if err := p.send(msg); err != nil {
				slog.Warn("mqtt: replay", "topic", msg.topic, "error", err)
			}
		}
	}()
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	slog.Warn("mqtt: connection lost", "error", err)
}
