package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
	keepAlive      = 30 * time.Second
	quiesceMillis  = 250
)

// mqttClient implements the Client interface using the Paho MQTT client
type mqttClient struct {
	client pahomqtt.Client
	cfg    *config.Config
	logger *slog.Logger
	events chan ConnectionEvent
}

// NewClient creates a new MQTT client with the given configuration
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	SetPahoLogger(logger)

	m := &mqttClient{
		cfg:    cfg,
		logger: logger,
		// Depth 1: a pending loss event already covers any later ones
		events: make(chan ConnectionEvent, 1),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTAddress())

	// Set client ID (auto-generate if not provided)
	if cfg.MQTTClientID != "" {
		opts.SetClientID(cfg.MQTTClientID)
	} else {
		opts.SetClientID(config.NewClientID())
	}

	if cfg.MQTTUseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			ServerName:         cfg.MQTTBroker,
			InsecureSkipVerify: cfg.MQTTTLSInsecure,
		})
	}

	// Connection settings. Reconnection is owned by the caller.
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	// Connection handlers
	opts.OnConnect = func(c pahomqtt.Client) {
		logger.Debug("MQTT session established", "broker", cfg.MQTTAddress())
	}

	opts.OnConnectionLost = func(c pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
		m.notify(ConnectionEvent{Type: EventConnectionLost, Err: err, At: time.Now()})
	}

	m.client = pahomqtt.NewClient(opts)
	return m
}

// notify queues an event without ever blocking the transport goroutine
func (m *mqttClient) notify(ev ConnectionEvent) {
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("Connection event already pending, dropping duplicate", "event", ev.Type.String())
	}
}

// Events returns the connection event stream
func (m *mqttClient) Events() <-chan ConnectionEvent {
	return m.events
}

// Connect establishes a connection to the MQTT broker
func (m *mqttClient) Connect(ctx context.Context) error {
	m.logger.Debug("Connecting to MQTT broker", "broker", m.cfg.MQTTAddress())

	token := m.client.Connect()

	// Wait for connection with context cancellation
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
		return nil
	case <-ctx.Done():
		// The attempt keeps running inside paho; tear it down if it lands late
		go func() {
			<-token.Done()
			if token.Error() == nil {
				m.client.Disconnect(0)
			}
		}()
		return fmt.Errorf("connection cancelled: %w", ctx.Err())
	}
}

// Disconnect closes the connection to the MQTT broker
func (m *mqttClient) Disconnect(reason string) {
	if !m.client.IsConnected() {
		m.logger.Debug("MQTT client already disconnected", "reason", reason)
		return
	}

	m.logger.Info("Disconnecting from MQTT broker", "reason", reason)
	m.client.Disconnect(quiesceMillis)
}

// Publish publishes a message to a topic
func (m *mqttClient) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if !m.client.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	token := m.client.Publish(topic, qos, retained, payload)

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
		}
	case <-ctx.Done():
		return fmt.Errorf("publish to topic %s not acknowledged: %w", topic, ctx.Err())
	}

	m.logger.Debug("Published message", "topic", topic, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is currently connected
func (m *mqttClient) IsConnected() bool {
	return m.client.IsConnected()
}
