// Package messaging publishes dashboard events to MQTT or Kafka through a
// database outbox.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"

	"deliverydash/config"
)

var ErrNotConnected = errors.New("messaging: not connected")

const (
	mqttQoS        = 1
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
)

// transport is one broker connection.
type transport interface {
	publish(ctx context.Context, topic string, payload []byte) error
	connected() bool
	close()
}

// Client publishes to whichever broker the config names. With no backend
// configured it stays disabled and every Publish fails.
type Client struct {
	mu  sync.RWMutex
	cfg *config.MessagingConfig
	t   transport
}

func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Enabled() bool { return c.cfg.Backend != "" }

func (c *Client) Connect() error {
	var (
		t   transport
		err error
	)
	switch c.cfg.Backend {
	case "mqtt":
		t, err = dialMQTT(c.cfg.MQTT)
	case "kafka":
		t, err = newKafka(c.cfg.Kafka)
	default:
		return fmt.Errorf("unknown messaging backend: %q", c.cfg.Backend)
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.t
	c.t = t
	c.mu.Unlock()
	if old != nil {
		old.close()
	}
	return nil
}

func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	t := c.t
	c.mu.RUnlock()
	if t == nil || !t.connected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := t.publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t != nil && c.t.connected()
}

func (c *Client) Close() {
	c.mu.Lock()
	t := c.t
	c.t = nil
	c.mu.Unlock()
	if t != nil {
		t.close()
	}
}

type mqttTransport struct {
	conn mqtt.Client
}

func dialMQTT(cfg config.MQTTConfig) (*mqttTransport, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("messaging: mqtt connection to %s lost: %v", broker, err)
		})

	conn := mqtt.NewClient(opts)
	token := conn.Connect()
	if !token.WaitTimeout(connectTimeout) {
		conn.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return &mqttTransport{conn: conn}, nil
}

func (m *mqttTransport) publish(ctx context.Context, topic string, payload []byte) error {
	token := m.conn.Publish(topic, mqttQoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mqttTransport) connected() bool { return m.conn.IsConnected() }

func (m *mqttTransport) close() { m.conn.Disconnect(1000) }

type kafkaTransport struct {
	w *kafkago.Writer
}

func newKafka(cfg config.KafkaConfig) (*kafkaTransport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	return &kafkaTransport{w: &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}, nil
}

// publish keys messages by topic so each topic lands on one partition and
// stays ordered.
func (k *kafkaTransport) publish(ctx context.Context, topic string, payload []byte) error {
	return k.w.WriteMessages(ctx, kafkago.Message{Topic: topic, Key: []byte(topic), Value: payload})
}

func (k *kafkaTransport) connected() bool { return true }

func (k *kafkaTransport) close() { k.w.Close() }
