// Package mqtt publishes measurements to an MQTT broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// QoS 1: the broker acknowledges each measurement
const qosAtLeastOnce byte = 1

// Config holds broker connection settings
type Config struct {
	Broker         string
	Topic          string
	ClientID       string
	TLS            *tls.Config // nil for plaintext brokers
	ConnectTimeout time.Duration
}

// client is the subset of paho.Client the publisher needs
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher implements domain.Publisher over MQTT
type Publisher struct {
	client client
	broker string
	topic  string
}

// NewPublisher connects to the broker and returns a ready publisher
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.TLS != nil {
		opts.SetTLSConfig(cfg.TLS)
	}

	c := paho.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("topic", cfg.Topic).
		Msg("connected to mqtt broker")

	return newPublisher(c, cfg.Broker, cfg.Topic), nil
}

func newPublisher(c client, broker, topic string) *Publisher {
	return &Publisher{
		client: c,
		broker: broker,
		topic:  topic,
	}
}

// Publish sends the payload with QoS 1 and waits for the broker's PUBACK.
// The returned id is the MQTT packet identifier.
func (p *Publisher) Publish(ctx context.Context, payload []byte) (string, error) {
	token := p.client.Publish(p.topic, qosAtLeastOnce, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if err := token.Error(); err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	if pt, ok := token.(interface{ MessageID() uint16 }); ok {
		return strconv.Itoa(int(pt.MessageID())), nil
	}
	return "", nil
}

// Destination returns broker and topic
func (p *Publisher) Destination() string {
	return p.broker + "/" + p.topic
}

// Close disconnects, giving in-flight messages a moment to drain
func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
