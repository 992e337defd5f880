// Package pubsub publishes measurements to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/domain"
)

// Config selects the topic and how to authenticate against it
type Config struct {
	Project         string
	Topic           string
	CredentialsFile string // service account key; ignored when Endpoint is set
	Endpoint        string // emulator host:port, plaintext and unauthenticated
}

// Publisher implements domain.Publisher with one Pub/Sub topic
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	name   string
}

// NewPublisher connects to Pub/Sub and prepares the topic handle
func NewPublisher(ctx context.Context, cfg Config, extra ...option.ClientOption) (*Publisher, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	client, err := pubsub.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.Topic)
	// Every measurement goes out on its own
	topic.PublishSettings.CountThreshold = 1

	p := &Publisher{
		client: client,
		topic:  topic,
		name:   domain.TopicName(cfg.Project, cfg.Topic),
	}

	log.Info().Str("topic", p.name).Msg("initialized pubsub publisher")
	return p, nil
}

func clientOptions(cfg Config) ([]option.ClientOption, error) {
	if cfg.Endpoint != "" {
		return []option.ClientOption{
			option.WithEndpoint(cfg.Endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}, nil
	}

	ts, err := LoadTokenSource(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}

// Publish sends the payload and waits for the server-assigned message id
func (p *Publisher) Publish(ctx context.Context, payload []byte) (string, error) {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", p.name, err)
	}

	return id, nil
}

// Destination returns the fully qualified topic name
func (p *Publisher) Destination() string {
	return p.name
}

// Close flushes the topic and closes the client
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
