package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is a payload accepted by the in-memory publisher
type Message struct {
	ID          string
	Payload     []byte
	PublishedAt time.Time
}

// Publisher implements domain.Publisher by keeping payloads in memory
// Useful for dry runs and tests - nothing leaves the process
type Publisher struct {
	mu       sync.RWMutex
	topic    string
	messages []Message
}

// NewPublisher creates an empty in-memory publisher
func NewPublisher(topic string) *Publisher {
	return &Publisher{topic: topic}
}

// Publish stores a copy of the payload and returns a fresh message id
func (p *Publisher) Publish(ctx context.Context, payload []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := Message{
		ID:          uuid.NewString(),
		Payload:     append([]byte(nil), payload...),
		PublishedAt: time.Now(),
	}
	p.messages = append(p.messages, msg)

	return msg.ID, nil
}

// Messages returns everything published so far, oldest first
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Destination returns the topic name this publisher pretends to write to
func (p *Publisher) Destination() string {
	return "memory://" + p.topic
}

// Close is a no-op for the in-memory publisher
func (p *Publisher) Close() error {
	return nil
}
