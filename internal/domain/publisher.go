package domain

import "context"

// Publisher delivers serialized measurements to a remote topic
// This is a PORT - adapters (Pub/Sub, MQTT, SQLite, Memory) will implement it
type Publisher interface {
	// Publish sends one payload and blocks until the transport acknowledges it.
	// Returns the message id assigned by the remote side.
	Publish(ctx context.Context, payload []byte) (string, error)

	// Destination describes where payloads go, for logging
	Destination() string

	// Close releases any resources
	Close() error
}
