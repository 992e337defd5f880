package ports

import (
	"context"
)

// LevelSensor defines how to read sound pressure levels
// This is a PORT - adapters (USB, Mock) will implement it
type LevelSensor interface {
	// ReadLevel returns the current sound level in decibels
	ReadLevel(ctx context.Context) (float64, error)

	// Close releases any resources
	Close() error
}
