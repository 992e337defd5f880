package mock

import (
	"context"
	"math"
	"math/rand"
)

// FakeSensor simulates a sound level meter for development
// This implements the ports.LevelSensor interface
type FakeSensor struct {
	baseValue float64
	variation float64
}

// NewFakeSensor creates a sensor that returns realistic values
// baseValue: average level in dB (e.g., 45 for a quiet office)
// variation: +/- range (e.g., 10 means 35-55)
func NewFakeSensor(baseValue, variation float64) *FakeSensor {
	return &FakeSensor{
		baseValue: baseValue,
		variation: variation,
	}
}

// ReadLevel returns a simulated level with the meter's 0.1 dB resolution
func (s *FakeSensor) ReadLevel(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	variance := (rand.Float64() - 0.5) * 2 * s.variation
	level := s.baseValue + variance

	if level < 0 {
		level = 0
	}

	return math.Round(level*10) / 10, nil
}

// Close is a no-op for fake sensor
func (s *FakeSensor) Close() error {
	return nil
}
