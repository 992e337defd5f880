package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/domain"
)

// Reporter reads the sensor and publishes every reading, back to back
type Reporter struct {
	sensor    LevelSensor
	publisher domain.Publisher
	device    string
	now       func() time.Time
}

// NewReporter creates a reporter that tags readings with the given device name
func NewReporter(sensor LevelSensor, publisher domain.Publisher, device string) *Reporter {
	return &Reporter{
		sensor:    sensor,
		publisher: publisher,
		device:    device,
		now:       time.Now,
	}
}

// Run polls and publishes until a step fails.
// There is no delay between iterations and no retry: the first sensor,
// encode or publish error is returned and the caller is expected to exit.
func (r *Reporter) Run(ctx context.Context) error {
	log.Info().
		Str("device", r.device).
		Str("destination", r.publisher.Destination()).
		Msg("starting reporter")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.reportOnce(ctx); err != nil {
			return err
		}
	}
}

// reportOnce reads one level and blocks until it is published
func (r *Reporter) reportOnce(ctx context.Context) error {
	level, err := r.sensor.ReadLevel(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sensor: %w", err)
	}

	m, err := domain.NewMeasurement(r.device, level, r.now())
	if err != nil {
		return fmt.Errorf("failed to create measurement: %w", err)
	}

	payload, err := m.Encode()
	if err != nil {
		return err
	}

	log.Info().
		Float64("decibel_level", level).
		RawJSON("measurement", payload).
		Msg("measured")

	log.Debug().
		Str("destination", r.publisher.Destination()).
		Msg("sending measurement")

	id, err := r.publisher.Publish(ctx, payload)
	if err != nil {
		return fmt.Errorf("failed to publish measurement: %w", err)
	}

	log.Info().
		Str("message_id", id).
		Str("destination", r.publisher.Destination()).
		Msg("published measurement")

	return nil
}
