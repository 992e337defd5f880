package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is ISO-8601 with a numeric UTC offset. Unlike RFC3339
// it never collapses the offset to "Z".
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// Measurement is a single sound level reading as sent on the wire
type Measurement struct {
	Device       string  `json:"device"`
	Timestamp    string  `json:"timestamp"`
	DecibelLevel float64 `json:"decibel_level"`
}

// NewMeasurement stamps a reading with the device name and local time
func NewMeasurement(device string, level float64, at time.Time) (Measurement, error) {
	if strings.TrimSpace(device) == "" {
		return Measurement{}, ErrEmptyHostname
	}

	return Measurement{
		Device:       device,
		Timestamp:    at.Local().Format(TimestampLayout),
		DecibelLevel: level,
	}, nil
}

// Encode serializes the measurement to its JSON payload
func (m Measurement) Encode() ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode measurement: %w", err)
	}
	return payload, nil
}

// DecodeMeasurement parses a JSON payload back into a Measurement
func DecodeMeasurement(payload []byte) (Measurement, error) {
	var m Measurement
	if err := json.Unmarshal(payload, &m); err != nil {
		return Measurement{}, fmt.Errorf("failed to decode measurement: %w", err)
	}
	return m, nil
}

// TopicName returns the fully qualified Pub/Sub topic path
func TopicName(project, topic string) string {
	return fmt.Sprintf("projects/%s/topics/%s", project, topic)
}
