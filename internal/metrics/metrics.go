// Package metrics instruments the sensor and publisher with Prometheus collectors.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/domain"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/ports"
)

// Metrics holds the reporter's collectors
type Metrics struct {
	level           prometheus.Gauge
	readings        *prometheus.CounterVec
	publishes       *prometheus.CounterVec
	publishDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "noise_reporter_decibel_level",
			Help: "Last sound level read from the meter, in dB.",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "noise_reporter_readings_total",
			Help: "Sensor reads by result.",
		}, []string{"result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "noise_reporter_publishes_total",
			Help: "Publish attempts by result.",
		}, []string{"result"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "noise_reporter_publish_duration_seconds",
			Help:    "Time from publish to acknowledgment.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{m.level, m.readings, m.publishes, m.publishDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// Handler serves the registry in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Sensor wraps s so every read is counted and the last level exported
func (m *Metrics) Sensor(s ports.LevelSensor) ports.LevelSensor {
	return &instrumentedSensor{LevelSensor: s, m: m}
}

type instrumentedSensor struct {
	ports.LevelSensor
	m *Metrics
}

func (s *instrumentedSensor) ReadLevel(ctx context.Context) (float64, error) {
	level, err := s.LevelSensor.ReadLevel(ctx)
	s.m.readings.WithLabelValues(result(err)).Inc()
	if err == nil {
		s.m.level.Set(level)
	}
	return level, err
}

// Publisher wraps p so every publish is counted and timed
func (m *Metrics) Publisher(p domain.Publisher) domain.Publisher {
	return &instrumentedPublisher{Publisher: p, m: m}
}

type instrumentedPublisher struct {
	domain.Publisher
	m *Metrics
}

func (p *instrumentedPublisher) Publish(ctx context.Context, payload []byte) (string, error) {
	start := time.Now()
	id, err := p.Publisher.Publish(ctx, payload)
	p.m.publishDuration.Observe(time.Since(start).Seconds())
	p.m.publishes.WithLabelValues(result(err)).Inc()
	return id, err
}
