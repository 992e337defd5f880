package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	grpcAdapter "github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/grpc"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/memory"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/mock"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/mqtt"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/pubsub"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/sqlite"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/adapters/usb"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/domain"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/metrics"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/internal/ports"
	"github.com/quentinrf/plant-monitor/services/noise-reporter/pkg/tlsconfig"
)

func main() {
	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(config)

	log.Info().Str("device", config.DeviceName).Msg("starting noise reporter")

	// run only returns on failure; deferred cleanups have run by then
	if err := run(context.Background(), config); err != nil {
		if errors.Is(err, domain.ErrDeviceNotFound) {
			log.Fatal().Err(err).Msg("Sound Meter not found")
		}
		log.Fatal().Err(err).Msg("reporter stopped")
	}
}

func setupLogger(config Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(ctx context.Context, config Config) error {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	if config.MetricsAddr != "" {
		go serveMetrics(config.MetricsAddr, reg)
	}

	var health *grpcAdapter.HealthServer
	if config.GRPCPort != "" {
		health, err = startHealthServer(config)
		if err != nil {
			return err
		}
		defer health.Stop()
	}

	// Open the meter before anything talks to the network
	sensor, err := openSensor(ctx, config)
	if err != nil {
		return err
	}
	defer sensor.Close()

	publisher, err := openPublisher(ctx, config)
	if err != nil {
		return err
	}
	defer publisher.Close()

	reporter := ports.NewReporter(m.Sensor(sensor), m.Publisher(publisher), config.DeviceName)

	if health != nil {
		health.SetServing(true)
		defer health.SetServing(false)
	}

	return reporter.Run(ctx)
}

// openSensor initializes the configured level sensor
func openSensor(ctx context.Context, config Config) (ports.LevelSensor, error) {
	switch config.SensorType {
	case "mock":
		log.Info().Msg("initialized mock sensor")
		return mock.NewFakeSensor(45.0, 10.0), nil // 45±10 dB (quiet office)
	default:
		meter, err := usb.Open(ctx)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("initialized USB sound level meter")
		return meter, nil
	}
}

// openPublisher initializes the configured publish transport
func openPublisher(ctx context.Context, config Config) (domain.Publisher, error) {
	switch config.PublisherType {
	case "memory":
		log.Warn().Msg("PUBLISHER_TYPE=memory: measurements stay in this process")
		return memory.NewPublisher(config.PubSubTopic), nil

	case "sqlite":
		outbox, err := sqlite.NewOutbox(config.DBPath, config.PubSubTopic)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite outbox %s: %w", config.DBPath, err)
		}
		log.Info().Str("db_path", config.DBPath).Msg("initialized SQLite outbox")
		return outbox, nil

	case "mqtt":
		var tlsCfg *tls.Config
		if strings.HasPrefix(config.MQTTBroker, "ssl://") || strings.HasPrefix(config.MQTTBroker, "tls://") {
			var err error
			tlsCfg, err = tlsconfig.LoadClientTLS(config.TLSCert, config.TLSKey, config.TLSCA)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS config: %w", err)
			}
		}
		return mqtt.NewPublisher(mqtt.Config{
			Broker:         config.MQTTBroker,
			Topic:          config.MQTTTopic,
			ClientID:       config.MQTTClientID,
			TLS:            tlsCfg,
			ConnectTimeout: config.MQTTTimeout,
		})

	default:
		return pubsub.NewPublisher(ctx, pubsub.Config{
			Project:         config.PubSubProject,
			Topic:           config.PubSubTopic,
			CredentialsFile: config.CredentialsFile,
			Endpoint:        config.PubSubEndpoint,
		})
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

func startHealthServer(config Config) (*grpcAdapter.HealthServer, error) {
	// Configure TLS if certificates are provided
	var tlsCfg *tls.Config
	if config.TLSCert != "" {
		var err error
		tlsCfg, err = tlsconfig.LoadServerTLS(config.TLSCert, config.TLSKey, config.TLSCA)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		log.Info().Msg("mTLS enabled")
	} else {
		log.Warn().Msg("TLS_CERT not set - health server runs without TLS")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", config.GRPCPort))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	health := grpcAdapter.NewHealthServer(tlsCfg)
	go func() {
		if err := health.Serve(listener); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()

	return health, nil
}
