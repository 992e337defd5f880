package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	SensorType      string        `yaml:"sensor_type"`    // "usb" | "mock"
	PublisherType   string        `yaml:"publisher_type"` // "pubsub" | "mqtt" | "sqlite" | "memory"
	PubSubProject   string        `yaml:"pubsub_project"`
	PubSubTopic     string        `yaml:"pubsub_topic"`
	PubSubEndpoint  string        `yaml:"pubsub_endpoint"` // emulator host:port, skips credentials
	CredentialsFile string        `yaml:"credentials_file"`
	MQTTBroker      string        `yaml:"mqtt_broker"`
	MQTTTopic       string        `yaml:"mqtt_topic"`
	MQTTClientID    string        `yaml:"mqtt_client_id"`
	MQTTTimeout     time.Duration `yaml:"mqtt_connect_timeout"`
	DBPath          string        `yaml:"db_path"` // used when PublisherType=sqlite
	DeviceName      string        `yaml:"device_name"`
	MetricsAddr     string        `yaml:"metrics_addr"` // empty disables /metrics
	GRPCPort        string        `yaml:"grpc_port"`    // empty disables the health server
	TLSCert         string        `yaml:"tls_cert"`     // path to this service's certificate
	TLSKey          string        `yaml:"tls_key"`      // path to this service's private key
	TLSCA           string        `yaml:"tls_ca"`       // path to the CA certificate
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"` // "console" | "json"
}

func defaultConfig() Config {
	return Config{
		SensorType:      "usb",
		PublisherType:   "pubsub",
		PubSubProject:   "noise-alarm-dev",
		PubSubTopic:     "rasppi-soundmeter-measurements",
		CredentialsFile: "service-account-info.json",
		MQTTBroker:      "tcp://localhost:1883",
		MQTTTopic:       "noise/{device}/measurements",
		MQTTClientID:    "noise-reporter-{device}",
		MQTTTimeout:     10 * time.Second,
		DBPath:          "./noise.db",
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// loadConfig reads configuration from an optional YAML file and then
// environment variables; env wins over the file, the file over defaults.
func loadConfig(getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if path := getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	overrides := map[string]*string{
		"SENSOR_TYPE":      &cfg.SensorType,
		"PUBLISHER_TYPE":   &cfg.PublisherType,
		"PUBSUB_PROJECT":   &cfg.PubSubProject,
		"PUBSUB_TOPIC":     &cfg.PubSubTopic,
		"PUBSUB_ENDPOINT":  &cfg.PubSubEndpoint,
		"CREDENTIALS_FILE": &cfg.CredentialsFile,
		"MQTT_BROKER":      &cfg.MQTTBroker,
		"MQTT_TOPIC":       &cfg.MQTTTopic,
		"MQTT_CLIENT_ID":   &cfg.MQTTClientID,
		"DB_PATH":          &cfg.DBPath,
		"DEVICE_NAME":      &cfg.DeviceName,
		"METRICS_ADDR":     &cfg.MetricsAddr,
		"GRPC_PORT":        &cfg.GRPCPort,
		"TLS_CERT":         &cfg.TLSCert,
		"TLS_KEY":          &cfg.TLSKey,
		"TLS_CA":           &cfg.TLSCA,
		"LOG_LEVEL":        &cfg.LogLevel,
		"LOG_FORMAT":       &cfg.LogFormat,
	}
	for key, field := range overrides {
		if v := getenv(key); v != "" {
			*field = v
		}
	}

	if v := getenv("MQTT_CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid MQTT_CONNECT_TIMEOUT %q: %w", v, err)
		}
		cfg.MQTTTimeout = d
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return cfg, fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.DeviceName = hostname
	}

	cfg.MQTTTopic = strings.ReplaceAll(cfg.MQTTTopic, "{device}", cfg.DeviceName)
	cfg.MQTTClientID = strings.ReplaceAll(cfg.MQTTClientID, "{device}", cfg.DeviceName)

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.SensorType {
	case "usb", "mock":
	default:
		return fmt.Errorf("unknown SENSOR_TYPE %q", c.SensorType)
	}

	switch c.PublisherType {
	case "pubsub", "mqtt", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown PUBLISHER_TYPE %q", c.PublisherType)
	}

	if c.TLSCert != "" && c.TLSKey == "" {
		return fmt.Errorf("TLS_CERT set without TLS_KEY")
	}

	return nil
}
