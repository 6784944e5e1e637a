// Package config loads the spotd service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete spotd configuration
type Config struct {
	Listen           string          `yaml:"listen"`             // HTTP listen address (default: ":4777")
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Detection        DetectionConfig `yaml:"detection"`
	WebSocket        WebSocketConfig `yaml:"websocket"`
	MQTT             MQTTConfig      `yaml:"mqtt"`
}

// DetectionConfig holds the detection parameters applied when a request does
// not carry its own.
type DetectionConfig struct {
	Threshold     int     `yaml:"threshold"`
	MaxDetections int     `yaml:"max_detections"` // default: 1000
	Radius        int     `yaml:"radius"`         // centroid window half-width (default: 2)
	SmoothSigma   float64 `yaml:"smooth_sigma"`   // Gaussian prefilter, 0 disables
}

// WebSocketConfig contains frame stream connection limits
type WebSocketConfig struct {
	ReadLimitBytes int64 `yaml:"read_limit_bytes"` // largest accepted frame message (default: 64 MiB)
	ReadTimeoutS   int   `yaml:"read_timeout_s"`   // idle time before the peer is dropped (default: 60)
	WriteTimeoutS  int   `yaml:"write_timeout_s"`  // per-message write deadline (default: 10)
}

// MQTTConfig contains MQTT broker settings. An empty Broker disables
// publishing.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`       // host:port
	ClientID    string `yaml:"client_id"`    // default: "spotd"
	TopicPrefix string `yaml:"topic_prefix"` // default: "spots"
	QoS         byte   `yaml:"qos"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	// The zero config always validates.
	_ = Validate(&cfg)
	return &cfg
}

// ShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// ReadTimeout returns the websocket read timeout as a duration.
func (c WebSocketConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutS) * time.Second
}

// WriteTimeout returns the websocket write timeout as a duration.
func (c WebSocketConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutS) * time.Second
}
