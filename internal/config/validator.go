package config

import (
	"fmt"
	"regexp"
	"strings"
)

var topicPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_\-/]+$`)

// Validate checks if the configuration is valid and fills in defaults
func Validate(cfg *Config) error {
	if cfg.Listen == "" {
		cfg.Listen = ":4777"
	}
	if cfg.ShutdownTimeoutS < 0 {
		return fmt.Errorf("shutdown_timeout_s must be >= 0")
	}
	if cfg.ShutdownTimeoutS == 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateDetection(&cfg.Detection); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if err := validateWebSocket(&cfg.WebSocket); err != nil {
		return fmt.Errorf("websocket: %w", err)
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	return nil
}

func validateDetection(d *DetectionConfig) error {
	if d.MaxDetections < 0 {
		return fmt.Errorf("max_detections must be >= 0")
	}
	if d.MaxDetections == 0 {
		d.MaxDetections = 1000
	}
	if d.Radius < 0 {
		return fmt.Errorf("radius must be >= 0")
	}
	if d.Radius == 0 {
		d.Radius = 2
	}
	if d.SmoothSigma < 0 {
		return fmt.Errorf("smooth_sigma must be >= 0")
	}
	return nil
}

func validateWebSocket(w *WebSocketConfig) error {
	if w.ReadLimitBytes < 0 || w.ReadTimeoutS < 0 || w.WriteTimeoutS < 0 {
		return fmt.Errorf("limits and timeouts must be >= 0")
	}
	if w.ReadLimitBytes == 0 {
		w.ReadLimitBytes = 64 << 20
	}
	if w.ReadTimeoutS == 0 {
		w.ReadTimeoutS = 60
	}
	if w.WriteTimeoutS == 0 {
		w.WriteTimeoutS = 10
	}
	return nil
}

func validateMQTT(m *MQTTConfig) error {
	if m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}
	if m.ClientID == "" {
		m.ClientID = "spotd"
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = "spots"
	}
	m.TopicPrefix = strings.TrimSuffix(m.TopicPrefix, "/")
	if !topicPrefixPattern.MatchString(m.TopicPrefix) {
		return fmt.Errorf("topic_prefix %q must match [A-Za-z0-9_-/]+ (no wildcards)", m.TopicPrefix)
	}
	if strings.Contains(m.Broker, "://") {
		return fmt.Errorf("broker must be host:port without a scheme, got %q", m.Broker)
	}
	return nil
}
