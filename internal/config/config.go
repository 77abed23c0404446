package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CameraConfig describes one configured video source.
type CameraConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// LevelThresholds tunes the mapping from visible threats to a threat level.
// A cycle is ELEVATED with at least one threat, HIGH with HighCount threats
// or any threat at or above HighConfidence, CRITICAL with CriticalCount
// threats or HighCount threats at or above HighConfidence.
type LevelThresholds struct {
	HighCount      int     `yaml:"high_count" env:"LEVEL_HIGH_COUNT"`
	CriticalCount  int     `yaml:"critical_count" env:"LEVEL_CRITICAL_COUNT"`
	HighConfidence float64 `yaml:"high_confidence" env:"LEVEL_HIGH_CONFIDENCE"`
}

// Config defines the runtime configuration for the threat dashboard server.
type Config struct {
	Cameras []CameraConfig `yaml:"cameras"`

	Detection struct {
		Endpoint            string        `yaml:"endpoint" env:"DETECTION_ENDPOINT"`
		ConfidenceThreshold float64       `yaml:"confidence_threshold" env:"DETECTION_CONFIDENCE"`
		Timeout             time.Duration `yaml:"timeout" env:"DETECTION_TIMEOUT"`
		ThreatClasses       []string      `yaml:"threat_classes" env:"THREAT_CLASSES" envSeparator:","`
		PersonLabel         string        `yaml:"person_label" env:"PERSON_LABEL"`
	} `yaml:"detection"`

	Alerts struct {
		Cooldown        time.Duration   `yaml:"cooldown" env:"ALERT_COOLDOWN"`
		HistoryCapacity int             `yaml:"history_capacity" env:"ALERT_HISTORY_CAPACITY"`
		Levels          LevelThresholds `yaml:"levels"`
	} `yaml:"alerts"`

	Stream struct {
		DeliveryFPS    int           `yaml:"delivery_fps" env:"DELIVERY_FPS"`
		JPEGQuality    int           `yaml:"jpeg_quality" env:"JPEG_QUALITY"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
		RetryInterval  time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
		StatusInterval time.Duration `yaml:"status_interval" env:"STATUS_INTERVAL"`
	} `yaml:"stream"`
}

// Default returns the configuration matching the original dashboard defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Detection.Endpoint = "http://localhost:9090"
	cfg.Detection.ConfidenceThreshold = 0.5
	cfg.Detection.Timeout = 2 * time.Second
	cfg.Detection.ThreatClasses = []string{"knife", "scissors", "fork", "baseball bat"}
	cfg.Detection.PersonLabel = "person"
	cfg.Alerts.Cooldown = 30 * time.Second
	cfg.Alerts.HistoryCapacity = 100
	cfg.Alerts.Levels = LevelThresholds{HighCount: 2, CriticalCount: 4, HighConfidence: 0.75}
	cfg.Stream.DeliveryFPS = 15
	cfg.Stream.JPEGQuality = 70
	cfg.Stream.ConnectTimeout = 5 * time.Second
	cfg.Stream.RetryInterval = time.Second
	cfg.Stream.StatusInterval = 2 * time.Second
	return cfg
}

// Load reads the YAML config file and overlays environment variables.
// A missing .env file is not an error; system environment still applies.
func Load(filename string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("config: no cameras configured")
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.ID == "" {
			return fmt.Errorf("config: camera %d has no id", i)
		}
		if seen[cam.ID] {
			return fmt.Errorf("config: duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
		if cam.Name == "" {
			return fmt.Errorf("config: camera %q has no name", cam.ID)
		}
	}
	if c.Detection.ConfidenceThreshold <= 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: confidence threshold %v outside (0,1]", c.Detection.ConfidenceThreshold)
	}
	if len(c.Detection.ThreatClasses) == 0 {
		return fmt.Errorf("config: empty threat class vocabulary")
	}
	if c.Detection.PersonLabel == "" {
		return fmt.Errorf("config: empty person label")
	}
	if c.Alerts.Cooldown <= 0 {
		return fmt.Errorf("config: cooldown %v must be positive", c.Alerts.Cooldown)
	}
	if c.Alerts.HistoryCapacity <= 0 {
		return fmt.Errorf("config: history capacity %d must be positive", c.Alerts.HistoryCapacity)
	}
	lv := c.Alerts.Levels
	if lv.HighCount < 1 || lv.CriticalCount < lv.HighCount {
		return fmt.Errorf("config: level thresholds must satisfy 1 <= high_count <= critical_count")
	}
	if lv.HighConfidence <= 0 || lv.HighConfidence > 1 {
		return fmt.Errorf("config: high_confidence %v outside (0,1]", lv.HighConfidence)
	}
	if c.Stream.DeliveryFPS <= 0 {
		return fmt.Errorf("config: delivery fps %d must be positive", c.Stream.DeliveryFPS)
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("config: jpeg quality %d outside [1,100]", c.Stream.JPEGQuality)
	}
	if c.Stream.ConnectTimeout <= 0 || c.Stream.RetryInterval <= 0 {
		return fmt.Errorf("config: connect timeout and retry interval must be positive")
	}
	return nil
}

// DeliveryInterval converts the configured delivery FPS to a tick interval.
func (c *Config) DeliveryInterval() time.Duration {
	return time.Second / time.Duration(c.Stream.DeliveryFPS)
}
