package config

import (
	"fmt"
	"os"

	"firewatch/internal/models"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads the configuration from a file, then applies environment overrides.
// An empty path skips the file.
func LoadConfig(path string) (*models.Config, error) {
	var cfg models.Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://localhost:8000"
	}
	if cfg.Backend.StreamPath == "" {
		cfg.Backend.StreamPath = "/events"
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 10
	}
	if cfg.Backend.MaxMessageBytes <= 0 {
		cfg.Backend.MaxMessageBytes = 1 << 20
	}
	if cfg.Session.RestartSettleMillis <= 0 {
		cfg.Session.RestartSettleMillis = 1000
	}
	if cfg.Session.HistoryLimit < 0 {
		cfg.Session.HistoryLimit = 0
	}
	if cfg.Display.Width <= 0 || cfg.Display.Height <= 0 {
		cfg.Display.Width, cfg.Display.Height = 960, 540
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "firewatch"
	}
	if cfg.MQTT.AlertsTopic == "" {
		cfg.MQTT.AlertsTopic = "firewatch/alerts"
	}
	if cfg.MQTT.CommandsTopic == "" {
		cfg.MQTT.CommandsTopic = "firewatch/commands"
	}
}
