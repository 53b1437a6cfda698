package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML document into a Config override tree.
//
// The result is suitable for merging onto Default(); unknown keys are kept so
// newer configuration files keep working against older module sets.
func Parse(data []byte) (Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Parse",
			"error":    err.Error(),
		}).Error("Failed to parse configuration YAML")
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if raw == nil {
		return Config{}, nil
	}
	return Config(raw).Clone(), nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (Config, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
	}).Info("Loading configuration file")

	data, err := os.ReadFile(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"path":     path,
			"error":    err.Error(),
		}).Error("Failed to read configuration file")
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
		"keys":     len(cfg),
	}).Info("Configuration file loaded successfully")

	return cfg, nil
}
