package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/resonde/groundstation/internal/ingest"
	"github.com/resonde/groundstation/internal/logging"
	"github.com/resonde/groundstation/internal/session"
	"github.com/resonde/groundstation/internal/telemetry"
)

// Config represents the local ground-station configuration
type Config struct {
	Settings logging.Settings    `yaml:"settings"`
	Serial   ingest.SerialConfig `yaml:"serial"`
	Pipeline PipelineConfig      `yaml:"pipeline"`
	Storage  StorageConfig       `yaml:"storage"`
}

// PipelineConfig represents the ingestion core parameters
type PipelineConfig struct {
	GroundPressure float64 `yaml:"groundPressure"` // hPa, seed for pressure integration
	DedupWindow    int     `yaml:"dedupWindow"`    // packets
	FieldCount     int     `yaml:"fieldCount"`     // 14, or 15 for first-generation trackers
	HistoryLimit   int     `yaml:"historyLimit"`   // readings kept in memory per sonde, 0 = unbounded
	QueueSize      int     `yaml:"queueSize"`      // per-sink handoff queue depth
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := Config{
		Settings: logging.Settings{LogLevel: "info"},
		Serial:   ingest.SerialConfig{BaudRate: ingest.DefaultBaudRate},
		Pipeline: PipelineConfig{
			GroundPressure: session.DefaultGroundPressure,
			DedupWindow:    session.DefaultWindowSize,
			FieldCount:     telemetry.FieldCountStandard,
		},
		Storage: StorageConfig{DataDirectory: "data"},
	}
	if err = yaml.Unmarshal(p, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Serial.Port == "" {
		return nil, fmt.Errorf("no serial port specified in configuration")
	}
	if config.Pipeline.GroundPressure <= 0 {
		return nil, fmt.Errorf("ground pressure must be positive, got %f", config.Pipeline.GroundPressure)
	}

	return &config, nil
}

// SessionConfig maps the pipeline settings onto per-session parameters.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		GroundPressure: c.Pipeline.GroundPressure,
		WindowSize:     c.Pipeline.DedupWindow,
		HistoryLimit:   c.Pipeline.HistoryLimit,
	}
}
