package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/resonde/groundstation/internal/logging"
	"github.com/resonde/groundstation/internal/session"
	"github.com/resonde/groundstation/internal/telemetry"
)

const defaultListenAddr = ":8080"

// Config represents the multi-receiver server configuration
type Config struct {
	Settings logging.Settings `yaml:"settings"`
	Pipeline PipelineConfig   `yaml:"pipeline"`
	Storage  StorageConfig    `yaml:"storage"`
	Server   ServerConfig     `yaml:"server"`
}

// PipelineConfig represents the ingestion core parameters
type PipelineConfig struct {
	GroundPressure float64 `yaml:"groundPressure"` // hPa, seed for pressure integration
	DedupWindow    int     `yaml:"dedupWindow"`    // packets
	FieldCount     int     `yaml:"fieldCount"`     // expected raw packet field count
	HistoryLimit   int     `yaml:"historyLimit"`   // readings kept in memory per sonde, 0 = unbounded
	QueueSize      int     `yaml:"queueSize"`      // per-sink handoff queue depth
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// ServerConfig represents HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := Config{
		Settings: logging.Settings{LogLevel: "info"},
		Pipeline: PipelineConfig{
			GroundPressure: session.DefaultGroundPressure,
			DedupWindow:    session.DefaultWindowSize,
			FieldCount:     telemetry.FieldCountStandard,
		},
		Storage: StorageConfig{DataDirectory: "data"},
		Server:  ServerConfig{ListenAddr: defaultListenAddr},
	}
	if err = yaml.Unmarshal(p, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
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
