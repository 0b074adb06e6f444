// Package logging builds the process logger from settings shared by both
// ground-station binaries.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Settings selects level and output format of the process logger.
type Settings struct {
	LogLevel string `yaml:"logLevel"` // debug, info, warn, error
	Pretty   bool   `yaml:"pretty"`   // colored console output for interactive use
}

// New builds a slog.Logger from settings. Unknown levels fall back to info.
func New(settings Settings) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	if settings.Pretty {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
