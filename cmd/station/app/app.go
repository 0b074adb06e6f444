package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/resonde/groundstation/internal/ingest"
	"github.com/resonde/groundstation/internal/pipeline"
	"github.com/resonde/groundstation/internal/recorder"
	"github.com/resonde/groundstation/internal/session"
	"github.com/resonde/groundstation/internal/storage"
	"github.com/resonde/groundstation/internal/telemetry"
)

const databaseFile = "flights.sqlite"

// Run reads telemetry from the local receiver serial port and records it
// until the context is cancelled or the port fails.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	dataDir := config.Storage.DataDirectory
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	store := storage.New(filepath.Join(dataDir, databaseFile))
	defer store.Close()

	csv := recorder.NewCSV(dataDir)
	defer csv.Close()

	decoder, err := telemetry.NewDecoder(config.Pipeline.FieldCount)
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	registry := session.NewRegistry(config.SessionConfig())
	flights := storage.NewFlightLog(store, config.Pipeline.GroundPressure)

	queueSize := config.Pipeline.QueueSize
	storeSink := pipeline.NewAsync("sqlite", queueSize, flights.Record, logger)
	csvSink := pipeline.NewAsync("csv", queueSize, csv.Record, logger)

	pipe := pipeline.New(decoder, registry,
		pipeline.WithSink(storeSink),
		pipeline.WithSink(csvSink),
		pipeline.WithLogger(logger),
	)

	source, err := ingest.OpenSerial(config.Serial, pipe, ingest.WithLogger(logger))
	if err != nil {
		return err
	}

	started := time.Now()
	runErr := source.Run(ctx)

	// Sources are stopped; drain what is queued before closing the store.
	storeSink.Close()
	csvSink.Close()

	for _, sess := range registry.Sessions() {
		logger.Info("flight summary",
			slog.Uint64("serial", uint64(sess.Serial())),
			slog.String("packets", humanize.Comma(int64(sess.Len()))),
			slog.String("duration", time.Since(started).Round(time.Second).String()),
		)
	}

	return runErr
}
