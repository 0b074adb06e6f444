package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/resonde/groundstation/internal/api"
	"github.com/resonde/groundstation/internal/broadcast"
	"github.com/resonde/groundstation/internal/pipeline"
	"github.com/resonde/groundstation/internal/recorder"
	"github.com/resonde/groundstation/internal/session"
	"github.com/resonde/groundstation/internal/storage"
	"github.com/resonde/groundstation/internal/telemetry"
)

const (
	databaseFile    = "flights.sqlite"
	shutdownTimeout = 5 * time.Second
)

// Run wires the ingestion core to its collaborators and serves the receiver
// upload API until the context is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	dataDir := config.Storage.DataDirectory
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	store := storage.New(filepath.Join(dataDir, databaseFile))
	defer store.Close()

	csv := recorder.NewCSV(dataDir)
	defer csv.Close()

	hub := broadcast.NewHub(logger)
	defer hub.Close()

	decoder, err := telemetry.NewDecoder(config.Pipeline.FieldCount)
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	registry := session.NewRegistry(config.SessionConfig())
	flights := storage.NewFlightLog(store, config.Pipeline.GroundPressure)

	queueSize := config.Pipeline.QueueSize
	storeSink := pipeline.NewAsync("sqlite", queueSize, flights.Record, logger)
	csvSink := pipeline.NewAsync("csv", queueSize, csv.Record, logger)
	hubSink := pipeline.NewAsync("broadcast", queueSize, hub.Broadcast, logger)

	pipe := pipeline.New(decoder, registry,
		pipeline.WithSink(storeSink),
		pipeline.WithSink(csvSink),
		pipeline.WithSink(hubSink),
		pipeline.WithLogger(logger),
	)

	server := api.NewServer(api.Config{
		Pipeline: pipe,
		Registry: registry,
		Flights:  store,
		CSVPath:  csv.Path,
		Hub:      hub,
		OnReset:  flights.Forget,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              config.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening for receiver uploads", slog.String("addr", config.Server.ListenAddr))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		return fmt.Errorf("http server: %w", err)

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error(fmt.Sprintf("http shutdown: %s", err))
	}

	// Upload handlers are done; drain the sinks before closing the store.
	storeSink.Close()
	csvSink.Close()
	hubSink.Close()

	logger.Info("server stopped")
	return nil
}
